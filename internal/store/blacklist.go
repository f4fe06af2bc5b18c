package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlacklistStore records access tokens revoked before their natural expiry.
// Entries live exactly as long as the token would have, then fall out.
type BlacklistStore struct {
	client redis.UniversalClient
}

func NewBlacklistStore(client redis.UniversalClient) *BlacklistStore {
	return &BlacklistStore{client: client}
}

// Add blacklists a token for its remaining validity window.
func (s *BlacklistStore) Add(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, blacklistPrefix+token, "revoked", remaining).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// Contains reports whether a token has been revoked.
func (s *BlacklistStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}
