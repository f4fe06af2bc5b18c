package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// RefreshStore mirrors the current refresh token of each session. The mirror,
// not the token's own signature expiry, is the source of truth for validity:
// rotation overwrites it and a token that no longer matches is dead.
type RefreshStore struct {
	client redis.UniversalClient
}

func NewRefreshStore(client redis.UniversalClient) *RefreshStore {
	return &RefreshStore{client: client}
}

func refreshKey(sessionID string) string {
	return refreshPrefix + sessionID
}

// Put stores the session's current refresh token with a full TTL.
func (s *RefreshStore) Put(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKey(sessionID), token, ttl).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Get returns the mirrored token for a session.
func (s *RefreshStore) Get(ctx context.Context, sessionID string) (string, error) {
	token, err := s.client.Get(ctx, refreshKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrSessionNotFound
		}
		return "", fmt.Errorf("load refresh token: %w", err)
	}
	return token, nil
}

// TTL reports the remaining lifetime of the mirror.
func (s *RefreshStore) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	remaining, err := s.client.TTL(ctx, refreshKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("refresh token ttl: %w", err)
	}
	if remaining < 0 {
		return 0, domain.ErrSessionNotFound
	}
	return remaining, nil
}

// Replace overwrites the mirror with a rotated token, preserving the
// remaining TTL of the previous one.
func (s *RefreshStore) Replace(ctx context.Context, sessionID, token string) error {
	if err := s.client.Set(ctx, refreshKey(sessionID), token, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

// Delete drops the mirror, forcing re-authentication.
func (s *RefreshStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, refreshKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
