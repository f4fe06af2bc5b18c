package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// CodeStore persists single-use authorization codes.
type CodeStore struct {
	client redis.UniversalClient
}

func NewCodeStore(client redis.UniversalClient) *CodeStore {
	return &CodeStore{client: client}
}

func codeKey(code string) string {
	return codePrefix + code
}

// Put stores a freshly minted authorization code with the given TTL.
func (s *CodeStore) Put(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error {
	code.SchemaVersion = domain.CodeSchemaVersion
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	if err := s.client.Set(ctx, codeKey(code.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	return nil
}

// Get loads a code without consuming it, so the caller can validate client
// credentials before committing to redemption.
func (s *CodeStore) Get(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	raw, err := s.client.Get(ctx, codeKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuthorizationCode{}, domain.ErrCodeNotFound
		}
		return domain.AuthorizationCode{}, fmt.Errorf("load code: %w", err)
	}
	return decodeCode(raw)
}

// Take atomically loads and deletes a code. GETDEL makes redemption
// exactly-once: a second Take of the same code sees ErrCodeNotFound.
func (s *CodeStore) Take(ctx context.Context, code string) (domain.AuthorizationCode, error) {
	raw, err := s.client.GetDel(ctx, codeKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuthorizationCode{}, domain.ErrCodeNotFound
		}
		return domain.AuthorizationCode{}, fmt.Errorf("take code: %w", err)
	}
	return decodeCode(raw)
}

func decodeCode(raw []byte) (domain.AuthorizationCode, error) {
	var stored domain.AuthorizationCode
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.AuthorizationCode{}, fmt.Errorf("%w: %v", domain.ErrStateCorrupted, err)
	}
	if stored.SchemaVersion != domain.CodeSchemaVersion {
		return domain.AuthorizationCode{}, fmt.Errorf("%w: code schema v%d", domain.ErrStateCorrupted, stored.SchemaVersion)
	}
	return stored, nil
}
