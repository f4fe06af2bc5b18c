package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// SessionStore maintains the session-id <-> employee mapping pair. Both
// directions are kept with equal TTLs and written together; a crash between
// the two writes is a bounded inconsistency the readers tolerate.
type SessionStore struct {
	client redis.UniversalClient
}

func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

// Put writes both mapping directions with the given TTL.
func (s *SessionStore) Put(ctx context.Context, sessionID, empNo string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionEmpPrefix+sessionID, empNo, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if err := s.client.Set(ctx, empSessionPrefix+empNo, sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("store session reverse map: %w", err)
	}
	return nil
}

// EmpNo resolves a session id to the employee that completed the handshake.
func (s *SessionStore) EmpNo(ctx context.Context, sessionID string) (string, error) {
	empNo, err := s.client.Get(ctx, sessionEmpPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrSessionNotFound
		}
		return "", fmt.Errorf("load session: %w", err)
	}
	return empNo, nil
}

// Extend re-extends both mapping directions to ttl. Called whenever the
// refresh token lifetime is re-extended so the session outlives the token
// pair it backs.
func (s *SessionStore) Extend(ctx context.Context, sessionID string, ttl time.Duration) error {
	empNo, err := s.client.Get(ctx, sessionEmpPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}
	if err := s.client.Expire(ctx, sessionEmpPrefix+sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if err := s.client.Expire(ctx, empSessionPrefix+empNo, ttl).Err(); err != nil {
		return fmt.Errorf("extend session reverse map: %w", err)
	}
	return nil
}

// Delete removes both mapping directions. Missing keys are not an error so
// teardown stays idempotent.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	empNo, err := s.client.Get(ctx, sessionEmpPrefix+sessionID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load session: %w", err)
	}
	if empNo != "" {
		if err := s.client.Del(ctx, empSessionPrefix+empNo).Err(); err != nil {
			return fmt.Errorf("delete session reverse map: %w", err)
		}
	}
	if err := s.client.Del(ctx, sessionEmpPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
