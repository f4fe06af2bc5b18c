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

// terminalWriteRetries bounds the optimistic-transaction retry loop in
// UpdateTerminal. Losing every retry means another writer keeps touching the
// key; after the first loss the re-read sees a terminal status anyway.
const terminalWriteRetries = 3

// AttemptStore persists AuthAttempt records keyed by attempt id.
type AttemptStore struct {
	client redis.UniversalClient
	floor  time.Duration
}

// NewAttemptStore creates an AttemptStore. floor is the minimum TTL kept on
// an attempt when it transitions to a terminal state, so a polling client has
// time to observe the outcome before expiry.
func NewAttemptStore(client redis.UniversalClient, floor time.Duration) *AttemptStore {
	return &AttemptStore{client: client, floor: floor}
}

func attemptKey(id string) string {
	return attemptPrefix + id
}

// Put stores a freshly created attempt with the given TTL.
func (s *AttemptStore) Put(ctx context.Context, id string, attempt domain.AuthAttempt, ttl time.Duration) error {
	attempt.SchemaVersion = domain.AttemptSchemaVersion
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.client.Set(ctx, attemptKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("store attempt: %w", err)
	}
	return nil
}

// Get loads an attempt. A missing or expired key yields ErrAttemptNotFound.
func (s *AttemptStore) Get(ctx context.Context, id string) (domain.AuthAttempt, error) {
	raw, err := s.client.Get(ctx, attemptKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.AuthAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.AuthAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return decodeAttempt(raw)
}

// Delete removes an attempt after consumption.
func (s *AttemptStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, attemptKey(id)).Err(); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	return nil
}

// UpdateTerminal moves a pending attempt to a terminal state under an
// optimistic WATCH transaction. The remaining TTL is preserved, floored so the
// polling client can still observe the outcome. If a concurrent writer gets
// there first the re-read sees a non-pending status and the caller receives
// ErrAttemptNotPending; a terminal state is never overwritten.
//
// The ephemeral private key is cleared regardless of what mutate does: no
// terminal attempt retains key material.
func (s *AttemptStore) UpdateTerminal(ctx context.Context, id string, mutate func(*domain.AuthAttempt)) (domain.AuthAttempt, error) {
	key := attemptKey(id)
	var updated domain.AuthAttempt

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrAttemptNotFound
			}
			return fmt.Errorf("load attempt: %w", err)
		}
		attempt, err := decodeAttempt(raw)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptPending {
			return domain.ErrAttemptNotPending
		}

		remaining, err := tx.TTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("attempt ttl: %w", err)
		}
		if remaining < s.floor {
			remaining = s.floor
		}

		mutate(&attempt)
		attempt.ServerPrivateKey = ""
		if !attempt.Status.Terminal() {
			return fmt.Errorf("%w: non-terminal write for attempt %s", domain.ErrStateCorrupted, id)
		}

		data, err := json.Marshal(attempt)
		if err != nil {
			return fmt.Errorf("marshal attempt: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, remaining)
			return nil
		})
		if err != nil {
			return err
		}
		updated = attempt
		return nil
	}

	for i := 0; i < terminalWriteRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.AuthAttempt{}, err
		}
		return updated, nil
	}
	return domain.AuthAttempt{}, domain.ErrAttemptNotPending
}

func decodeAttempt(raw []byte) (domain.AuthAttempt, error) {
	var attempt domain.AuthAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.AuthAttempt{}, fmt.Errorf("%w: %v", domain.ErrStateCorrupted, err)
	}
	if attempt.SchemaVersion != domain.AttemptSchemaVersion {
		return domain.AuthAttempt{}, fmt.Errorf("%w: attempt schema v%d", domain.ErrStateCorrupted, attempt.SchemaVersion)
	}
	return attempt, nil
}
