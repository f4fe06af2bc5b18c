package service

import (
	"context"
	"time"

	"github.com/OneCard-OSS/OneCard/internal/challenge"
	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/notify"
)

// Store interfaces consumed by the services. The Redis implementations live
// in internal/store; tests substitute in-memory fakes.

type AttemptStore interface {
	Put(ctx context.Context, id string, attempt domain.AuthAttempt, ttl time.Duration) error
	Get(ctx context.Context, id string) (domain.AuthAttempt, error)
	Delete(ctx context.Context, id string) error
	UpdateTerminal(ctx context.Context, id string, mutate func(*domain.AuthAttempt)) (domain.AuthAttempt, error)
}

type CodeStore interface {
	Put(ctx context.Context, code domain.AuthorizationCode, ttl time.Duration) error
	Get(ctx context.Context, code string) (domain.AuthorizationCode, error)
	Take(ctx context.Context, code string) (domain.AuthorizationCode, error)
}

type SessionStore interface {
	Put(ctx context.Context, sessionID, empNo string, ttl time.Duration) error
	EmpNo(ctx context.Context, sessionID string) (string, error)
	Extend(ctx context.Context, sessionID string, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

type RefreshStore interface {
	Put(ctx context.Context, sessionID, token string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	TTL(ctx context.Context, sessionID string) (time.Duration, error)
	Replace(ctx context.Context, sessionID, token string) error
	Delete(ctx context.Context, sessionID string) error
}

type BlacklistStore interface {
	Add(ctx context.Context, token string, remaining time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// Dispatcher delivers challenge material to the out-of-band device channel.
type Dispatcher interface {
	Send(ctx context.Context, msg notify.ChallengeMessage) error
}

// ChallengeEngine produces and verifies ECDH challenges.
type ChallengeEngine interface {
	Begin() (challenge.Challenge, error)
	Verify(privateKey, devicePublicKey, ciphertext, expectedNonce []byte) (bool, error)
}
