package service_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/challenge"
	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/notify"
	"github.com/OneCard-OSS/OneCard/internal/service"
)

type attemptEnv struct {
	svc        *service.AttemptService
	attempts   *memAttempts
	sessions   *memSessions
	dir        *memDirectory
	dispatcher *fakeDispatcher
	cardKey    *ecdh.PrivateKey
}

func newAttemptEnv(t *testing.T) *attemptEnv {
	t.Helper()

	cardKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := newMemDirectory()
	dir.employees["E001"] = domain.Employee{EmpNo: "E001", Name: "Kim Minjun", Email: "minjun@example.com"}
	dir.cardKeys["E001"] = cardKey.PublicKey().Bytes()
	dir.services["svcA"] = domain.Service{ClientID: "svcA", ClientSecret: "secretA", Name: "Service A"}
	dir.redirects["svcA"] = "https://svc-a.example.com/callback"

	env := &attemptEnv{
		attempts:   newMemAttempts(),
		sessions:   newMemSessions(),
		dir:        dir,
		dispatcher: &fakeDispatcher{},
		cardKey:    cardKey,
	}
	env.svc = service.NewAttemptService(
		env.attempts, env.sessions, dir, dir,
		challenge.NewEngine(), env.dispatcher,
		5*time.Minute, 14*24*time.Hour, zap.NewNop(),
	)
	return env
}

func validCreateInput() service.CreateAttemptInput {
	return service.CreateAttemptInput{
		EmpNo:       "E001",
		ClientID:    "svcA",
		RedirectURI: "https://svc-a.example.com/callback",
		State:       "xyz",
	}
}

// cardAnswer plays the card applet: derive the shared secret from the pushed
// payload and return the nonce encrypted under AES-128-ECB with PKCS#7.
func cardAnswer(t *testing.T, cardKey *ecdh.PrivateKey, payloadHex string) string {
	t.Helper()

	payload, err := hex.DecodeString(payloadHex)
	require.NoError(t, err)
	require.Greater(t, len(payload), challenge.NonceSize)

	serverPub, err := ecdh.P256().NewPublicKey(payload[:len(payload)-challenge.NonceSize])
	require.NoError(t, err)
	secret, err := cardKey.ECDH(serverPub)
	require.NoError(t, err)

	nonce := payload[len(payload)-challenge.NonceSize:]
	padded := append(append([]byte{}, nonce...), bytes.Repeat([]byte{aes.BlockSize}, aes.BlockSize)...)

	block, err := aes.NewCipher(secret[:16])
	require.NoError(t, err)
	ciphertext := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return hex.EncodeToString(ciphertext)
}

func TestCreateResolveStatusFlow(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	attemptID, err := env.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)
	require.NotEmpty(t, attemptID)
	require.Len(t, env.dispatcher.sent, 1)
	assert.Equal(t, "Service A", env.dispatcher.sent[0].ServiceName)
	assert.Equal(t, "E001", env.dispatcher.sent[0].EmpNo)

	status, err := env.svc.Status(ctx, attemptID, "svcA")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptPending, status.Status)
	assert.Empty(t, status.SessionID)

	err = env.svc.Resolve(ctx, service.ResolveAttemptInput{
		AttemptID:  attemptID,
		ClientID:   "svcA",
		PublicKey:  hex.EncodeToString(env.cardKey.PublicKey().Bytes()),
		Ciphertext: cardAnswer(t, env.cardKey, env.dispatcher.sent[0].Data),
	})
	require.NoError(t, err)

	status, err = env.svc.Status(ctx, attemptID, "svcA")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSuccess, status.Status)
	require.NotEmpty(t, status.SessionID)

	empNo, err := env.sessions.EmpNo(ctx, status.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "E001", empNo)

	// Terminal record keeps no key material.
	stored, err := env.attempts.Get(ctx, attemptID)
	require.NoError(t, err)
	assert.Empty(t, stored.ServerPrivateKey)
}

func TestCreateRejectsUnknownIdentities(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	in := validCreateInput()
	in.EmpNo = "E999"
	_, err := env.svc.Create(ctx, in)
	require.ErrorIs(t, err, domain.ErrUnknownEmployee)

	in = validCreateInput()
	in.RedirectURI = "https://evil.example.com/callback"
	_, err = env.svc.Create(ctx, in)
	require.ErrorIs(t, err, domain.ErrUnknownClient)

	assert.Empty(t, env.dispatcher.sent)
	assert.Empty(t, env.attempts.records)
}

func TestCreateSurfacesPushFailureWithoutRollback(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)
	env.dispatcher.err = notify.ErrPushTimeout

	_, err := env.svc.Create(ctx, validCreateInput())
	require.ErrorIs(t, err, notify.ErrPushTimeout)

	// The attempt survives the failed push and stays pending.
	require.Len(t, env.attempts.records, 1)
	for _, attempt := range env.attempts.records {
		assert.Equal(t, domain.AttemptPending, attempt.Status)
	}
}

func TestResolveWrongCardFails(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	attemptID, err := env.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	wrongKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	err = env.svc.Resolve(ctx, service.ResolveAttemptInput{
		AttemptID:  attemptID,
		ClientID:   "svcA",
		PublicKey:  hex.EncodeToString(wrongKey.PublicKey().Bytes()),
		Ciphertext: cardAnswer(t, wrongKey, env.dispatcher.sent[0].Data),
	})
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)

	status, err := env.svc.Status(ctx, attemptID, "svcA")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptFailed, status.Status)
	assert.Equal(t, "access_denied", status.Error)
}

func TestResolveIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	attemptID, err := env.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	in := service.ResolveAttemptInput{
		AttemptID:  attemptID,
		ClientID:   "svcA",
		PublicKey:  hex.EncodeToString(env.cardKey.PublicKey().Bytes()),
		Ciphertext: cardAnswer(t, env.cardKey, env.dispatcher.sent[0].Data),
	}
	require.NoError(t, env.svc.Resolve(ctx, in))

	err = env.svc.Resolve(ctx, in)
	require.ErrorIs(t, err, domain.ErrAttemptNotPending)

	// Only one session was ever created.
	assert.Len(t, env.sessions.empNos, 1)
}

func TestResolveClientMismatch(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	attemptID, err := env.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	err = env.svc.Resolve(ctx, service.ResolveAttemptInput{
		AttemptID:  attemptID,
		ClientID:   "svcB",
		PublicKey:  hex.EncodeToString(env.cardKey.PublicKey().Bytes()),
		Ciphertext: cardAnswer(t, env.cardKey, env.dispatcher.sent[0].Data),
	})
	require.ErrorIs(t, err, domain.ErrClientMismatch)
}

func TestStatusProjectsMissingAttemptAsExpired(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	status, err := env.svc.Status(ctx, "no-such-attempt", "svcA")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptExpired, status.Status)
}

func TestStatusClientMismatch(t *testing.T) {
	ctx := context.Background()
	env := newAttemptEnv(t)

	attemptID, err := env.svc.Create(ctx, validCreateInput())
	require.NoError(t, err)

	_, err = env.svc.Status(ctx, attemptID, "svcB")
	require.ErrorIs(t, err, domain.ErrClientMismatch)
}
