package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/directory"
	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/notify"
)

const challengePushMessage = "OneCard Login Request"

// CreateAttemptInput carries the validated parameters of a login request.
type CreateAttemptInput struct {
	EmpNo       string
	ClientID    string
	RedirectURI string
	State       string
}

// ResolveAttemptInput is the card's answer to a pending challenge. PublicKey
// and Ciphertext arrive hex-encoded on the wire.
type ResolveAttemptInput struct {
	AttemptID  string
	ClientID   string
	PublicKey  string
	Ciphertext string
}

// StatusProjection is what a polling client may see of an attempt. It never
// includes key material.
type StatusProjection struct {
	Status           domain.AttemptStatus `json:"status"`
	SessionID        string               `json:"s_id,omitempty"`
	Error            string               `json:"error,omitempty"`
	ErrorDescription string               `json:"error_description,omitempty"`
}

// AttemptService drives the NFC challenge-response attempt lifecycle.
type AttemptService struct {
	attempts   AttemptStore
	sessions   SessionStore
	employees  directory.EmployeeDirectory
	services   directory.ServiceDirectory
	engine     ChallengeEngine
	dispatcher Dispatcher
	attemptTTL time.Duration
	sessionTTL time.Duration
	logger     *zap.Logger
}

func NewAttemptService(
	attempts AttemptStore,
	sessions SessionStore,
	employees directory.EmployeeDirectory,
	services directory.ServiceDirectory,
	engine ChallengeEngine,
	dispatcher Dispatcher,
	attemptTTL time.Duration,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:   attempts,
		sessions:   sessions,
		employees:  employees,
		services:   services,
		engine:     engine,
		dispatcher: dispatcher,
		attemptTTL: attemptTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Create validates the requesting identity and client, generates the
// challenge, persists the pending attempt and pushes the challenge to the
// employee's device. A push delivery failure is returned to the caller but
// the attempt is not rolled back; it stays pending until its TTL expires.
func (s *AttemptService) Create(ctx context.Context, in CreateAttemptInput) (string, error) {
	ctx, span := startSpan(ctx, "AttemptService.Create")
	defer span.End()

	if _, err := s.employees.EmployeeByNumber(ctx, in.EmpNo); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrUnknownEmployee
		}
		span.RecordError(err)
		return "", fmt.Errorf("look up employee: %w", err)
	}

	svc, err := s.services.ServiceByClientAndRedirect(ctx, in.ClientID, in.RedirectURI)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrUnknownClient
		}
		span.RecordError(err)
		return "", fmt.Errorf("look up client: %w", err)
	}

	ch, err := s.engine.Begin()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generate challenge: %w", err)
	}

	attemptID := uuid.NewString()
	attempt := domain.AuthAttempt{
		EmpNo:            in.EmpNo,
		ClientID:         in.ClientID,
		RedirectURI:      in.RedirectURI,
		State:            in.State,
		Status:           domain.AttemptPending,
		ServerPrivateKey: hex.EncodeToString(ch.PrivateKey),
		Nonce:            hex.EncodeToString(ch.Nonce),
	}
	if err := s.attempts.Put(ctx, attemptID, attempt, s.attemptTTL); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("persist attempt: %w", err)
	}

	msg := notify.ChallengeMessage{
		Message:     challengePushMessage,
		AttemptID:   attemptID,
		EmpNo:       in.EmpNo,
		ClientID:    in.ClientID,
		ServiceName: svc.Name,
		Data:        hex.EncodeToString(ch.Payload),
	}
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		span.RecordError(err)
		s.logger.Warn("challenge push delivery failed",
			zap.String("attempt_id", attemptID),
			zap.Error(err),
		)
		return "", err
	}

	s.logger.Info("authentication attempt created",
		zap.String("attempt_id", attemptID),
		zap.String("client_id", in.ClientID),
	)
	return attemptID, nil
}

// Resolve verifies the card's response and transitions the attempt to its
// terminal state. Exactly one caller wins the terminal transition; a loser
// gets ErrAttemptNotPending and never creates a session.
func (s *AttemptService) Resolve(ctx context.Context, in ResolveAttemptInput) error {
	ctx, span := startSpan(ctx, "AttemptService.Resolve")
	defer span.End()

	attempt, err := s.attempts.Get(ctx, in.AttemptID)
	if err != nil {
		return err
	}
	if attempt.ClientID != in.ClientID {
		return domain.ErrClientMismatch
	}
	if attempt.Status != domain.AttemptPending {
		return domain.ErrAttemptNotPending
	}

	verified, verr := s.verifyResponse(ctx, attempt, in)
	if verr != nil && !errors.Is(verr, domain.ErrDecryptionFailed) {
		span.RecordError(verr)
		return verr
	}

	if verr != nil || !verified {
		if _, err := s.attempts.UpdateTerminal(ctx, in.AttemptID, func(a *domain.AuthAttempt) {
			a.Status = domain.AttemptFailed
			a.Error = "access_denied"
			a.ErrorDescription = "Card response verification failed."
		}); err != nil {
			return err
		}
		s.logger.Warn("attempt resolved as failed", zap.String("attempt_id", in.AttemptID))
		return domain.ErrDecryptionFailed
	}

	sessionID := uuid.NewString()
	if _, err := s.attempts.UpdateTerminal(ctx, in.AttemptID, func(a *domain.AuthAttempt) {
		a.Status = domain.AttemptSuccess
		a.SessionID = sessionID
	}); err != nil {
		return err
	}

	if err := s.sessions.Put(ctx, sessionID, attempt.EmpNo, s.sessionTTL); err != nil {
		span.RecordError(err)
		return fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("attempt resolved as success",
		zap.String("attempt_id", in.AttemptID),
		zap.String("emp_no", attempt.EmpNo),
	)
	return nil
}

// verifyResponse checks the presented public key against the employee's
// registered card key, then runs the challenge verification. Malformed input
// collapses into ErrDecryptionFailed like any other crypto failure.
func (s *AttemptService) verifyResponse(ctx context.Context, attempt domain.AuthAttempt, in ResolveAttemptInput) (bool, error) {
	registered, err := s.employees.PublicKeyByEmployee(ctx, attempt.EmpNo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrEmployeeKeyNotFound
		}
		return false, fmt.Errorf("look up card key: %w", err)
	}

	devicePub, err := hex.DecodeString(in.PublicKey)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}
	ciphertext, err := hex.DecodeString(in.Ciphertext)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}
	if !bytes.Equal(devicePub, registered) {
		return false, domain.ErrDecryptionFailed
	}

	privateKey, err := hex.DecodeString(attempt.ServerPrivateKey)
	if err != nil {
		return false, fmt.Errorf("%w: attempt key material", domain.ErrStateCorrupted)
	}
	nonce, err := hex.DecodeString(attempt.Nonce)
	if err != nil {
		return false, fmt.Errorf("%w: attempt nonce", domain.ErrStateCorrupted)
	}

	return s.engine.Verify(privateKey, devicePub, ciphertext, nonce)
}

// Status projects the attempt state for the polling client. A missing
// attempt reads as expired, never as an error.
func (s *AttemptService) Status(ctx context.Context, attemptID, clientID string) (StatusProjection, error) {
	ctx, span := startSpan(ctx, "AttemptService.Status")
	defer span.End()

	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return StatusProjection{Status: domain.AttemptExpired}, nil
		}
		span.RecordError(err)
		return StatusProjection{}, err
	}
	if attempt.ClientID != clientID {
		return StatusProjection{}, domain.ErrClientMismatch
	}

	return StatusProjection{
		Status:           attempt.Status,
		SessionID:        attempt.SessionID,
		Error:            attempt.Error,
		ErrorDescription: attempt.ErrorDescription,
	}, nil
}
