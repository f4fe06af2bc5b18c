package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/directory"
	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// AuthorizeInput carries the query parameters of an authorization request.
type AuthorizeInput struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	AttemptID    string
}

// AuthorizeService exchanges a successfully resolved attempt for a one-time
// authorization code, delivered as a redirect to the registered callback.
type AuthorizeService struct {
	attempts AttemptStore
	codes    CodeStore
	services directory.ServiceDirectory
	codeTTL  time.Duration
	logger   *zap.Logger
}

func NewAuthorizeService(
	attempts AttemptStore,
	codes CodeStore,
	services directory.ServiceDirectory,
	codeTTL time.Duration,
	logger *zap.Logger,
) *AuthorizeService {
	return &AuthorizeService{
		attempts: attempts,
		codes:    codes,
		services: services,
		codeTTL:  codeTTL,
		logger:   logger,
	}
}

// Authorize returns the redirect URL carrying the authorization code. Errors
// are *OAuthError values: once the client/redirect pair has been validated
// against the directory the redirect target is trusted and errors travel as
// 302s with error query parameters; before that point they are answered
// directly, since no trusted target exists.
func (s *AuthorizeService) Authorize(ctx context.Context, in AuthorizeInput) (string, error) {
	ctx, span := startSpan(ctx, "AuthorizeService.Authorize")
	defer span.End()

	if _, err := s.services.ServiceByClientAndRedirect(ctx, in.ClientID, in.RedirectURI); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", newOAuthError("invalid_client", "Unknown client_id or unregistered redirect_uri.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return "", fmt.Errorf("look up client: %w", err)
	}

	if in.ResponseType != "code" {
		return "", newOAuthRedirectError(in.RedirectURI, in.State,
			"invalid_request", "Only response_type=code is supported.")
	}
	if in.AttemptID == "" {
		return "", newOAuthRedirectError(in.RedirectURI, in.State,
			"access_denied", "Authentication required.")
	}

	attempt, err := s.attempts.Get(ctx, in.AttemptID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return "", newOAuthRedirectError(in.RedirectURI, in.State,
				"access_denied", "Authentication attempt expired or not found.")
		}
		span.RecordError(err)
		return "", fmt.Errorf("load attempt: %w", err)
	}

	if attempt.ClientID != in.ClientID || attempt.RedirectURI != in.RedirectURI || attempt.State != in.State {
		return "", newOAuthRedirectError(in.RedirectURI, in.State,
			"access_denied", "Authentication attempt does not match this request.")
	}
	if attempt.Status != domain.AttemptSuccess || attempt.SessionID == "" {
		return "", newOAuthRedirectError(in.RedirectURI, in.State,
			"access_denied", "Authentication was not completed successfully.")
	}

	code := domain.AuthorizationCode{
		Code:        uuid.NewString(),
		ClientID:    in.ClientID,
		RedirectURI: in.RedirectURI,
		State:       in.State,
		SessionID:   attempt.SessionID,
	}
	if err := s.codes.Put(ctx, code, s.codeTTL); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("persist authorization code: %w", err)
	}

	// A resolved attempt is single-use; dropping it keeps the code the only
	// artifact of this login.
	if err := s.attempts.Delete(ctx, in.AttemptID); err != nil {
		s.logger.Warn("failed to delete redeemed attempt",
			zap.String("attempt_id", in.AttemptID),
			zap.Error(err),
		)
	}

	target, err := url.Parse(in.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}
	q := target.Query()
	q.Set("code", code.Code)
	if in.State != "" {
		q.Set("state", in.State)
	}
	target.RawQuery = q.Encode()

	s.logger.Info("authorization code issued", zap.String("client_id", in.ClientID))
	return target.String(), nil
}
