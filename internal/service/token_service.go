package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/directory"
	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/token"
)

// TokenResponse is the token endpoint's success payload for both grants.
type TokenResponse struct {
	TokenType             string `json:"token_type"`
	AccessToken           string `json:"access_token"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
}

// UserInfo is the userinfo endpoint payload.
type UserInfo struct {
	Sub   string `json:"sub"`
	EmpNo string `json:"emp_no"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CodeGrantInput carries the authorization_code grant form fields.
type CodeGrantInput struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// RefreshGrantInput carries the refresh_token grant form fields.
type RefreshGrantInput struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// TokenService implements the token endpoint grants, revocation and the
// userinfo lookup. The refresh mirror in Redis is the source of truth for
// which refresh token is currently live for a session.
type TokenService struct {
	codes     CodeStore
	sessions  SessionStore
	refresh   RefreshStore
	blacklist BlacklistStore
	signer    *token.Signer
	services  directory.ServiceDirectory
	employees directory.EmployeeDirectory
	logger    *zap.Logger
}

func NewTokenService(
	codes CodeStore,
	sessions SessionStore,
	refresh RefreshStore,
	blacklist BlacklistStore,
	signer *token.Signer,
	services directory.ServiceDirectory,
	employees directory.EmployeeDirectory,
	logger *zap.Logger,
) *TokenService {
	return &TokenService{
		codes:     codes,
		sessions:  sessions,
		refresh:   refresh,
		blacklist: blacklist,
		signer:    signer,
		services:  services,
		employees: employees,
		logger:    logger,
	}
}

// AuthorizationCodeGrant redeems a one-time code for a token pair. Client
// credentials are checked before the code is consumed, so a rejected client
// does not burn the code; the GETDEL take keeps redemption exactly-once even
// across concurrent valid requests.
func (s *TokenService) AuthorizationCodeGrant(ctx context.Context, in CodeGrantInput) (TokenResponse, error) {
	ctx, span := startSpan(ctx, "TokenService.AuthorizationCodeGrant")
	defer span.End()

	stored, err := s.codes.Get(ctx, in.Code)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return TokenResponse{}, newOAuthError("invalid_grant", "Authorization code is invalid or expired.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("load authorization code: %w", err)
	}

	if err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret); err != nil {
		return TokenResponse{}, err
	}

	if stored.ClientID != in.ClientID {
		return TokenResponse{}, newOAuthError("invalid_grant", "Authorization code was issued to a different client.", http.StatusBadRequest)
	}
	if stored.RedirectURI != in.RedirectURI {
		return TokenResponse{}, newOAuthError("invalid_grant", "redirect_uri does not match the authorization request.", http.StatusBadRequest)
	}

	if _, err := s.codes.Take(ctx, in.Code); err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return TokenResponse{}, newOAuthError("invalid_grant", "Authorization code is invalid or expired.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("consume authorization code: %w", err)
	}

	pair, err := s.signer.IssuePair(stored.SessionID)
	if err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("issue token pair: %w", err)
	}

	if err := s.refresh.Put(ctx, stored.SessionID, pair.RefreshToken, s.signer.RefreshTTL()); err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("store refresh token: %w", err)
	}
	if err := s.sessions.Extend(ctx, stored.SessionID, s.signer.RefreshTTL()); err != nil {
		s.logger.Warn("failed to extend session on token issue",
			zap.String("s_id", stored.SessionID),
			zap.Error(err),
		)
	}

	s.logger.Info("token pair issued", zap.String("client_id", in.ClientID))
	return TokenResponse{
		TokenType:             "bearer",
		AccessToken:           pair.AccessToken,
		ExpiresIn:             int64(s.signer.AccessTTL().Seconds()),
		RefreshToken:          pair.RefreshToken,
		RefreshTokenExpiresIn: int64(s.signer.RefreshTTL().Seconds()),
	}, nil
}

// authenticateClient checks client credentials against the service registry.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) error {
	svc, err := s.services.ServiceByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return newOAuthError("invalid_client", "Client authentication failed.", http.StatusUnauthorized)
		}
		return fmt.Errorf("look up client: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(svc.ClientSecret), []byte(clientSecret)) != 1 {
		return newOAuthError("invalid_client", "Client authentication failed.", http.StatusUnauthorized)
	}
	return nil
}

// RefreshGrant rotates the refresh token. The presented token must match the
// session's mirror exactly; a stale token revokes the mirror outright, since
// it may mean the token leaked and was already rotated by someone else. The
// rotated token inherits the mirror's remaining lifetime, so the overall
// session window never grows.
func (s *TokenService) RefreshGrant(ctx context.Context, in RefreshGrantInput) (TokenResponse, error) {
	ctx, span := startSpan(ctx, "TokenService.RefreshGrant")
	defer span.End()

	if err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret); err != nil {
		return TokenResponse{}, err
	}

	claims, err := s.signer.VerifyRefresh(in.RefreshToken)
	if err != nil {
		return TokenResponse{}, newOAuthError("invalid_grant", "Refresh token is invalid or expired.", http.StatusBadRequest)
	}
	sessionID := claims.Subject

	mirror, err := s.refresh.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return TokenResponse{}, newOAuthError("invalid_grant", "Refresh token has been revoked.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("load refresh mirror: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(mirror), []byte(in.RefreshToken)) != 1 {
		if err := s.refresh.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("failed to revoke stale refresh mirror",
				zap.String("s_id", sessionID),
				zap.Error(err),
			)
		}
		s.logger.Warn("stale refresh token presented, session revoked", zap.String("s_id", sessionID))
		return TokenResponse{}, newOAuthError("invalid_grant", "Refresh token has been superseded.", http.StatusBadRequest)
	}

	remaining, err := s.refresh.TTL(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return TokenResponse{}, newOAuthError("invalid_grant", "Refresh token has been revoked.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("read refresh ttl: %w", err)
	}

	access, err := s.signer.IssueAccess(sessionID)
	if err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("issue access token: %w", err)
	}
	rotated, err := s.signer.IssueRefresh(sessionID)
	if err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.refresh.Replace(ctx, sessionID, rotated); err != nil {
		span.RecordError(err)
		return TokenResponse{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if err := s.sessions.Extend(ctx, sessionID, remaining); err != nil {
		s.logger.Warn("failed to extend session on refresh",
			zap.String("s_id", sessionID),
			zap.Error(err),
		)
	}

	return TokenResponse{
		TokenType:             "bearer",
		AccessToken:           access,
		ExpiresIn:             int64(s.signer.AccessTTL().Seconds()),
		RefreshToken:          rotated,
		RefreshTokenExpiresIn: int64(remaining.Seconds()),
	}, nil
}

// Logout revokes the session behind an access token. It is idempotent: a
// token that no longer verifies is already out of circulation and counts as
// logged out.
func (s *TokenService) Logout(ctx context.Context, accessToken string) error {
	ctx, span := startSpan(ctx, "TokenService.Logout")
	defer span.End()

	claims, err := s.signer.VerifyAccess(accessToken)
	if err != nil {
		return nil
	}
	sessionID := claims.Subject

	if err := s.blacklist.Add(ctx, accessToken, token.RemainingValidity(claims)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("blacklist access token: %w", err)
	}
	if err := s.refresh.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete refresh mirror on logout",
			zap.String("s_id", sessionID),
			zap.Error(err),
		)
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete session on logout",
			zap.String("s_id", sessionID),
			zap.Error(err),
		)
	}

	s.logger.Info("session logged out", zap.String("s_id", sessionID))
	return nil
}

// CurrentUser resolves a bearer access token to the employee it represents.
func (s *TokenService) CurrentUser(ctx context.Context, accessToken string) (UserInfo, error) {
	ctx, span := startSpan(ctx, "TokenService.CurrentUser")
	defer span.End()

	claims, err := s.signer.VerifyAccess(accessToken)
	if err != nil {
		return UserInfo{}, newOAuthError("invalid_token", "Access token is invalid or expired.", http.StatusUnauthorized)
	}
	revoked, err := s.blacklist.Contains(ctx, accessToken)
	if err != nil {
		span.RecordError(err)
		return UserInfo{}, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return UserInfo{}, newOAuthError("invalid_token", "Access token has been revoked.", http.StatusUnauthorized)
	}

	empNo, err := s.sessions.EmpNo(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return UserInfo{}, newOAuthError("invalid_token", "Session has expired.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return UserInfo{}, fmt.Errorf("load session: %w", err)
	}

	emp, err := s.employees.EmployeeByNumber(ctx, empNo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserInfo{}, newOAuthError("invalid_token", "Employee record no longer exists.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return UserInfo{}, fmt.Errorf("load employee: %w", err)
	}

	return UserInfo{
		Sub:   claims.Subject,
		EmpNo: emp.EmpNo,
		Name:  emp.Name,
		Email: emp.Email,
	}, nil
}

// VerifyBearer validates an access token for middleware use: signature,
// expiry and blacklist, returning the session id.
func (s *TokenService) VerifyBearer(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.signer.VerifyAccess(accessToken)
	if err != nil {
		return "", domain.ErrTokenInvalid
	}
	revoked, err := s.blacklist.Contains(ctx, accessToken)
	if err != nil {
		return "", fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return "", domain.ErrTokenInvalid
	}
	return claims.Subject, nil
}
