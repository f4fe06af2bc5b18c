// Package token issues and verifies the HS256 access/refresh token pair bound
// to a session. Access and refresh tokens are signed with separate secrets so
// one can never stand in for the other.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// Pair is one issued access/refresh token pair.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Signer mints and verifies session-bound JWTs.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// AccessTTL reports the configured access token lifetime.
func (s *Signer) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// IssuePair mints an access and refresh token with subject sessionID.
func (s *Signer) IssuePair(sessionID string) (Pair, error) {
	access, err := s.issue(sessionID, s.accessSecret, s.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.issue(sessionID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccess mints a standalone access token, used during refresh rotation.
func (s *Signer) IssueAccess(sessionID string) (string, error) {
	return s.issue(sessionID, s.accessSecret, s.accessTTL)
}

// IssueRefresh mints a standalone refresh token.
func (s *Signer) IssueRefresh(sessionID string) (string, error) {
	return s.issue(sessionID, s.refreshSecret, s.refreshTTL)
}

func (s *Signer) issue(sessionID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess validates an access token and returns its claims. All parse
// and signature failures collapse into domain.ErrTokenInvalid.
func (s *Signer) VerifyAccess(tokenString string) (*jwt.RegisteredClaims, error) {
	return s.verify(tokenString, s.accessSecret)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (s *Signer) VerifyRefresh(tokenString string) (*jwt.RegisteredClaims, error) {
	return s.verify(tokenString, s.refreshSecret)
}

func (s *Signer) verify(tokenString string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrTokenInvalid)
	}
	return claims, nil
}

// RemainingValidity computes how long a verified token is still good for,
// used to size the blacklist TTL on logout.
func RemainingValidity(claims *jwt.RegisteredClaims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}
