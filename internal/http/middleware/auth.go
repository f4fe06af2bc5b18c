package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/OneCard-OSS/OneCard/internal/service"
)

const (
	sessionIDKey   = "sessionID"
	bearerTokenKey = "bearerToken"
)

// Auth validates the Authorization header and attaches the session id.
type Auth struct {
	Tokens *service.TokenService
}

// RequireBearer ensures the request carries a valid, unrevoked access token.
func (m *Auth) RequireBearer(c *gin.Context) {
	token, ok := BearerToken(c.Request)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	sessionID, err := m.Tokens.VerifyBearer(c.Request.Context(), token)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}

	c.Set(sessionIDKey, sessionID)
	c.Set(bearerTokenKey, token)
	c.Next()
}

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetSessionID returns the session id attached by RequireBearer.
func GetSessionID(c *gin.Context) (string, bool) {
	value, ok := c.Get(sessionIDKey)
	if !ok {
		return "", false
	}
	sessionID, ok := value.(string)
	return sessionID, ok
}

// GetBearerToken returns the raw access token attached by RequireBearer.
func GetBearerToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(bearerTokenKey)
	if !ok {
		return "", false
	}
	token, ok := value.(string)
	return token, ok
}
