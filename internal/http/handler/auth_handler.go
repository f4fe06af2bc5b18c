package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/domain"
	"github.com/OneCard-OSS/OneCard/internal/http/middleware"
	"github.com/OneCard-OSS/OneCard/internal/notify"
	"github.com/OneCard-OSS/OneCard/internal/service"
)

// AuthHandler exposes the NFC login and OAuth endpoints.
type AuthHandler struct {
	Attempts  *service.AttemptService
	Authorize *service.AuthorizeService
	Tokens    *service.TokenService
	Discovery *service.DiscoveryService
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(attempts *service.AttemptService, authorize *service.AuthorizeService, tokens *service.TokenService, discovery *service.DiscoveryService) *AuthHandler {
	return &AuthHandler{Attempts: attempts, Authorize: authorize, Tokens: tokens, Discovery: discovery}
}

// Login creates an authentication attempt and pushes the challenge to the
// employee's device.
func (h *AuthHandler) Login(c *gin.Context) {
	var body struct {
		EmpNo string `json:"emp_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "emp_no is required."})
		return
	}

	clientID := strings.TrimSpace(c.Query("client_id"))
	redirectURI := strings.TrimSpace(c.Query("redirect_uri"))
	if clientID == "" || redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "client_id and redirect_uri are required."})
		return
	}

	attemptID, err := h.Attempts.Create(c.Request.Context(), service.CreateAttemptInput{
		EmpNo:       strings.TrimSpace(body.EmpNo),
		ClientID:    clientID,
		RedirectURI: redirectURI,
		State:       c.Query("state"),
	})
	if err != nil {
		h.respondAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempt_id": attemptID})
}

// CardResponse resolves a pending attempt with the card's answer.
func (h *AuthHandler) CardResponse(c *gin.Context) {
	var body struct {
		AttemptID  string `json:"attempt_id" binding:"required"`
		PublicKey  string `json:"pubkey" binding:"required"`
		Ciphertext string `json:"ciphertext" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "attempt_id, pubkey and ciphertext are required."})
		return
	}

	clientID := strings.TrimSpace(c.Query("client_id"))
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "client_id is required."})
		return
	}

	err := h.Attempts.Resolve(c.Request.Context(), service.ResolveAttemptInput{
		AttemptID:  body.AttemptID,
		ClientID:   clientID,
		PublicKey:  body.PublicKey,
		Ciphertext: body.Ciphertext,
	})
	if err != nil {
		h.respondAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Authentication accepted."})
}

// NFCStatus reports the state of an attempt to the polling client.
func (h *AuthHandler) NFCStatus(c *gin.Context) {
	attemptID := strings.TrimSpace(c.Query("attempt_id"))
	clientID := strings.TrimSpace(c.Query("client_id"))
	if attemptID == "" || clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "attempt_id and client_id are required."})
		return
	}

	status, err := h.Attempts.Status(c.Request.Context(), attemptID, clientID)
	if err != nil {
		h.respondAttemptError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// OAuthAuthorize exchanges a resolved attempt for an authorization code.
func (h *AuthHandler) OAuthAuthorize(c *gin.Context) {
	target, err := h.Authorize.Authorize(c.Request.Context(), service.AuthorizeInput{
		ResponseType: strings.TrimSpace(c.Query("response_type")),
		ClientID:     strings.TrimSpace(c.Query("client_id")),
		RedirectURI:  strings.TrimSpace(c.Query("redirect_uri")),
		State:        c.Query("state"),
		AttemptID:    strings.TrimSpace(c.Query("attempt_id")),
	})
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, target)
}

// Token handles the token endpoint grants.
func (h *AuthHandler) Token(c *gin.Context) {
	var req struct {
		GrantType    string `form:"grant_type" binding:"required"`
		Code         string `form:"code"`
		ClientID     string `form:"client_id"`
		ClientSecret string `form:"client_secret"`
		RedirectURI  string `form:"redirect_uri"`
		RefreshToken string `form:"refresh_token"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid token request."})
		return
	}

	var (
		resp service.TokenResponse
		err  error
	)
	switch strings.ToLower(req.GrantType) {
	case "authorization_code":
		resp, err = h.Tokens.AuthorizationCodeGrant(c.Request.Context(), service.CodeGrantInput{
			Code:         req.Code,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RedirectURI:  req.RedirectURI,
		})
	case "refresh_token":
		resp, err = h.Tokens.RefreshGrant(c.Request.Context(), service.RefreshGrantInput{
			RefreshToken: req.RefreshToken,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type", "error_description": "Unsupported grant type."})
		return
	}

	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented access token. Revoking an already-invalid
// token is still a success.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c.Request)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	if err := h.Tokens.Logout(c.Request.Context(), token); err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}

// UserInfo returns the employee behind a bearer token.
func (h *AuthHandler) UserInfo(c *gin.Context) {
	token, ok := middleware.GetBearerToken(c)
	if !ok {
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	info, err := h.Tokens.CurrentUser(c.Request.Context(), token)
	if err != nil {
		h.respondOAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

// OpenIDConfig returns the OIDC discovery document.
func (h *AuthHandler) OpenIDConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.Discovery.OpenIDConfigurationResponse(schemeOnly(c.Request), c.Request.Host))
}

func (h *AuthHandler) respondAttemptError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, domain.ErrUnknownEmployee), errors.Is(err, domain.ErrUnknownClient):
		logger.Warn("login request rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, domain.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": err.Error()})
	case errors.Is(err, domain.ErrClientMismatch),
		errors.Is(err, domain.ErrAttemptNotPending),
		errors.Is(err, domain.ErrEmployeeKeyNotFound),
		errors.Is(err, domain.ErrDecryptionFailed):
		logger.Warn("attempt resolution rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access_denied", "error_description": err.Error()})
	case errors.Is(err, notify.ErrPushTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "push_timeout", "error_description": "Push notification server timed out."})
	case errors.Is(err, notify.ErrPushUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push_unavailable", "error_description": "Push notification server is unreachable."})
	case errors.Is(err, notify.ErrPushRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "push_rejected", "error_description": "Push notification server rejected the request."})
	default:
		logger.Error("attempt handling failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}

// respondOAuthError delivers an *OAuthError either as an error redirect to
// the validated callback or as a direct JSON response.
func (h *AuthHandler) respondOAuthError(c *gin.Context, err error) {
	var oauthErr *service.OAuthError
	if !errors.As(err, &oauthErr) {
		zap.L().Error("oauth service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
		return
	}

	if oauthErr.RedirectURI == "" {
		c.JSON(oauthErr.Status, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}

	target, parseErr := url.Parse(oauthErr.RedirectURI)
	if parseErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
		return
	}
	q := target.Query()
	q.Set("error", oauthErr.Code)
	q.Set("error_description", oauthErr.Description)
	if oauthErr.State != "" {
		q.Set("state", oauthErr.State)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}
