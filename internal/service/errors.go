package service

import (
	"fmt"
	"net/http"
)

// OAuthError is a failure expressed in the OAuth2 error vocabulary. When
// RedirectURI is set the error must be delivered as a 302 with error query
// parameters; otherwise no trusted redirect target exists and the handler
// responds directly with Status.
type OAuthError struct {
	Code        string
	Description string
	Status      int
	RedirectURI string
	State       string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{Code: code, Description: description, Status: status}
}

func newOAuthRedirectError(redirectURI, state, code, description string) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      http.StatusFound,
		RedirectURI: redirectURI,
		State:       state,
	}
}
