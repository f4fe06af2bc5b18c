// Package store holds the Redis-backed ephemeral state of the authentication
// server: login attempts, authorization codes, refresh token mirrors, session
// mappings and the revoked-token blacklist. Every key carries a TTL; expiry is
// the only cancellation mechanism in the protocol.
package store

// Key prefixes. The session maps are written as a forward/reverse pair with
// equal TTLs; the pair is best-effort, expiry reconciles a torn write.
const (
	attemptPrefix    = "nfc_attempt:"
	codePrefix       = "auth_code:"
	refreshPrefix    = "refresh_token:"
	sessionEmpPrefix = "sess_emp:"
	empSessionPrefix = "emp_sess:"
	blacklistPrefix  = "blacklist:"
)
