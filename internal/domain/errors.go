package domain

import "errors"

// Validation failures: malformed or unresolvable request input.
var (
	ErrUnknownEmployee = errors.New("unknown employee number")
	ErrUnknownClient   = errors.New("unknown client_id or redirect_uri")
)

// Not-found-or-expired: a normal terminal outcome, not a fault.
var (
	ErrAttemptNotFound = errors.New("authentication attempt expired or not found")
	ErrCodeNotFound    = errors.New("authorization code expired or not found")
	ErrSessionNotFound = errors.New("session expired or not found")
)

// Authentication failures, surfaced as 401-equivalents.
var (
	ErrAttemptNotPending   = errors.New("authentication attempt is not pending")
	ErrClientMismatch      = errors.New("client_id does not match this attempt")
	ErrEmployeeKeyNotFound = errors.New("no registered public key for employee")
	ErrDecryptionFailed    = errors.New("challenge decryption failed")
	ErrTokenInvalid        = errors.New("token is invalid or revoked")
)

// ErrStateCorrupted marks an invariant violation in stored state, e.g. a
// schema-version mismatch or a key that vanished between read and write.
var ErrStateCorrupted = errors.New("internal auth state corrupted")
