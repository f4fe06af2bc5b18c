package domain

// AttemptSchemaVersion is bumped whenever the serialized attempt layout changes.
// A mismatch on read means the record was written by an incompatible build and
// is treated as corrupted state, not silently coerced.
const AttemptSchemaVersion = 1

// AttemptStatus enumerates the lifecycle of one NFC authentication attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
	// AttemptExpired is never stored; it is the projection of a missing key.
	AttemptExpired AttemptStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSuccess || s == AttemptFailed
}

// AuthAttempt is one in-flight or recently resolved challenge-response
// handshake, persisted as a JSON blob under a TTL-bound Redis key.
type AuthAttempt struct {
	SchemaVersion int           `json:"v"`
	EmpNo         string        `json:"emp_no"`
	ClientID      string        `json:"client_id"`
	RedirectURI   string        `json:"redirect_uri"`
	State         string        `json:"state,omitempty"`
	Status        AttemptStatus `json:"status"`

	// ServerPrivateKey holds the hex-encoded scalar of the ephemeral ECDH
	// keypair. Present only while Status is pending; cleared on any terminal
	// transition so a resolved attempt never retains key material.
	ServerPrivateKey string `json:"server_private_key,omitempty"`

	// Nonce is the hex-encoded 16-byte challenge fixed at creation.
	Nonce string `json:"challenge"`

	// SessionID is set only on transition to success.
	SessionID string `json:"s_id,omitempty"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
