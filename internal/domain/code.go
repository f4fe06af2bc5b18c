package domain

// CodeSchemaVersion versions the serialized authorization code record.
const CodeSchemaVersion = 1

// AuthorizationCode is a single-use, short-lived grant bound to the request
// parameters it was minted for. Deleted from the store on first redemption.
type AuthorizationCode struct {
	SchemaVersion int    `json:"v"`
	Code          string `json:"code"`
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	State         string `json:"state,omitempty"`
	SessionID     string `json:"session"`
}
