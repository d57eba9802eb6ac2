package storage

import "time"

// DefaultVerificationLifetime applies when the provider omits expires_in.
const DefaultVerificationLifetime = 24 * time.Hour

// VerificationRecord is the persisted outcome of a successful verification.
// ExpiryTimestamp is an absolute time in Unix milliseconds computed at write time.
type VerificationRecord struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int64  `json:"expires_in"`
	Scope           string `json:"scope,omitempty"`
	IsSynthetic     bool   `json:"is_synthetic,omitempty"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
}

func (r VerificationRecord) Expired(now time.Time) bool {
	return now.UnixMilli() > r.ExpiryTimestamp
}

func (r VerificationRecord) lifetime() time.Duration {
	if r.ExpiresIn <= 0 {
		return DefaultVerificationLifetime
	}

	return time.Duration(r.ExpiresIn) * time.Second
}

// OIDCState aligns an authorization request with its callback.
// ReturnURL is the deep link to restore, never the redirect URI.
type OIDCState struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	Nonce     string    `json:"nonce"`
	ReturnURL string    `json:"returnUrl"`
	Expiry    time.Time `json:"expiry"`
}
