// Package pkce generates the random values of an authorization request:
// state, nonce, session identifiers and the PKCE verifier/challenge pair (RFC 7636).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/openkcm/age-gate/internal/serviceerr"
)

const MethodS256 = "S256"

// SessionIDLength is the length of a hex encoded session id.
const SessionIDLength = 2 * sessionIDBytes

const (
	// stateBytes gives 128 bits of entropy for state and nonce values.
	stateBytes     = 16
	sessionIDBytes = 32
	// verifierBytes encodes to 86 characters, inside the 43..128 range of RFC 7636.
	verifierBytes = 64
)

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source draws all randomness from Entropy. A zero Source has no entropy
// and fails every call with serviceerr.ErrNoSecureRandom.
type Source struct {
	Entropy io.Reader
}

// NewSource returns a Source backed by crypto/rand.
func NewSource() Source {
	return Source{Entropy: rand.Reader}
}

func (p Source) randBytes(n int) ([]byte, error) {
	if p.Entropy == nil {
		return nil, serviceerr.ErrNoSecureRandom
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(p.Entropy, b); err != nil {
		return nil, errors.Join(serviceerr.ErrNoSecureRandom, err)
	}

	return b, nil
}

// RandomString returns n random bytes hex encoded.
func (p Source) RandomString(n int) (string, error) {
	b, err := p.randBytes(n)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Verifier returns a new PKCE code verifier.
func (p Source) Verifier() (string, error) {
	b, err := p.randBytes(verifierBytes)
	if err != nil {
		return "", fmt.Errorf("generating pkce verifier: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge derives the S256 code challenge of verifier.
func (p Source) Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (p Source) PKCE() (PKCE, error) {
	verifier, err := p.Verifier()
	if err != nil {
		return PKCE{}, err
	}

	return PKCE{
		Verifier:  verifier,
		Challenge: p.Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

func (p Source) State() (string, error) {
	return p.RandomString(stateBytes)
}

func (p Source) Nonce() (string, error) {
	return p.RandomString(stateBytes)
}

func (p Source) SessionID() (string, error) {
	return p.RandomString(sessionIDBytes) // 256 bits
}
