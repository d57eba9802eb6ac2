// Package storage persists the two records of the age gate: the short-lived
// OIDC state of a pending authorization request and the long-lived
// verification record. Both live behind a Backend, so the same Storage works
// over cookies, process memory or a remote store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/serviceerr"
)

const (
	DefaultKeyPrefix = "aw_"

	keyVerified  = "verified"
	keyOIDCState = "oidc_state"
)

type Option func(*Storage)

// WithStateBackend keeps the OIDC state in b instead of the verification backend.
func WithStateBackend(b Backend) Option {
	return func(s *Storage) { s.state = b }
}

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Storage) { s.prefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// Storage is bound to a single user or session and must not be shared
// between sessions.
type Storage struct {
	verification Backend
	state        Backend
	prefix       string
	now          func() time.Time

	// takeMu serialises get+remove for state backends that are not a Taker.
	takeMu sync.Mutex
}

func New(verification Backend, opts ...Option) *Storage {
	s := &Storage{
		verification: verification,
		state:        verification,
		prefix:       DefaultKeyPrefix,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// SetVerification stores rec with an expiry of now + rec.ExpiresIn.
func (s *Storage) SetVerification(ctx context.Context, rec VerificationRecord) error {
	lifetime := rec.lifetime()
	rec.ExpiresIn = int64(lifetime / time.Second)
	rec.ExpiryTimestamp = s.now().Add(lifetime).UnixMilli()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding verification record: %w", err)
	}

	if err := s.verification.Set(ctx, s.prefix+keyVerified, payload, lifetime); err != nil {
		return fmt.Errorf("storing verification record: %w", err)
	}

	return nil
}

// Verification returns the stored record, or nil when there is none.
// Expired and undecodable records are purged and reported as absent.
func (s *Storage) Verification(ctx context.Context) (*VerificationRecord, error) {
	raw, err := s.verification.Get(ctx, s.prefix+keyVerified)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) {
			return nil, nil
		}
		if !errors.Is(err, serviceerr.ErrStorageCorrupted) {
			return nil, fmt.Errorf("loading verification record: %w", err)
		}

		slogctx.Warn(ctx, "Purging unreadable verification record", "error", err)
		return nil, s.ClearVerification(ctx)
	}

	var rec VerificationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		slogctx.Warn(ctx, "Purging malformed verification record", "error", err)
		return nil, s.ClearVerification(ctx)
	}

	if rec.Expired(s.now()) {
		slogctx.Debug(ctx, "Verification record expired")
		return nil, s.ClearVerification(ctx)
	}

	return &rec, nil
}

// VerificationToken returns the access token of a valid record or "".
func (s *Storage) VerificationToken(ctx context.Context) (string, error) {
	rec, err := s.Verification(ctx)
	if err != nil || rec == nil {
		return "", err
	}

	return rec.AccessToken, nil
}

func (s *Storage) ClearVerification(ctx context.Context) error {
	if err := s.verification.Remove(ctx, s.prefix+keyVerified); err != nil {
		return fmt.Errorf("clearing verification record: %w", err)
	}

	return nil
}

// SetOIDCState stores the pending authorization request until state.Expiry.
func (s *Storage) SetOIDCState(ctx context.Context, state OIDCState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding oidc state: %w", err)
	}

	ttl := state.Expiry.Sub(s.now())
	if ttl <= 0 {
		return serviceerr.ErrStateExpired
	}

	if err := s.state.Set(ctx, s.prefix+keyOIDCState, payload, ttl); err != nil {
		return fmt.Errorf("storing oidc state: %w", err)
	}

	return nil
}

// TakeOIDCState reads and invalidates the stored state in one step.
// It returns nil when no usable state exists.
func (s *Storage) TakeOIDCState(ctx context.Context) (*OIDCState, error) {
	raw, err := s.take(ctx, s.prefix+keyOIDCState)
	if err != nil {
		switch {
		case errors.Is(err, serviceerr.ErrNotFound):
			return nil, nil
		case errors.Is(err, serviceerr.ErrStorageCorrupted):
			slogctx.Warn(ctx, "Discarding unreadable oidc state", "error", err)
			return nil, s.ClearOIDCState(ctx)
		default:
			return nil, fmt.Errorf("taking oidc state: %w", err)
		}
	}

	var state OIDCState
	if err := json.Unmarshal(raw, &state); err != nil {
		slogctx.Warn(ctx, "Discarding malformed oidc state", "error", err)
		return nil, nil
	}

	if !state.Expiry.IsZero() && s.now().After(state.Expiry) {
		slogctx.Debug(ctx, "OIDC state expired")
		return nil, nil
	}

	return &state, nil
}

func (s *Storage) ClearOIDCState(ctx context.Context) error {
	if err := s.state.Remove(ctx, s.prefix+keyOIDCState); err != nil {
		return fmt.Errorf("clearing oidc state: %w", err)
	}

	return nil
}

func (s *Storage) take(ctx context.Context, key string) ([]byte, error) {
	if t, ok := s.state.(Taker); ok {
		return t.Take(ctx, key)
	}

	s.takeMu.Lock()
	defer s.takeMu.Unlock()

	raw, err := s.state.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := s.state.Remove(ctx, key); err != nil {
		return nil, fmt.Errorf("invalidating %s: %w", key, err)
	}

	return raw, nil
}
