// Package gate orchestrates the OAuth2 authorization code flow with PKCE
// against an age verification provider and decides what a visitor gets to
// see.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/network"
	"github.com/openkcm/age-gate/internal/pkce"
	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

const (
	// SyntheticAccessToken marks a record issued for a region that does not
	// require verification.
	SyntheticAccessToken = "region_exempt_placeholder"
	// RegionExemptDescription is the error_description sent with
	// access_denied when the region of the visitor is exempt.
	RegionExemptDescription = "Region does not require verification"

	syntheticLifetime = 24 * time.Hour
)

type Option func(*Manager)

func WithHost(h Host) Option {
	return func(m *Manager) { m.host = h }
}

func WithRenderer(r Renderer) Option {
	return func(m *Manager) { m.renderer = r }
}

func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

func WithNetworkClient(c *network.Client) Option {
	return func(m *Manager) { m.network = c }
}

func WithSource(s pkce.Source) Option {
	return func(m *Manager) { m.pkce = s }
}

func WithAuditLogger(a *otlpaudit.AuditLogger) Option {
	return func(m *Manager) { m.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager runs the flow for one visitor. It owns its Storage, so a Manager
// must not be shared between sessions.
type Manager struct {
	cfg      Config
	storage  *storage.Storage
	strategy Strategy

	host     Host
	renderer Renderer
	hooks    Hooks
	network  *network.Client
	pkce     pkce.Source
	audit    *otlpaudit.AuditLogger
	now      func() time.Time
}

// AuthRequest is a generated authorization request.
type AuthRequest struct {
	URL   string
	State string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

type userInfo struct {
	// AgeVerified is kept untyped: only a JSON true passes.
	AgeVerified any    `json:"age_verified"`
	Sub         string `json:"sub"`
}

func NewManager(cfg Config, store *storage.Storage, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: missing storage", serviceerr.ErrConfiguration)
	}

	m := &Manager{
		cfg:     cfg.withDefaults(),
		storage: store,
		network: network.NewClient(nil),
		pkce:    pkce.NewSource(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.cfg.Render && m.renderer == nil {
		return nil, fmt.Errorf("%w: rendering enabled without a renderer", serviceerr.ErrConfiguration)
	}

	switch m.cfg.Mode {
	case ModeAPI:
		m.strategy = apiStrategy{}
	default:
		m.strategy = overlayStrategy{}
	}

	return m, nil
}

// GenerateAuthURL mints a new authorization request and stores its state.
// The deep link is the current location of the host, or the redirect URI
// without a host.
func (m *Manager) GenerateAuthURL(ctx context.Context) (AuthRequest, error) {
	state, err := m.pkce.State()
	if err != nil {
		return AuthRequest{}, fmt.Errorf("generating state: %w", err)
	}

	nonce, err := m.pkce.Nonce()
	if err != nil {
		return AuthRequest{}, fmt.Errorf("generating nonce: %w", err)
	}

	p, err := m.pkce.PKCE()
	if err != nil {
		return AuthRequest{}, err
	}

	returnURL := m.cfg.RedirectURI
	if m.host != nil {
		returnURL = m.host.CurrentLocation()
	}

	if err := m.storage.SetOIDCState(ctx, storage.OIDCState{
		State:     state,
		Verifier:  p.Verifier,
		Nonce:     nonce,
		ReturnURL: returnURL,
		Expiry:    m.now().Add(m.cfg.StateTTL),
	}); err != nil {
		return AuthRequest{}, fmt.Errorf("storing oidc state: %w", err)
	}

	authURL, err := url.Parse(m.cfg.Endpoints.Auth)
	if err != nil {
		return AuthRequest{}, fmt.Errorf("parsing auth endpoint: %w", err)
	}

	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", m.cfg.ClientID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("scope", Scope)
	q.Set("state", state)
	q.Set("code_challenge", p.Challenge)
	q.Set("code_challenge_method", p.Method)
	q.Set("nonce", nonce)
	authURL.RawQuery = q.Encode()

	return AuthRequest{URL: authURL.String(), State: state}, nil
}

// HandleCallback consumes the stored state and exchanges code for a token.
// On success it stores the verification record and returns the deep link.
// A missing or expired state returns "" and no error.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) (string, error) {
	stored, err := m.takeState(ctx, state)
	if err != nil || stored == nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", m.cfg.ClientID)
	form.Set("redirect_uri", m.cfg.RedirectURI)
	form.Set("code", code)
	form.Set("code_verifier", stored.Verifier)
	if m.cfg.ClientSecret != "" {
		form.Set("client_secret", m.cfg.ClientSecret)
	}

	body, err := m.network.PostForm(ctx, m.cfg.Endpoints.Token, form)
	if err != nil {
		m.auditFailure(ctx, "token exchange failed")
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}

	var token tokenResponse
	if err := body.Decode(&token); err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", &serviceerr.Error{Err: serviceerr.CodeServerError, Description: "token response without access_token"}
	}

	body, err = m.network.Get(ctx, m.cfg.Endpoints.Userinfo, token.AccessToken)
	if err != nil {
		m.auditFailure(ctx, "userinfo request failed")
		return "", fmt.Errorf("fetching userinfo: %w", err)
	}

	var info userInfo
	if err := body.Decode(&info); err != nil {
		return "", fmt.Errorf("reading userinfo response: %w", err)
	}

	ctx = slogctx.With(ctx, "sub", info.Sub)

	if verified, ok := info.AgeVerified.(bool); !ok || !verified {
		slogctx.Error(ctx, "Age requirement not met")
		m.auditFailure(ctx, "age requirement not met")
		return "", serviceerr.ErrAgeRequirement
	}

	if err := m.storage.SetVerification(ctx, storage.VerificationRecord{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		Scope:       token.Scope,
	}); err != nil {
		return "", fmt.Errorf("storing verification: %w", err)
	}

	slogctx.Info(ctx, "Visitor verified")
	m.auditSuccess(ctx, info.Sub)

	return stored.ReturnURL, nil
}

// HandleError consumes the stored state for an error callback. A regional
// exemption stores a synthetic record and returns the deep link. Every other
// error is returned as a denial.
func (m *Manager) HandleError(ctx context.Context, oauthErr, description, state string) (string, error) {
	stored, err := m.takeState(ctx, state)
	if err != nil || stored == nil {
		return "", err
	}

	if oauthErr == string(serviceerr.CodeAccessDenied) && description == RegionExemptDescription {
		if err := m.storage.SetVerification(ctx, storage.VerificationRecord{
			AccessToken: SyntheticAccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int64(syntheticLifetime / time.Second),
			Scope:       Scope,
			IsSynthetic: true,
		}); err != nil {
			return "", fmt.Errorf("storing synthetic verification: %w", err)
		}

		slogctx.Info(ctx, "Region exempt from verification")
		m.auditSuccess(ctx, SyntheticAccessToken)

		return stored.ReturnURL, nil
	}

	slogctx.Warn(ctx, "Verification denied by provider", "error", oauthErr, "error_description", description)
	m.auditFailure(ctx, oauthErr)

	return "", errors.Join(serviceerr.ErrProviderDenial, &serviceerr.Error{
		Err:         serviceerr.Code(oauthErr),
		Description: description,
	})
}

// Logout clears the verification record.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.storage.ClearVerification(ctx); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}

	slogctx.Info(ctx, "Verification cleared")

	return nil
}

// takeState reads and invalidates the stored state and compares it with
// state. It returns nil without error when nothing is pending.
func (m *Manager) takeState(ctx context.Context, state string) (*storage.OIDCState, error) {
	stored, err := m.storage.TakeOIDCState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading oidc state: %w", err)
	}

	if stored == nil {
		slogctx.Debug(ctx, "No pending authorization request")
		return nil, nil
	}

	if stored.State != state {
		slogctx.Warn(ctx, "Rejecting callback with mismatched state")
		m.auditFailure(ctx, "state mismatch")
		return nil, serviceerr.ErrStateMismatch
	}

	return stored, nil
}
