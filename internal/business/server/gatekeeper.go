package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/openkcm/common-sdk/pkg/csrf"
	slogctx "github.com/veqryn/slog-context"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/network"
	"github.com/openkcm/age-gate/internal/pkce"
	"github.com/openkcm/age-gate/internal/serviceerr"
	"github.com/openkcm/age-gate/internal/storage"
)

const (
	DefaultSessionCookieName = "age_gate_session"
	ContentPath              = "/api/content"
	LogoutPath               = "/logout"

	csrfFormField = "csrf_token"
	minCSRFKeyLen = 32
)

// BackendFunc returns the verification backend serving a request.
type BackendFunc func(w http.ResponseWriter, r *http.Request) storage.Backend

// SharedBackend serves every request from b.
func SharedBackend(b storage.Backend) BackendFunc {
	return func(http.ResponseWriter, *http.Request) storage.Backend { return b }
}

type Option func(*Gatekeeper)

// WithStateBackend keeps pending authorization requests in b instead of the
// verification backend.
func WithStateBackend(b storage.Backend) Option {
	return func(g *Gatekeeper) { g.state = b }
}

func WithAuditLogger(a *otlpaudit.AuditLogger) Option {
	return func(g *Gatekeeper) { g.audit = a }
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gatekeeper) { g.network = network.NewClient(c) }
}

func WithSource(s pkce.Source) Option {
	return func(g *Gatekeeper) { g.source = s }
}

// Gatekeeper serves the gated site. Every request gets its own gate.Manager
// bound to the session of the visitor.
type Gatekeeper struct {
	cfg           *config.Config
	gateCfg       gate.Config
	verification  BackendFunc
	state         storage.Backend
	network       *network.Client
	audit         *otlpaudit.AuditLogger
	source        pkce.Source
	csrfKey       []byte
	sessionCookie config.CookieTemplate
}

type contentResponse struct {
	HTML string `json:"html"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewGatekeeper(cfg *config.Config, gateCfg gate.Config, verification BackendFunc, csrfKey []byte, opts ...Option) (*Gatekeeper, error) {
	if verification == nil {
		return nil, fmt.Errorf("%w: missing verification backend", serviceerr.ErrConfiguration)
	}
	if len(csrfKey) < minCSRFKeyLen {
		return nil, fmt.Errorf("%w: CSRF secret must be at least %d bytes", serviceerr.ErrConfiguration, minCSRFKeyLen)
	}

	publicURL := strings.TrimSuffix(cfg.HTTP.PublicURL, "/")

	gateCfg.Render = true
	if gateCfg.APIEndpoint == "" {
		gateCfg.APIEndpoint = publicURL + ContentPath
	}
	if gateCfg.Endpoints.Userinfo == "" {
		gateCfg.Endpoints.Userinfo = gate.DefaultUserinfoURL
	}
	if err := gateCfg.Validate(); err != nil {
		return nil, err
	}

	cookie := cfg.AgeGate.SessionCookie
	cookie.HTTPOnly = true

	g := &Gatekeeper{
		cfg:           cfg,
		gateCfg:       gateCfg,
		verification:  verification,
		network:       network.NewClient(nil),
		source:        pkce.NewSource(),
		csrfKey:       csrfKey,
		sessionCookie: cookie.WithDefaults(DefaultSessionCookieName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g, nil
}

func (g *Gatekeeper) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ContentPath, instrument(g.cfg, "Content", g.serveContent))
	mux.HandleFunc("POST "+LogoutPath, instrument(g.cfg, "Logout", g.serveLogout))
	mux.HandleFunc("GET /", instrument(g.cfg, "Gate", g.serveGate))

	return mux
}

// serveGate handles callbacks and shows the gate or the protected content.
func (g *Gatekeeper) serveGate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sid, err := g.session(w, r)
	if err != nil {
		g.fail(ctx, w, err)
		return
	}

	host, err := newHTTPHost(w, r, g.cfg.HTTP.PublicURL)
	if err != nil {
		g.fail(ctx, w, err)
		return
	}

	renderer := &htmlRenderer{w: w, host: host, csrfToken: csrf.NewToken(sid, g.csrfKey)}

	mgr, err := g.manager(w, r, sid, gate.WithHost(host), gate.WithRenderer(renderer))
	if err != nil {
		g.fail(ctx, w, err)
		return
	}

	outcome, err := mgr.Run(ctx)
	recordOutcome(ctx, g.cfg, outcome)
	if err != nil {
		if host.navigated || renderer.written {
			slogctx.Error(ctx, "Gate failed after responding", "error", err)
			return
		}
		g.fail(ctx, w, err)
		return
	}

	if outcome == gate.OutcomeVerified && !renderer.written {
		// overlay mode leaves the page to the host
		//nolint:gosec
		if err := renderer.RenderContent(ctx, template.HTML(g.cfg.AgeGate.ProtectedContent)); err != nil {
			slogctx.Error(ctx, "Failed to render content", "error", err)
		}
	}
}

// serveLogout clears the verification of the session and ends it.
func (g *Gatekeeper) serveLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := r.Cookie(g.sessionCookie.Name)
	if err != nil || !validSessionID(c.Value) {
		http.Error(w, "missing session", http.StatusForbidden)
		return
	}

	if !csrf.Validate(r.PostFormValue(csrfFormField), c.Value, g.csrfKey) {
		slogctx.Warn(ctx, "Rejecting logout", "error", serviceerr.ErrInvalidCSRFToken)
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	mgr, err := g.manager(w, r, c.Value)
	if err != nil {
		g.fail(ctx, w, err)
		return
	}

	if err := mgr.Logout(ctx); err != nil {
		g.fail(ctx, w, err)
		return
	}

	http.SetCookie(w, g.sessionCookie.Expire())
	noStore(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// serveContent releases the protected content to a bearer of a valid
// access token.
func (g *Gatekeeper) serveContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "Missing Token"})
		return
	}

	if token != gate.SyntheticAccessToken {
		body, err := g.network.Get(ctx, g.gateCfg.Endpoints.Userinfo, token)
		if err != nil {
			slogctx.Warn(ctx, "Userinfo rejected the token", "error", err)
			writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "Verification Failed or Token Invalid"})
			return
		}

		var info struct {
			AgeVerified any `json:"age_verified"`
		}
		if err := body.Decode(&info); err != nil {
			writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "Verification Failed or Token Invalid"})
			return
		}

		if verified, ok := info.AgeVerified.(bool); !ok || !verified {
			writeJSON(ctx, w, http.StatusForbidden, errorResponse{Error: "Underage"})
			return
		}
	} else {
		slogctx.Debug(ctx, "Serving content to an exempt region")
	}

	writeJSON(ctx, w, http.StatusOK, contentResponse{HTML: g.cfg.AgeGate.ProtectedContent})
}

func (g *Gatekeeper) manager(w http.ResponseWriter, r *http.Request, sid string, opts ...gate.Option) (*gate.Manager, error) {
	storeOpts := []storage.Option{storage.WithKeyPrefix(g.cfg.Storage.KeyPrefix + sid + "_")}
	if g.state != nil {
		storeOpts = append(storeOpts, storage.WithStateBackend(g.state))
	}

	opts = append(opts,
		gate.WithNetworkClient(g.network),
		gate.WithSource(g.source),
		gate.WithAuditLogger(g.audit),
	)

	return gate.NewManager(g.gateCfg, storage.New(g.verification(w, r), storeOpts...), opts...)
}

// session returns the session id of the visitor and starts a new session
// when there is none.
func (g *Gatekeeper) session(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(g.sessionCookie.Name); err == nil && validSessionID(c.Value) {
		return c.Value, nil
	}

	sid, err := g.source.SessionID()
	if err != nil {
		return "", err
	}

	http.SetCookie(w, g.sessionCookie.ToCookie(sid))
	slogctx.Debug(r.Context(), "Started a session")

	return sid, nil
}

func (g *Gatekeeper) fail(ctx context.Context, w http.ResponseWriter, err error) {
	slogctx.Error(ctx, "Failed to serve the gate", "error", err)

	status := http.StatusInternalServerError
	var serr *serviceerr.Error
	if errors.As(err, &serr) {
		status = serr.HTTPStatus()
	}

	http.Error(w, http.StatusText(status), status)
}

func validSessionID(sid string) bool {
	if len(sid) != pkce.SessionIDLength {
		return false
	}
	_, err := hex.DecodeString(sid)

	return err == nil
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	noStore(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.Error(ctx, "Failed to write response", "error", err)
	}
}
