package gate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/network"
	"github.com/openkcm/age-gate/internal/storage"
	storagemock "github.com/openkcm/age-gate/internal/storage/mock"
)

const (
	testClientID    = "my-client-id"
	testAccessToken = "access-123"
	testRedirectURI = "https://site/callback"
)

type provider struct {
	*httptest.Server

	ageVerified   any
	tokenStatus   int
	contentStatus int

	tokenCalls    atomic.Int32
	userinfoCalls atomic.Int32
	contentCalls  atomic.Int32

	mu       sync.Mutex
	lastForm url.Values
}

type providerOption func(*provider)

func withAgeVerified(v any) providerOption {
	return func(p *provider) { p.ageVerified = v }
}

func withTokenStatus(status int) providerOption {
	return func(p *provider) { p.tokenStatus = status }
}

func withContentStatus(status int) providerOption {
	return func(p *provider) { p.contentStatus = status }
}

func startProvider(t *testing.T, opts ...providerOption) *provider {
	t.Helper()

	p := &provider{ageVerified: true}
	for _, opt := range opts {
		opt(p)
	}

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/token":
			p.tokenCalls.Add(1)
			_ = r.ParseForm()
			p.mu.Lock()
			p.lastForm = r.PostForm
			p.mu.Unlock()

			if p.tokenStatus != 0 {
				w.WriteHeader(p.tokenStatus)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Code expired"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"` + testAccessToken + `","token_type":"Bearer","expires_in":3600,"scope":"openid age"}`))
		case "/userinfo":
			p.userinfoCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"sub": "user-1", "age_verified": p.ageVerified})
		case "/content":
			p.contentCalls.Add(1)
			if p.contentStatus != 0 {
				w.WriteHeader(p.contentStatus)
				_, _ = w.Write([]byte(`{"error":"Invalid token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"html":"<p>secret</p>"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(p.Close)

	return p
}

func (p *provider) form() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastForm
}

func (p *provider) config() gate.Config {
	return gate.Config{
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
		Endpoints: gate.Endpoints{
			Auth:     p.URL + "/authorize",
			Token:    p.URL + "/token",
			Userinfo: p.URL + "/userinfo",
		},
		APIEndpoint: p.URL + "/content",
	}
}

type fakeHost struct {
	mu        sync.Mutex
	location  string
	navigated []string
	cleared   int
}

var _ gate.Host = &fakeHost{}

func (h *fakeHost) CurrentLocation() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.location
}

func (h *fakeHost) NavigateTo(rawURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.navigated = append(h.navigated, rawURL)
	return nil
}

func (h *fakeHost) QueryParams() url.Values {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, err := url.Parse(h.location)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func (h *fakeHost) ClearQueryParams() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cleared++
	if u, err := url.Parse(h.location); err == nil {
		u.RawQuery = ""
		h.location = u.String()
	}
	return nil
}

type fakeRenderer struct {
	gates   []string
	loading int
	content []network.Body
}

var _ gate.Renderer = &fakeRenderer{}

func (r *fakeRenderer) RenderGate(_ context.Context, authURL string) error {
	r.gates = append(r.gates, authURL)
	return nil
}

func (r *fakeRenderer) RenderLoading(context.Context) error {
	r.loading++
	return nil
}

func (r *fakeRenderer) InjectContent(_ context.Context, content network.Body) error {
	r.content = append(r.content, content)
	return nil
}

func newManager(t *testing.T, cfg gate.Config, store *storage.Storage, opts ...gate.Option) *gate.Manager {
	t.Helper()

	m, err := gate.NewManager(cfg, store, opts...)
	require.NoError(t, err)

	return m
}

// seedState stores a pending authorization request directly.
func seedState(t *testing.T, store *storage.Storage, state, returnURL string) {
	t.Helper()

	require.NoError(t, store.SetOIDCState(t.Context(), storage.OIDCState{
		State:     state,
		Verifier:  "verifier-" + state,
		Nonce:     "nonce",
		ReturnURL: returnURL,
		Expiry:    time.Now().Add(time.Minute),
	}))
}

func newStore(opts ...storagemock.BackendOption) (*storage.Storage, *storagemock.Backend) {
	backend := storagemock.NewInMemBackend(opts...)
	return storage.New(backend), backend
}

func startAuditServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server
}
