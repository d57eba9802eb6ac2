package server

import (
	"bytes"
	"encoding/json"
	"html"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/storage"
	storagememory "github.com/openkcm/age-gate/internal/storage/memory"
)

const (
	testClientID         = "gate-client"
	testProtectedContent = "<p>members only</p>"
	goodToken            = "good-token"
	minorToken           = "minor-token"
)

var testCSRFKey = []byte(strings.Repeat("k", 32))

// startProvider fakes the token and userinfo endpoints. The code "minor"
// yields a token of an underage user.
func startProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		token := goodToken
		if r.PostForm.Get("code") == "minor" {
			token = minorToken
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        gate.Scope,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.Header.Get("Authorization") {
		case "Bearer " + goodToken:
			_, _ = w.Write([]byte(`{"sub":"user-1","age_verified":true}`))
		case "Bearer " + minorToken:
			_, _ = w.Write([]byte(`{"sub":"user-2","age_verified":false}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

type site struct {
	*httptest.Server

	cfg     *config.Config
	backend *storagememory.Backend
	client  *http.Client
}

// startSite serves a Gatekeeper backed by the memory backend.
func startSite(t *testing.T, mode gate.Mode) *site {
	t.Helper()

	provider := startProvider(t)

	srv := httptest.NewUnstartedServer(nil)
	publicURL := "http://" + srv.Listener.Addr().String()

	cfg := &config.Config{
		BaseConfig: commoncfg.BaseConfig{
			Application: commoncfg.Application{Name: "age-gate-test"},
		},
		HTTP:    config.HTTPServer{PublicURL: publicURL},
		Storage: config.Storage{KeyPrefix: "aw_"},
		AgeGate: config.AgeGate{
			Mode:             config.GateMode(mode),
			ProtectedContent: testProtectedContent,
			SessionCookie:    config.CookieTemplate{SameSite: config.CookieSameSiteLax},
		},
	}

	backend := storagememory.NewBackend(time.Hour, time.Minute)

	gk, err := NewGatekeeper(cfg, gate.Config{
		ClientID:    testClientID,
		RedirectURI: publicURL + "/callback",
		Mode:        mode,
		Endpoints: gate.Endpoints{
			Auth:     "https://provider.example/authorize",
			Token:    provider.URL + "/token",
			Userinfo: provider.URL + "/userinfo",
		},
	}, SharedBackend(backend), testCSRFKey)
	require.NoError(t, err)

	srv.Config.Handler = gk.Handler()
	srv.Start()
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &site{
		Server:  srv,
		cfg:     cfg,
		backend: backend,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (s *site) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()

	resp, err := s.client.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var b bytes.Buffer
	_, err = b.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, b.String()
}

func (s *site) sessionID(t *testing.T) string {
	t.Helper()

	u, err := url.Parse(s.URL)
	require.NoError(t, err)

	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == DefaultSessionCookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")

	return ""
}

func (s *site) store(t *testing.T) *storage.Storage {
	t.Helper()

	return storage.New(s.backend, storage.WithKeyPrefix("aw_"+s.sessionID(t)+"_"))
}

var authLink = regexp.MustCompile(`href="([^"]+)"`)

// gateState returns the state of the authorization link on a gate page.
func gateState(t *testing.T, body string) string {
	t.Helper()

	m := authLink.FindStringSubmatch(body)
	require.Len(t, m, 2, "no authorization link in %q", body)

	u, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)

	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	return state
}

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfToken(t *testing.T, body string) string {
	t.Helper()

	m := csrfField.FindStringSubmatch(body)
	require.Len(t, m, 2, "no csrf token in %q", body)

	return html.UnescapeString(m[1])
}
