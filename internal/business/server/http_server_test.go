package server

import (
	"context"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/gate"
	storagememory "github.com/openkcm/age-gate/internal/storage/memory"
)

func newTestGatekeeper(t *testing.T, cfg *config.Config) *Gatekeeper {
	t.Helper()

	gk, err := NewGatekeeper(cfg, gate.Config{
		ClientID:    testClientID,
		RedirectURI: "http://localhost:8080/callback",
	}, SharedBackend(storagememory.NewBackend(0, 0)), testCSRFKey)
	require.NoError(t, err)

	return gk
}

func TestStartHTTPServer_ContextCancellation(t *testing.T) {
	t.Run("gracefully shuts down when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())

		cfg := &config.Config{
			BaseConfig: commoncfg.BaseConfig{
				Application: commoncfg.Application{
					Name: "test-app",
				},
			},
			HTTP: config.HTTPServer{
				Address:         "localhost:0", // Use port 0 to get a random available port
				ShutdownTimeout: 1 * time.Second,
				PublicURL:       "http://localhost:8080",
			},
		}

		errChan := make(chan error, 1)
		go func() {
			errChan <- StartHTTPServer(ctx, cfg, newTestGatekeeper(t, cfg))
		}()

		// Give the server a moment to start
		time.Sleep(100 * time.Millisecond)

		cancel()

		select {
		case err := <-errChan:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Server did not shut down within timeout")
		}
	})
}

func TestCreateHTTPServer(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{name: "tcp", address: "localhost:8080"},
		{name: "unix socket", address: "unix:///tmp/test.sock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				BaseConfig: commoncfg.BaseConfig{
					Application: commoncfg.Application{
						Name: "test-app",
					},
				},
				HTTP: config.HTTPServer{
					Address:   tt.address,
					PublicURL: "http://localhost:8080",
				},
			}

			server := createHTTPServer(t.Context(), cfg, newTestGatekeeper(t, cfg))

			assert.Equal(t, tt.address, server.Addr)
			assert.NotNil(t, server.Handler)
			assert.Equal(t, readHeaderTimeout, server.ReadHeaderTimeout)
		})
	}
}
