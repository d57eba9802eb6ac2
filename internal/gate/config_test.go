package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openkcm/age-gate/internal/gate"
	"github.com/openkcm/age-gate/internal/serviceerr"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       gate.Config
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "minimal overlay config",
			cfg:       gate.Config{ClientID: testClientID, RedirectURI: testRedirectURI},
			assertErr: assert.NoError,
		},
		{
			name:      "missing client id",
			cfg:       gate.Config{RedirectURI: testRedirectURI},
			assertErr: errIs(serviceerr.ErrConfiguration),
		},
		{
			name:      "api mode without endpoint",
			cfg:       gate.Config{ClientID: testClientID, Mode: gate.ModeAPI},
			assertErr: errIs(serviceerr.ErrConfiguration),
		},
		{
			name:      "api mode with endpoint",
			cfg:       gate.Config{ClientID: testClientID, Mode: gate.ModeAPI, APIEndpoint: "https://site/api/content"},
			assertErr: assert.NoError,
		},
		{
			name:      "unknown mode",
			cfg:       gate.Config{ClientID: testClientID, Mode: "popup"},
			assertErr: errIs(serviceerr.ErrConfiguration),
		},
		{
			name:      "invalid endpoint",
			cfg:       gate.Config{ClientID: testClientID, Endpoints: gate.Endpoints{Token: "http://[::1"}},
			assertErr: errIs(serviceerr.ErrConfiguration),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertErr(t, tt.cfg.Validate())
		})
	}
}

func TestNewManager_Configuration(t *testing.T) {
	store, _ := newStore()

	_, err := gate.NewManager(gate.Config{}, store)
	assert.ErrorIs(t, err, serviceerr.ErrConfiguration)

	_, err = gate.NewManager(gate.Config{ClientID: testClientID}, nil)
	assert.ErrorIs(t, err, serviceerr.ErrConfiguration)

	_, err = gate.NewManager(gate.Config{ClientID: testClientID, Render: true}, store)
	assert.ErrorIs(t, err, serviceerr.ErrConfiguration)

	_, err = gate.NewManager(gate.Config{ClientID: testClientID, Render: true}, store, gate.WithRenderer(&fakeRenderer{}))
	assert.NoError(t, err)
}

func errIs(target error) assert.ErrorAssertionFunc {
	return func(t assert.TestingT, err error, msgAndArgs ...any) bool {
		return assert.ErrorIs(t, err, target, msgAndArgs...)
	}
}
