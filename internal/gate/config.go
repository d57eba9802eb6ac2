package gate

import (
	"fmt"
	"net/url"
	"time"

	"github.com/openkcm/age-gate/internal/serviceerr"
)

const (
	DefaultAuthURL     = "https://app.agewallet.io/user/authorize"
	DefaultTokenURL    = "https://app.agewallet.io/user/token"
	DefaultUserinfoURL = "https://app.agewallet.io/user/userinfo"

	DefaultStateTTL = 10 * time.Minute
	Scope           = "openid age"
)

type Mode string

const (
	ModeOverlay Mode = "overlay"
	ModeAPI     Mode = "api"
)

// Endpoints are the provider URLs. Empty fields take the defaults.
type Endpoints struct {
	Auth     string
	Token    string
	Userinfo string
}

type Config struct {
	ClientID string
	// ClientSecret is sent on token exchange when set (confidential client).
	ClientSecret string
	// RedirectURI is the URI registered with the provider. It is sent
	// unchanged in the authorization and the token request.
	RedirectURI string
	Mode        Mode
	Render      bool
	Endpoints   Endpoints
	// APIEndpoint serves protected content in api mode.
	APIEndpoint string
	StateTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeOverlay
	}
	if c.Endpoints.Auth == "" {
		c.Endpoints.Auth = DefaultAuthURL
	}
	if c.Endpoints.Token == "" {
		c.Endpoints.Token = DefaultTokenURL
	}
	if c.Endpoints.Userinfo == "" {
		c.Endpoints.Userinfo = DefaultUserinfoURL
	}
	if c.StateTTL <= 0 {
		c.StateTTL = DefaultStateTTL
	}

	return c
}

// Validate reports configuration errors wrapping serviceerr.ErrConfiguration.
func (c Config) Validate() error {
	c = c.withDefaults()

	if c.ClientID == "" {
		return fmt.Errorf("%w: missing client id", serviceerr.ErrConfiguration)
	}

	switch c.Mode {
	case ModeOverlay:
	case ModeAPI:
		if c.APIEndpoint == "" {
			return fmt.Errorf("%w: api mode requires an api endpoint", serviceerr.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", serviceerr.ErrConfiguration, c.Mode)
	}

	for name, raw := range map[string]string{
		"redirect uri":      c.RedirectURI,
		"auth endpoint":     c.Endpoints.Auth,
		"token endpoint":    c.Endpoints.Token,
		"userinfo endpoint": c.Endpoints.Userinfo,
		"api endpoint":      c.APIEndpoint,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("%w: invalid %s: %w", serviceerr.ErrConfiguration, name, err)
		}
	}

	return nil
}
