package gate

import (
	"context"
	"net/url"

	"github.com/openkcm/age-gate/internal/network"
)

// Host is the environment the gate runs in: a browser page, an HTTP request
// or a test double.
type Host interface {
	// CurrentLocation returns the absolute URL being served.
	CurrentLocation() string
	// NavigateTo sends the user agent to rawURL.
	NavigateTo(rawURL string) error
	QueryParams() url.Values
	// ClearQueryParams drops the one-time callback parameters from the
	// current location without reloading it.
	ClearQueryParams() error
}

// Renderer draws the gate when rendering is enabled.
type Renderer interface {
	RenderGate(ctx context.Context, authURL string) error
	RenderLoading(ctx context.Context) error
	InjectContent(ctx context.Context, content network.Body) error
}

// Hooks hand control to the host application when rendering is disabled.
type Hooks struct {
	// OnVerified receives the protected content in api mode and nil in
	// overlay mode.
	OnVerified func(ctx context.Context, content any)
	// OnUnverified receives the authorization URL to send the user to.
	OnUnverified func(ctx context.Context, authURL string)
}

// Outcome is the result of a Run.
type Outcome int

const (
	// OutcomeGated means the visitor is not verified and got the gate.
	OutcomeGated Outcome = iota
	// OutcomeVerified means the visitor is verified and content may be shown.
	OutcomeVerified
	// OutcomeNavigated means the host was sent to a deep link and nothing
	// else ran.
	OutcomeNavigated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGated:
		return "gated"
	case OutcomeVerified:
		return "verified"
	case OutcomeNavigated:
		return "navigated"
	default:
		return "unknown"
	}
}
