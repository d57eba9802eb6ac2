package gate

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/age-gate/internal/serviceerr"
)

// callbackParams are consumed by Run and never survive into a deep link.
var callbackParams = []string{"code", "state", "error", "error_description", "iss"}

// Run handles a pending callback on the current location of the host and
// then executes the strategy. When the callback resolves to a different
// location the host is navigated there and the strategy does not run.
//
// Callback failures are logged and the visitor falls through to the gate.
// The returned error reports failures of the strategy and the host only.
func (m *Manager) Run(ctx context.Context) (Outcome, error) {
	if m.host == nil {
		return m.strategy.Execute(ctx, m)
	}

	params := m.host.QueryParams()
	code, state, oauthErr := params.Get("code"), params.Get("state"), params.Get("error")

	if code != "" && m.cfg.Render {
		if err := m.renderer.RenderLoading(ctx); err != nil {
			slogctx.Warn(ctx, "Failed to render loading state", "error", err)
		}
	}

	var (
		deepLink string
		err      error
		handled  bool
	)
	switch {
	case code != "" && state != "":
		handled = true
		deepLink, err = m.HandleCallback(ctx, code, state)
	case oauthErr != "" && state != "":
		handled = true
		deepLink, err = m.HandleError(ctx, oauthErr, params.Get("error_description"), state)
	}

	if err != nil {
		logCallbackError(ctx, err)
	}

	if deepLink != "" && !m.isCurrentLocation(deepLink) {
		if err := m.host.NavigateTo(deepLink); err != nil {
			return OutcomeGated, fmt.Errorf("navigating to deep link: %w", err)
		}
		return OutcomeNavigated, nil
	}

	if handled {
		if err := m.host.ClearQueryParams(); err != nil {
			return OutcomeGated, fmt.Errorf("clearing callback parameters: %w", err)
		}
	}

	return m.strategy.Execute(ctx, m)
}

func (m *Manager) isCurrentLocation(deepLink string) bool {
	current := m.host.CurrentLocation()

	return deepLink == current || StripCallbackParams(deepLink) == StripCallbackParams(current)
}

// StripCallbackParams removes the callback parameters from rawURL and
// normalises the order of the remaining ones.
func StripCallbackParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	for _, p := range callbackParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func logCallbackError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, serviceerr.ErrStateMismatch):
		// already logged when rejected
	case errors.Is(err, serviceerr.ErrProviderDenial), errors.Is(err, serviceerr.ErrAgeRequirement):
		slogctx.Info(ctx, "Verification failed", "error", err)
	default:
		slogctx.Error(ctx, "Token exchange failed", "error", err)
	}
}
