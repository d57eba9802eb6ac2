package gate

import (
	"context"
	"fmt"

	slogctx "github.com/veqryn/slog-context"
)

// Strategy decides what a visitor sees once callbacks are handled.
type Strategy interface {
	Execute(ctx context.Context, m *Manager) (Outcome, error)
}

// overlayStrategy leaves the page alone for verified visitors and gates
// everybody else.
type overlayStrategy struct{}

func (overlayStrategy) Execute(ctx context.Context, m *Manager) (Outcome, error) {
	token, err := m.storage.VerificationToken(ctx)
	if err != nil {
		return OutcomeGated, fmt.Errorf("reading verification: %w", err)
	}

	if token != "" {
		if !m.cfg.Render && m.hooks.OnVerified != nil {
			m.hooks.OnVerified(ctx, nil)
		}
		return OutcomeVerified, nil
	}

	return m.showGate(ctx)
}

// apiStrategy fetches the protected content with the access token. A failed
// fetch clears the verification and gates the visitor.
type apiStrategy struct{}

func (apiStrategy) Execute(ctx context.Context, m *Manager) (Outcome, error) {
	token, err := m.storage.VerificationToken(ctx)
	if err != nil {
		return OutcomeGated, fmt.Errorf("reading verification: %w", err)
	}

	if token == "" {
		return m.showGate(ctx)
	}

	if m.cfg.Render {
		if err := m.renderer.RenderLoading(ctx); err != nil {
			return OutcomeGated, fmt.Errorf("rendering loading state: %w", err)
		}
	}

	content, err := m.network.Get(ctx, m.cfg.APIEndpoint, token)
	if err != nil {
		slogctx.Warn(ctx, "Protected content rejected the verification", "error", err)
		if err := m.storage.ClearVerification(ctx); err != nil {
			return OutcomeGated, err
		}
		return m.showGate(ctx)
	}

	if m.cfg.Render {
		if err := m.renderer.InjectContent(ctx, content); err != nil {
			return OutcomeVerified, fmt.Errorf("injecting content: %w", err)
		}
		return OutcomeVerified, nil
	}

	if m.hooks.OnVerified != nil {
		value, err := content.Value()
		if err != nil {
			return OutcomeVerified, err
		}
		m.hooks.OnVerified(ctx, value)
	}

	return OutcomeVerified, nil
}

func (m *Manager) showGate(ctx context.Context) (Outcome, error) {
	req, err := m.GenerateAuthURL(ctx)
	if err != nil {
		return OutcomeGated, err
	}

	if m.cfg.Render {
		if err := m.renderer.RenderGate(ctx, req.URL); err != nil {
			return OutcomeGated, fmt.Errorf("rendering gate: %w", err)
		}
		return OutcomeGated, nil
	}

	if m.hooks.OnUnverified != nil {
		m.hooks.OnUnverified(ctx, req.URL)
	}

	return OutcomeGated, nil
}
