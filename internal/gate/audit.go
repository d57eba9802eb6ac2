package gate

import (
	"context"

	"github.com/google/uuid"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"
)

const auditInitiator = "age gate"


// auditSuccess sends a login success event. Errors are logged only.
func (m *Manager) auditSuccess(ctx context.Context, subject string) {
	if m.audit == nil {
		return
	}

	metadata, err := otlpaudit.NewEventMetadata(auditInitiator, m.cfg.ClientID, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "creating audit metadata", "error", err)
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(metadata, subject, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, m.cfg.ClientID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for verification success", "error", err)
	}
}

// auditFailure sends a login failure event. Errors are logged only.
func (m *Manager) auditFailure(ctx context.Context, reason string) {
	if m.audit == nil {
		return
	}

	metadata, err := otlpaudit.NewEventMetadata(auditInitiator, m.cfg.ClientID, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "creating audit metadata", "error", err)
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(metadata, m.cfg.ClientID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.FailReason(reason), m.cfg.ClientID)
	if err != nil {
		slogctx.Error(ctx, "creating audit log", "error", err)
		return
	}

	if err := m.audit.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for verification failure", "error", err)
	}
}
