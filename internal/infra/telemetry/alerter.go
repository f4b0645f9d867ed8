package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
)

// InitSentry configures the global Sentry client. An empty DSN disables reporting.
func InitSentry(cfg config.SentrySettings) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// FlushSentry waits briefly for buffered events to be delivered.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentryAlerter raises refresh token reuse as a Sentry event tagged with the affected account.
type SentryAlerter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// NewSentryAlerter binds the alerter to hub, falling back to the current hub when nil.
func NewSentryAlerter(hub *sentry.Hub, logger *zap.Logger) *SentryAlerter {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentryAlerter{hub: hub, logger: logger}
}

func (a *SentryAlerter) TokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) {
	hub := a.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("security_event", "refresh_token_reuse")
		scope.SetTag("account_id", event.AccountID)
		scope.SetTag("tenant_id", event.TenantID)
		scope.SetTag("family_id", event.FamilyID)
		if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		scope.SetContext("client", sentry.Context{
			"ip_address": logger.MaskIP(event.IPAddress),
			"user_agent": event.UserAgent,
		})

		eventID := hub.CaptureMessage("refresh token reuse detected")
		if eventID != nil {
			a.logger.Debug("reuse alert sent", zap.String("sentry_event_id", string(*eventID)))
		}
	})
}

var _ port.SecurityAlerter = (*SentryAlerter)(nil)
