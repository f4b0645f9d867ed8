package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

// PublishAccountRegistered logs auth.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent(domain.EventAccountRegistered, event.AccountID, event.RegisteredAt,
		zap.String("tenant_id", event.TenantID),
		zap.String("email", logger.MaskEmail(event.Email)),
	)
	return nil
}

// PublishOneTimeTokenRequested logs verification and reset deliveries. The token is never logged.
func (p *StubPublisher) PublishOneTimeTokenRequested(_ context.Context, event domain.OneTimeTokenRequestedEvent) error {
	eventType := domain.EventEmailVerificationRequested
	if event.Purpose == domain.PurposePasswordReset {
		eventType = domain.EventPasswordResetRequested
	}
	p.logEvent(eventType, event.AccountID, event.RequestedAt,
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Time("expires_at", event.ExpiresAt),
	)
	return nil
}

// PublishPasswordChanged logs auth.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(domain.EventPasswordChanged, event.AccountID, event.ChangedAt, zap.Int("sessions_revoked", event.SessionsRevoked))
	return nil
}

// PublishLogin logs login outcomes.
func (p *StubPublisher) PublishLogin(_ context.Context, event domain.LoginEvent) error {
	eventType := domain.EventLoginFailed
	if event.Succeeded {
		eventType = domain.EventLoginSucceeded
	}
	p.logEvent(eventType, event.AccountID, event.OccurredAt,
		zap.String("reason", event.Reason),
		zap.String("ip", logger.MaskIP(event.IPAddress)),
	)
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(domain.EventAccountLocked, "", event.LockedAt,
		zap.String("scope", event.Scope),
		zap.Time("lock_until", event.LockUntil),
		zap.Int("lockouts", event.Lockouts),
	)
	return nil
}

// PublishTokenReuseDetected logs auth.refresh.reuse_detected events.
func (p *StubPublisher) PublishTokenReuseDetected(_ context.Context, event domain.TokenReuseDetectedEvent) error {
	p.logEvent(domain.EventRefreshReuseDetected, event.AccountID, event.DetectedAt,
		zap.String("family_id", event.FamilyID),
		zap.String("ip", logger.MaskIP(event.IPAddress)),
	)
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent(domain.EventSessionRevoked, event.AccountID, event.RevokedAt,
		zap.String("family_id", event.FamilyID),
		zap.Int("families", event.Families),
		zap.String("reason", event.Reason),
	)
	return nil
}

// PublishTwoFactorChanged logs 2FA state changes.
func (p *StubPublisher) PublishTwoFactorChanged(_ context.Context, event domain.TwoFactorChangedEvent) error {
	eventType := domain.EventTwoFactorDisabled
	if event.Enabled {
		eventType = domain.EventTwoFactorEnabled
	}
	p.logEvent(eventType, event.AccountID, event.ChangedAt)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
