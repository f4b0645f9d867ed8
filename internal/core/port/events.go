package port

import (
	"context"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// EventPublisher publishes authentication events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishOneTimeTokenRequested(ctx context.Context, event domain.OneTimeTokenRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishLogin(ctx context.Context, event domain.LoginEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishTokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishTwoFactorChanged(ctx context.Context, event domain.TwoFactorChangedEvent) error
}

// SecurityAlerter escalates events that indicate probable compromise.
type SecurityAlerter interface {
	TokenReuseDetected(ctx context.Context, event domain.TokenReuseDetectedEvent)
}

// AuthMetrics records authentication outcomes.
type AuthMetrics interface {
	ObserveLogin(outcome string)
	ObserveRefresh(outcome string)
	ObserveLockout(scope string)
	ObserveTwoFactor(outcome string)
}
