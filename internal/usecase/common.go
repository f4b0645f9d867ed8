package usecase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

const defaultStoreTimeout = 2 * time.Second

var tracer = otel.Tracer("github.com/omairakapasha/EventAI-sub001/internal/usecase")

// ClientMeta describes the caller of an unauthenticated or token-bearing request.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Outcome labels recorded by AuthMetrics.
const (
	outcomeSuccess           = "success"
	outcomeInvalid           = "invalid_credentials"
	outcomeLocked            = "locked"
	outcomeUnverified        = "email_not_verified"
	outcomeTwoFactorRequired = "two_factor_required"
	outcomeTwoFactorInvalid  = "two_factor_invalid"
	outcomeExpired           = "expired"
	outcomeReuse             = "reuse_detected"
	outcomeRevoked           = "family_revoked"
	outcomeUnavailable       = "unavailable"
	outcomeError             = "error"
)

// withStoreTimeout bounds one store or hashing call.
func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// storeFailure converts an infrastructure error into ErrServiceUnavailable.
func storeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrServiceUnavailable) {
		return err
	}
	return domain.Unavailable(op, err)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string)     {}
func (noopMetrics) ObserveRefresh(string)   {}
func (noopMetrics) ObserveLockout(string)   {}
func (noopMetrics) ObserveTwoFactor(string) {}

type noopAlerter struct{}

func (noopAlerter) TokenReuseDetected(context.Context, domain.TokenReuseDetectedEvent) {}

var (
	_ port.AuthMetrics     = noopMetrics{}
	_ port.SecurityAlerter = noopAlerter{}
)
