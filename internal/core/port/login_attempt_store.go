package port

import (
	"context"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// LoginAttemptStore keeps per-identity failure windows with atomic increments.
type LoginAttemptStore interface {
	Get(ctx context.Context, identity string, now time.Time) (domain.LoginAttemptWindow, error)
	RecordFailure(ctx context.Context, identity string, policy domain.LockoutPolicy, now time.Time) (domain.LoginAttemptWindow, error)
	Reset(ctx context.Context, identity string) error
}
