package port

import (
	"context"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// TwoFactorEnrollmentStore holds unconfirmed enrollments until they expire.
type TwoFactorEnrollmentStore interface {
	SavePending(ctx context.Context, pending domain.PendingEnrollment, ttl time.Duration) error
	GetPending(ctx context.Context, accountID string) (*domain.PendingEnrollment, error)
	DeletePending(ctx context.Context, accountID string) error
}

// TOTPReplayGuard remembers accepted TOTP time steps.
type TOTPReplayGuard interface {
	// MarkUsed returns false when the step was already used by the account.
	MarkUsed(ctx context.Context, accountID string, step int64, ttl time.Duration) (bool, error)
}
