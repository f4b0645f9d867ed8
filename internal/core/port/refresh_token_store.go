package port

import (
	"context"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// RefreshTokenStore tracks refresh-token families in a shared cache.
type RefreshTokenStore interface {
	Save(ctx context.Context, record domain.RefreshTokenRecord) error
	Get(ctx context.Context, tokenID string) (*domain.RefreshTokenRecord, error)
	// Rotate atomically revokes tokenID and stores next in the same family when tokenID is live.
	// A revoked tokenID revokes the entire family in the same step. next inherits family,
	// account, tenant and role from the rotated record.
	Rotate(ctx context.Context, tokenID string, next domain.RefreshTokenRecord, now time.Time) (domain.RotationResult, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
	RevokeAccount(ctx context.Context, accountID string) (int, error)
	IsFamilyRevoked(ctx context.Context, familyID string) (bool, error)
}
