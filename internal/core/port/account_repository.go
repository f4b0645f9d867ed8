package port

import (
	"context"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// AccountRepository exposes the authentication-relevant persistence of accounts.
type AccountRepository interface {
	CreateWithTenant(ctx context.Context, tenant domain.Tenant, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error
	RecordLoginFailure(ctx context.Context, id string, lockedUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
}

// TwoFactorRepository persists enabled second factors and backup codes.
type TwoFactorRepository interface {
	EnableTwoFactor(ctx context.Context, accountID string, sealedSecret []byte, backupCodeHashes []string) error
	DisableTwoFactor(ctx context.Context, accountID string) error
	ReplaceBackupCodes(ctx context.Context, accountID string, backupCodeHashes []string) error
	// ConsumeBackupCode removes the code if present and reports whether it was.
	ConsumeBackupCode(ctx context.Context, accountID string, codeHash string) (bool, error)
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}

// OneTimeTokenRepository stores hashed single-use tokens.
type OneTimeTokenRepository interface {
	Create(ctx context.Context, token domain.OneTimeToken) error
	// Consume marks an unused, unexpired token as used and returns it; repository.ErrNotFound otherwise.
	Consume(ctx context.Context, tokenHash string, purpose domain.OneTimeTokenPurpose, at time.Time) (*domain.OneTimeToken, error)
	InvalidateForAccount(ctx context.Context, accountID string, purpose domain.OneTimeTokenPurpose, at time.Time) error
}
