package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

var accountColumns = []string{
	"id",
	"tenant_id",
	"email",
	"password_hash",
	"role",
	"email_verified_at",
	"two_factor_enabled",
	"two_factor_secret",
	"failed_login_count",
	"locked_until",
	"last_login_at",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountRepository and port.TwoFactorRepository using PostgreSQL.
type AccountRepository struct {
	db      pgDB
	builder squirrel.StatementBuilderType
}

// NewAccountRepository wires a PostgreSQL-backed account repository.
func NewAccountRepository(db pgDB) *AccountRepository {
	return &AccountRepository{db: db, builder: newBuilder()}
}

// CreateWithTenant inserts the tenant and its first account in one transaction.
// A duplicate email yields domain.ErrConflict.
func (r *AccountRepository) CreateWithTenant(ctx context.Context, tenant domain.Tenant, account domain.Account) error {
	tenantSQL, tenantArgs, err := r.builder.Insert("auth.tenants").
		Columns("id", "name", "created_at").
		Values(tenant.ID, tenant.Name, tenant.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert tenant sql: %w", err)
	}

	accountSQL, accountArgs, err := r.builder.Insert("auth.accounts").
		Columns("id", "tenant_id", "email", "password_hash", "role", "created_at", "updated_at").
		Values(
			account.ID,
			account.TenantID,
			domain.NormalizeEmail(account.Email),
			account.PasswordHash,
			account.Role.String(),
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, tenantSQL, tenantArgs...); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		if _, err := tx.Exec(ctx, accountSQL, accountArgs...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert account: %w", domain.ErrConflict)
			}
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	})
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return scanAccount(r.db.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an account by case-insensitive email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Expr("lower(email) = ?", domain.NormalizeEmail(email))).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by email sql: %w", err)
	}

	return scanAccount(r.db.QueryRow(ctx, stmt, args...))
}

// UpdatePassword stores a new hash and clears the mirrored lock state.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	return r.update(ctx, "update password", r.builder.Update("auth.accounts").
		Set("password_hash", passwordHash).
		Set("failed_login_count", 0).
		Set("locked_until", nil).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}))
}

// MarkEmailVerified stamps the first verification time; later calls keep it.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	return r.update(ctx, "mark email verified", r.builder.Update("auth.accounts").
		Set("email_verified_at", squirrel.Expr("COALESCE(email_verified_at, ?)", verifiedAt)).
		Set("updated_at", verifiedAt).
		Where(squirrel.Eq{"id": id}))
}

// RecordLoginFailure mirrors a throttle failure onto the account row.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, lockedUntil *time.Time) error {
	return r.update(ctx, "record login failure", r.builder.Update("auth.accounts").
		Set("failed_login_count", squirrel.Expr("failed_login_count + 1")).
		Set("locked_until", lockedUntil).
		Where(squirrel.Eq{"id": id}))
}

// RecordLoginSuccess resets the mirrored failure state and stamps the login time.
func (r *AccountRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "record login success", r.builder.Update("auth.accounts").
		Set("failed_login_count", 0).
		Set("locked_until", nil).
		Set("last_login_at", at).
		Where(squirrel.Eq{"id": id}))
}

// EnableTwoFactor stores the sealed secret and the initial backup codes atomically.
// It fails with domain.ErrTwoFactorAlreadyEnabled when 2FA is already on.
func (r *AccountRepository) EnableTwoFactor(ctx context.Context, accountID string, sealedSecret []byte, backupCodeHashes []string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("two_factor_enabled", true).
		Set("two_factor_secret", sealedSecret).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": accountID, "two_factor_enabled": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enable two factor sql: %w", err)
	}

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("enable two factor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrTwoFactorAlreadyEnabled
		}
		return r.replaceBackupCodes(ctx, tx, accountID, backupCodeHashes)
	})
}

// DisableTwoFactor clears the secret and every backup code.
func (r *AccountRepository) DisableTwoFactor(ctx context.Context, accountID string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("two_factor_enabled", false).
		Set("two_factor_secret", nil).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build disable two factor sql: %w", err)
	}

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("disable two factor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return r.replaceBackupCodes(ctx, tx, accountID, nil)
	})
}

// ReplaceBackupCodes swaps the full backup code set.
func (r *AccountRepository) ReplaceBackupCodes(ctx context.Context, accountID string, backupCodeHashes []string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		return r.replaceBackupCodes(ctx, tx, accountID, backupCodeHashes)
	})
}

func (r *AccountRepository) replaceBackupCodes(ctx context.Context, tx pgx.Tx, accountID string, hashes []string) error {
	stmt, args, err := r.builder.Delete("auth.backup_codes").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	if len(hashes) == 0 {
		return nil
	}

	insert := r.builder.Insert("auth.backup_codes").Columns("account_id", "code_hash")
	for _, hash := range hashes {
		insert = insert.Values(accountID, hash)
	}
	stmt, args, err = insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert backup codes sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}

// ConsumeBackupCode deletes the code and reports whether it existed.
func (r *AccountRepository) ConsumeBackupCode(ctx context.Context, accountID string, codeHash string) (bool, error) {
	stmt, args, err := r.builder.Delete("auth.backup_codes").
		Where(squirrel.Eq{"account_id": accountID, "code_hash": codeHash}).
		Suffix("RETURNING code_hash").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume backup code sql: %w", err)
	}

	var consumed string
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&consumed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("consume backup code: %w", err)
	}
	return true, nil
}

// CountBackupCodes returns how many unused backup codes remain.
func (r *AccountRepository) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	stmt, args, err := r.builder.Select("count(*)").
		From("auth.backup_codes").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count backup codes sql: %w", err)
	}

	var count int
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count backup codes: %w", err)
	}
	return count, nil
}

func (r *AccountRepository) update(ctx context.Context, op string, query squirrel.UpdateBuilder) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", op, err)
	}

	tag, err := r.db.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account         domain.Account
		role            string
		emailVerifiedAt sql.NullTime
		lockedUntil     sql.NullTime
		lastLoginAt     sql.NullTime
	)

	if err := row.Scan(
		&account.ID,
		&account.TenantID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&emailVerifiedAt,
		&account.TwoFactorEnabled,
		&account.TwoFactorSecret,
		&account.FailedLoginCount,
		&lockedUntil,
		&lastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("scan account role: %w", err)
	}
	account.Role = parsed
	account.EmailVerifiedAt = nullableTimePtr(emailVerifiedAt)
	account.LockedUntil = nullableTimePtr(lockedUntil)
	account.LastLoginAt = nullableTimePtr(lastLoginAt)

	return &account, nil
}

var (
	_ port.AccountRepository   = (*AccountRepository)(nil)
	_ port.TwoFactorRepository = (*AccountRepository)(nil)
)
