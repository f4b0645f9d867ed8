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

// OneTimeTokenRepository stores hashed email verification and password reset tokens.
type OneTimeTokenRepository struct {
	db      pgDB
	builder squirrel.StatementBuilderType
}

// NewOneTimeTokenRepository constructs a new one-time token repository.
func NewOneTimeTokenRepository(db pgDB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db, builder: newBuilder()}
}

// Create inserts a token row.
func (r *OneTimeTokenRepository) Create(ctx context.Context, token domain.OneTimeToken) error {
	stmt, args, err := r.builder.Insert("auth.one_time_tokens").
		Columns("id", "account_id", "token_hash", "purpose", "created_at", "expires_at").
		Values(token.ID, token.AccountID, token.TokenHash, string(token.Purpose), token.CreatedAt, token.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert one-time token sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert one-time token: %w", err)
	}
	return nil
}

// Consume marks a live token used in a single statement so concurrent redemptions cannot both win.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, tokenHash string, purpose domain.OneTimeTokenPurpose, at time.Time) (*domain.OneTimeToken, error) {
	stmt, args, err := r.builder.Update("auth.one_time_tokens").
		Set("used_at", at).
		Where(squirrel.Eq{"token_hash": tokenHash, "purpose": string(purpose), "used_at": nil}).
		Where(squirrel.Gt{"expires_at": at}).
		Suffix("RETURNING id, account_id, token_hash, purpose, created_at, expires_at, used_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume one-time token sql: %w", err)
	}

	var (
		token      domain.OneTimeToken
		purposeRaw string
		usedAt     sql.NullTime
	)
	if err := r.db.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&purposeRaw,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("consume one-time token: %w", err)
	}
	token.Purpose = domain.OneTimeTokenPurpose(purposeRaw)
	token.UsedAt = nullableTimePtr(usedAt)

	return &token, nil
}

// InvalidateForAccount marks every outstanding token of the purpose used.
func (r *OneTimeTokenRepository) InvalidateForAccount(ctx context.Context, accountID string, purpose domain.OneTimeTokenPurpose, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.one_time_tokens").
		Set("used_at", at).
		Where(squirrel.Eq{"account_id": accountID, "purpose": string(purpose), "used_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate one-time tokens sql: %w", err)
	}

	if _, err := r.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("invalidate one-time tokens: %w", err)
	}
	return nil
}

var _ port.OneTimeTokenRepository = (*OneTimeTokenRepository)(nil)
