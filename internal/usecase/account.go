package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/security"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

const oneTimeTokenBytes = 32

// AccountConfig tunes the registration and recovery flows.
type AccountConfig struct {
	VerifyEmailTTL   time.Duration
	PasswordResetTTL time.Duration
	StoreTimeout     time.Duration
}

// RegisterInput carries a vendor sign-up.
type RegisterInput struct {
	Email      string
	Password   string
	VendorName string
	ClientMeta
}

// AccountService owns registration, email verification and password recovery.
type AccountService struct {
	accounts port.AccountRepository
	oneTime  port.OneTimeTokenRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicyValidator
	tokens   *TokenService
	throttle *LoginThrottle
	events   port.EventPublisher
	logger   *zap.Logger
	cfg      AccountConfig
	now      func() time.Time
}

// NewAccountService constructs an AccountService.
func NewAccountService(
	accounts port.AccountRepository,
	oneTime port.OneTimeTokenRepository,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	tokens *TokenService,
	throttle *LoginThrottle,
	events port.EventPublisher,
	cfg AccountConfig,
	logger *zap.Logger,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VerifyEmailTTL <= 0 {
		cfg.VerifyEmailTTL = 24 * time.Hour
	}
	if cfg.PasswordResetTTL <= 0 {
		cfg.PasswordResetTTL = time.Hour
	}
	return &AccountService{
		accounts: accounts,
		oneTime:  oneTime,
		hasher:   hasher,
		policy:   policy,
		tokens:   tokens,
		throttle: throttle,
		events:   events,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for token expiry.
func (s *AccountService) WithClock(clock func() time.Time) *AccountService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates a vendor tenant with its owner account and sends a verification token.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "AccountService.Register")
	defer span.End()

	email := domain.NormalizeEmail(in.Email)
	vendorName := strings.TrimSpace(in.VendorName)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", domain.ErrValidation)
	}
	if vendorName == "" {
		return nil, fmt.Errorf("%w: vendor name is required", domain.ErrValidation)
	}
	if err := s.policy.Validate(in.Password, email, vendorName); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	tenant := domain.Tenant{ID: uuid.NewString(), Name: vendorName, CreatedAt: now}
	account := domain.Account{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleOwner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	err = s.accounts.CreateWithTenant(storeCtx, tenant, account)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, storeFailure("create account", err)
	}

	logger.WithContext(ctx, s.logger).Info("vendor registered",
		zap.String("account_id", account.ID),
		zap.String("tenant_id", tenant.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			TenantID:     tenant.ID,
			Email:        email,
			Role:         account.Role,
			RegisteredAt: now,
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("publish account registered event failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	if err := s.issueOneTimeToken(ctx, &account, domain.PurposeEmailVerification, s.cfg.VerifyEmailTTL, in.IPAddress); err != nil {
		s.logger.Warn("issue verification token failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	account.PasswordHash = ""
	return &account, nil
}

// VerifyEmail consumes an email verification token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	record, err := s.consume(ctx, token, domain.PurposeEmailVerification)
	if err != nil {
		return err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.MarkEmailVerified(storeCtx, record.AccountID, s.now()); err != nil {
		return storeFailure("mark email verified", err)
	}
	return nil
}

// ResendVerification issues a fresh verification token for an unverified account. Unknown and
// already verified emails are ignored silently.
func (s *AccountService) ResendVerification(ctx context.Context, email string, meta ClientMeta) error {
	account, err := s.findByEmail(ctx, email)
	if err != nil || account == nil || account.EmailVerified() {
		return err
	}
	return s.issueOneTimeToken(ctx, account, domain.PurposeEmailVerification, s.cfg.VerifyEmailTTL, meta.IPAddress)
}

// ForgotPassword issues a reset token when the email is known. It reports success either way.
func (s *AccountService) ForgotPassword(ctx context.Context, email string, meta ClientMeta) error {
	account, err := s.findByEmail(ctx, email)
	if err != nil || account == nil {
		return err
	}
	return s.issueOneTimeToken(ctx, account, domain.PurposePasswordReset, s.cfg.PasswordResetTTL, meta.IPAddress)
}

// ResetPassword consumes a reset token, stores the new hash and ends every session of the account.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := tracer.Start(ctx, "AccountService.ResetPassword")
	defer span.End()

	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	record, err := s.consume(ctx, token, domain.PurposePasswordReset)
	if err != nil {
		return err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	account, err := s.accounts.GetByID(storeCtx, record.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrTokenInvalid
		}
		return storeFailure("load account", err)
	}

	if err := s.policy.Validate(newPassword, account.Email); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	storeCtx, cancel = withStoreTimeout(ctx, s.cfg.StoreTimeout)
	err = s.accounts.UpdatePassword(storeCtx, account.ID, hash, now)
	cancel()
	if err != nil {
		return storeFailure("update password", err)
	}

	revoked := 0
	if s.tokens != nil {
		revoked, err = s.tokens.RevokeAll(ctx, account.ID)
		if err != nil {
			s.logger.Warn("revoke refresh families after reset failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}
	if s.throttle != nil {
		if err := s.throttle.RecordSuccess(ctx, LoginIdentity(account.Email)); err != nil {
			s.logger.Warn("clear login throttle after reset failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	storeCtx, cancel = withStoreTimeout(ctx, s.cfg.StoreTimeout)
	if err := s.oneTime.InvalidateForAccount(storeCtx, account.ID, domain.PurposePasswordReset, now); err != nil {
		s.logger.Warn("invalidate reset tokens failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	cancel()

	logger.WithContext(ctx, s.logger).Info("password reset",
		zap.String("account_id", account.ID),
		zap.Int("sessions_revoked", revoked),
	)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:         uuid.NewString(),
			AccountID:       account.ID,
			ChangedAt:       now,
			SessionsRevoked: revoked,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}
	return nil
}

// GetAccount returns the account of an authenticated principal.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, storeFailure("load account", err)
	}
	account.PasswordHash = ""
	account.TwoFactorSecret = nil
	return account, nil
}

func (s *AccountService) findByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	account, err := s.accounts.GetByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure("lookup account", err)
	}
	return account, nil
}

func (s *AccountService) consume(ctx context.Context, token string, purpose domain.OneTimeTokenPurpose) (*domain.OneTimeToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrTokenInvalid
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	record, err := s.oneTime.Consume(storeCtx, security.HashToken(token), purpose, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, storeFailure("consume token", err)
	}
	return record, nil
}

func (s *AccountService) issueOneTimeToken(ctx context.Context, account *domain.Account, purpose domain.OneTimeTokenPurpose, ttl time.Duration, ip string) error {
	raw, err := security.GenerateSecureToken(oneTimeTokenBytes)
	if err != nil {
		return err
	}

	now := s.now()
	token := domain.OneTimeToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: security.HashToken(raw),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.oneTime.InvalidateForAccount(storeCtx, account.ID, purpose, now); err != nil {
		s.logger.Warn("invalidate previous tokens failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	if err := s.oneTime.Create(storeCtx, token); err != nil {
		return storeFailure("store one-time token", err)
	}

	if s.events == nil {
		return nil
	}
	event := domain.OneTimeTokenRequestedEvent{
		EventID:     uuid.NewString(),
		AccountID:   account.ID,
		Email:       account.Email,
		Purpose:     purpose,
		Token:       raw,
		RequestedAt: now,
		ExpiresAt:   token.ExpiresAt,
		IPAddress:   ip,
	}
	if err := s.events.PublishOneTimeTokenRequested(ctx, event); err != nil {
		s.logger.Warn("publish one-time token event failed",
			zap.String("account_id", account.ID),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
	}
	return nil
}
