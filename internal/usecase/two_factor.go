package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/security"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

// TwoFactorAccounts is the account persistence the 2FA flows need.
type TwoFactorAccounts interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	port.TwoFactorRepository
}

// TwoFactorConfig tunes enrollment.
type TwoFactorConfig struct {
	BackupCodeCount int
	EnrollmentTTL   time.Duration
	StoreTimeout    time.Duration
}

// TwoFactorService manages TOTP enrollment, verification and backup codes.
type TwoFactorService struct {
	accounts    TwoFactorAccounts
	pending     port.TwoFactorEnrollmentStore
	replay      port.TOTPReplayGuard
	totp        *security.TOTP
	sealer      port.SecretSealer
	backupCodes *security.BackupCodeHasher
	credentials *CredentialVerifier
	throttle    *LoginThrottle
	events      port.EventPublisher
	metrics     port.AuthMetrics
	logger      *zap.Logger
	cfg         TwoFactorConfig
	now         func() time.Time
}

// NewTwoFactorService constructs a TwoFactorService.
func NewTwoFactorService(
	accounts TwoFactorAccounts,
	pending port.TwoFactorEnrollmentStore,
	replay port.TOTPReplayGuard,
	totp *security.TOTP,
	sealer port.SecretSealer,
	backupCodes *security.BackupCodeHasher,
	credentials *CredentialVerifier,
	throttle *LoginThrottle,
	events port.EventPublisher,
	cfg TwoFactorConfig,
	logger *zap.Logger,
) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = 10
	}
	if cfg.EnrollmentTTL <= 0 {
		cfg.EnrollmentTTL = 10 * time.Minute
	}
	return &TwoFactorService{
		accounts:    accounts,
		pending:     pending,
		replay:      replay,
		totp:        totp,
		sealer:      sealer,
		backupCodes: backupCodes,
		credentials: credentials,
		throttle:    throttle,
		events:      events,
		metrics:     noopMetrics{},
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics records verification outcomes.
func (s *TwoFactorService) WithMetrics(metrics port.AuthMetrics) *TwoFactorService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock overrides the clock used for code validation.
func (s *TwoFactorService) WithClock(clock func() time.Time) *TwoFactorService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Enroll starts a pending enrollment. Nothing is enabled until ConfirmEnrollment proves possession.
func (s *TwoFactorService) Enroll(ctx context.Context, accountID string) (*domain.TwoFactorEnrollment, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorAlreadyEnabled
	}

	key, err := s.totp.Generate(account.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, err := security.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal([]byte(key.Secret), []byte(account.ID))
	if err != nil {
		return nil, fmt.Errorf("seal totp secret: %w", err)
	}

	now := s.now()
	pending := domain.PendingEnrollment{
		AccountID:        account.ID,
		SealedSecret:     sealed,
		BackupCodeHashes: s.hashBackupCodes(account.ID, codes),
		CreatedAt:        now,
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.pending.SavePending(storeCtx, pending, s.cfg.EnrollmentTTL); err != nil {
		return nil, storeFailure("save pending enrollment", err)
	}

	return &domain.TwoFactorEnrollment{
		Secret:          key.Secret,
		ProvisioningURI: key.URI,
		QRCode:          key.QRCode,
		BackupCodes:     codes,
		ExpiresAt:       now.Add(s.cfg.EnrollmentTTL),
	}, nil
}

// ConfirmEnrollment enables 2FA once code proves possession of the pending secret.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, accountID, secret, code string) error {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	pending, err := s.pending.GetPending(storeCtx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrTwoFactorInvalid
		}
		return storeFailure("load pending enrollment", err)
	}
	pendingSecret, err := s.sealer.Open(pending.SealedSecret, []byte(accountID))
	if err != nil {
		return fmt.Errorf("open pending totp secret: %w", err)
	}
	if subtle.ConstantTimeCompare(pendingSecret, []byte(secret)) != 1 {
		return domain.ErrTwoFactorInvalid
	}

	step, ok, err := s.totp.Validate(string(pendingSecret), code, s.now())
	if err != nil || !ok {
		s.metrics.ObserveTwoFactor(outcomeTwoFactorInvalid)
		return domain.ErrTwoFactorInvalid
	}

	storeCtx, cancel = withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.EnableTwoFactor(storeCtx, accountID, pending.SealedSecret, pending.BackupCodeHashes); err != nil {
		if errors.Is(err, domain.ErrTwoFactorAlreadyEnabled) {
			return err
		}
		return storeFailure("enable two factor", err)
	}
	if _, err := s.replay.MarkUsed(storeCtx, accountID, step, s.totp.ReplayWindow()); err != nil {
		s.logger.Warn("mark enrollment step used failed", zap.String("account_id", accountID), zap.Error(err))
	}
	if err := s.pending.DeletePending(storeCtx, accountID); err != nil {
		s.logger.Warn("delete pending enrollment failed", zap.String("account_id", accountID), zap.Error(err))
	}

	s.metrics.ObserveTwoFactor("enabled")
	s.publishTwoFactorChanged(ctx, accountID, true)
	return nil
}

// Verify accepts a TOTP code within the skew window or an unused backup code.
func (s *TwoFactorService) Verify(ctx context.Context, account *domain.Account, code string) error {
	if account == nil || !account.TwoFactorEnabled {
		return domain.ErrTwoFactorNotEnabled
	}
	if code == "" {
		return domain.ErrTwoFactorRequired
	}

	if security.LooksLikeBackupCode(code) {
		return s.consumeBackupCode(ctx, account.ID, code)
	}

	secret, err := s.sealer.Open(account.TwoFactorSecret, []byte(account.ID))
	if err != nil {
		return fmt.Errorf("open totp secret: %w", err)
	}

	step, ok, err := s.totp.Validate(string(secret), code, s.now())
	if err != nil || !ok {
		s.metrics.ObserveTwoFactor(outcomeTwoFactorInvalid)
		return domain.ErrTwoFactorInvalid
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	fresh, err := s.replay.MarkUsed(storeCtx, account.ID, step, s.totp.ReplayWindow())
	if err != nil {
		return storeFailure("record totp step", err)
	}
	if !fresh {
		s.metrics.ObserveTwoFactor("replayed")
		return domain.ErrTwoFactorInvalid
	}

	s.metrics.ObserveTwoFactor("totp")
	return nil
}

// Disable clears the secret and backup codes after the password is re-confirmed.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string) error {
	account, err := s.confirmPassword(ctx, accountID, password)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return domain.ErrTwoFactorNotEnabled
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.DisableTwoFactor(storeCtx, accountID); err != nil {
		return storeFailure("disable two factor", err)
	}

	s.logger.Warn("two factor disabled",
		zap.String("security_event", "two_factor_disabled"),
		zap.String("account_id", accountID),
	)
	s.metrics.ObserveTwoFactor("disabled")
	s.publishTwoFactorChanged(ctx, accountID, false)
	return nil
}

// RegenerateBackupCodes replaces every backup code after the password is re-confirmed.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID, password string) ([]string, error) {
	account, err := s.confirmPassword(ctx, accountID, password)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorNotEnabled
	}

	codes, err := security.GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.accounts.ReplaceBackupCodes(storeCtx, accountID, s.hashBackupCodes(accountID, codes)); err != nil {
		return nil, storeFailure("replace backup codes", err)
	}
	return codes, nil
}

// RemainingBackupCodes reports how many unused backup codes the account holds.
func (s *TwoFactorService) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	count, err := s.accounts.CountBackupCodes(storeCtx, accountID)
	if err != nil {
		return 0, storeFailure("count backup codes", err)
	}
	return count, nil
}

func (s *TwoFactorService) consumeBackupCode(ctx context.Context, accountID, code string) error {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	consumed, err := s.accounts.ConsumeBackupCode(storeCtx, accountID, s.backupCodes.Hash(accountID, code))
	if err != nil {
		return storeFailure("consume backup code", err)
	}
	if !consumed {
		s.metrics.ObserveTwoFactor(outcomeTwoFactorInvalid)
		return domain.ErrTwoFactorInvalid
	}

	s.logger.Info("backup code consumed", zap.String("account_id", accountID))
	s.metrics.ObserveTwoFactor("backup_code")
	return nil
}

// confirmPassword re-checks the password of a signed-in account. Wrong passwords count against
// the same account throttle as failed logins.
func (s *TwoFactorService) confirmPassword(ctx context.Context, accountID, password string) (*domain.Account, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	identity := LoginIdentity(account.Email)
	if s.throttle != nil {
		if err := s.throttle.Check(ctx, identity); err != nil {
			return nil, err
		}
	}

	if err := s.credentials.CheckPassword(ctx, account, password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.recordConfirmFailure(ctx, account, identity)
		}
		return nil, err
	}

	if s.throttle != nil {
		if err := s.throttle.RecordSuccess(ctx, identity); err != nil {
			return nil, err
		}
	}
	return account, nil
}

func (s *TwoFactorService) recordConfirmFailure(ctx context.Context, account *domain.Account, identity string) {
	if s.throttle == nil {
		return
	}
	window, err := s.throttle.RecordFailure(ctx, identity)
	if err != nil {
		s.logger.Warn("record password confirmation failure failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	if window.Locked(s.now()) {
		s.logger.Warn("account locked",
			zap.String("security_event", "account_locked"),
			zap.String("scope", s.throttle.Scope()),
			zap.String("account_id", account.ID),
			zap.Time("locked_until", window.LockUntil),
		)
		s.metrics.ObserveLockout(s.throttle.Scope())
	}
}

func (s *TwoFactorService) loadAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	account, err := s.accounts.GetByID(storeCtx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, storeFailure("load account", err)
	}
	return account, nil
}

func (s *TwoFactorService) hashBackupCodes(accountID string, codes []string) []string {
	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hashes = append(hashes, s.backupCodes.Hash(accountID, code))
	}
	return hashes
}

func (s *TwoFactorService) publishTwoFactorChanged(ctx context.Context, accountID string, enabled bool) {
	if s.events == nil {
		return
	}
	payload := domain.TwoFactorChangedEvent{
		EventID:   uuid.NewString(),
		AccountID: accountID,
		Enabled:   enabled,
		ChangedAt: s.now(),
	}
	if err := s.events.PublishTwoFactorChanged(ctx, payload); err != nil {
		s.logger.Warn("publish two factor changed event failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
