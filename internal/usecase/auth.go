package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

// LoginInput carries the fields of a login or 2FA completion request.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	ClientMeta
}

// AuthDeps wires the collaborators of AuthService.
type AuthDeps struct {
	Accounts        port.AccountRepository
	Credentials     *CredentialVerifier
	AccountThrottle *LoginThrottle
	IPThrottle      *LoginThrottle
	TwoFactor       *TwoFactorService
	Tokens          *TokenService
	Events          port.EventPublisher
	Alerter         port.SecurityAlerter
	Metrics         port.AuthMetrics
	Logger          *zap.Logger
	// RequireVerifiedEmail rejects logins of accounts that never confirmed their email.
	RequireVerifiedEmail bool
	StoreTimeout         time.Duration
}

// AuthService drives the login, refresh and logout state machine.
type AuthService struct {
	accounts        port.AccountRepository
	credentials     *CredentialVerifier
	accountThrottle *LoginThrottle
	ipThrottle      *LoginThrottle
	twoFactor       *TwoFactorService
	tokens          *TokenService
	events          port.EventPublisher
	alerter         port.SecurityAlerter
	metrics         port.AuthMetrics
	logger          *zap.Logger
	requireVerified bool
	timeout         time.Duration
	now             func() time.Time
}

// NewAuthService validates deps and constructs an AuthService.
func NewAuthService(deps AuthDeps) (*AuthService, error) {
	if deps.Accounts == nil || deps.Credentials == nil || deps.AccountThrottle == nil || deps.TwoFactor == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("auth service requires accounts, credentials, throttle, two factor and token services")
	}
	svc := &AuthService{
		accounts:        deps.Accounts,
		credentials:     deps.Credentials,
		accountThrottle: deps.AccountThrottle,
		ipThrottle:      deps.IPThrottle,
		twoFactor:       deps.TwoFactor,
		tokens:          deps.Tokens,
		events:          deps.Events,
		alerter:         deps.Alerter,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		requireVerified: deps.RequireVerifiedEmail,
		timeout:         deps.StoreTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if svc.alerter == nil {
		svc.alerter = noopAlerter{}
	}
	if svc.metrics == nil {
		svc.metrics = noopMetrics{}
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc, nil
}

// WithClock overrides the clock used for events and account mirroring.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Login verifies credentials and, when 2FA is enabled, either completes with the supplied
// code or stops at LoginStepTwoFactorRequired. Throttles are consulted before the password.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	result, outcome, err := s.login(ctx, in, false)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if err != nil && outcome == outcomeUnavailable {
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.ObserveLogin(outcome)
	return result, err
}

// VerifyTwoFactor completes a login that previously stopped at LoginStepTwoFactorRequired.
// The password is verified again so the second step cannot be driven without it.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, in LoginInput) (*domain.LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.VerifyTwoFactor")
	defer span.End()

	result, outcome, err := s.login(ctx, in, true)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	s.metrics.ObserveLogin(outcome)
	return result, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput, codeRequired bool) (*domain.LoginResult, string, error) {
	identity := LoginIdentity(in.Email)
	log := logger.WithContext(ctx, s.logger)

	if s.ipThrottle != nil && in.IPAddress != "" {
		if err := s.ipThrottle.Check(ctx, ClientIdentity(in.IPAddress)); err != nil {
			return nil, outcomeFor(err), err
		}
	}
	if err := s.accountThrottle.Check(ctx, identity); err != nil {
		return nil, outcomeFor(err), err
	}

	account, err := s.credentials.Verify(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.recordFailure(ctx, identity, nil, in, "invalid_credentials")
		}
		return nil, outcomeFor(err), err
	}

	if s.requireVerified && !account.EmailVerified() {
		log.Info("login rejected: email not verified", zap.String("account_id", account.ID))
		return nil, outcomeUnverified, domain.ErrEmailNotVerified
	}

	if account.TwoFactorEnabled {
		if in.TwoFactorCode == "" {
			if codeRequired {
				return nil, outcomeTwoFactorRequired, domain.ErrTwoFactorRequired
			}
			return &domain.LoginResult{Step: domain.LoginStepTwoFactorRequired, Account: account.Ref()}, outcomeTwoFactorRequired, nil
		}
		if err := s.twoFactor.Verify(ctx, account, in.TwoFactorCode); err != nil {
			if errors.Is(err, domain.ErrTwoFactorInvalid) {
				s.recordFailure(ctx, identity, account, in, "two_factor_invalid")
			}
			return nil, outcomeFor(err), err
		}
	} else if codeRequired {
		return nil, outcomeError, domain.ErrTwoFactorNotEnabled
	}

	pair, err := s.complete(ctx, identity, account, in)
	if err != nil {
		return nil, outcomeFor(err), err
	}
	return &domain.LoginResult{Step: domain.LoginStepAuthenticated, Account: account.Ref(), Tokens: pair}, outcomeSuccess, nil
}

func (s *AuthService) complete(ctx context.Context, identity string, account *domain.Account, in LoginInput) (*domain.TokenPair, error) {
	if err := s.accountThrottle.RecordSuccess(ctx, identity); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(ctx, account.ID, account.Role, account.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	mirrorCtx, cancel := withStoreTimeout(ctx, s.timeout)
	if err := s.accounts.RecordLoginSuccess(mirrorCtx, account.ID, now); err != nil {
		s.logger.Warn("record login success failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	cancel()

	s.publishLogin(ctx, domain.LoginEvent{
		EventID:    uuid.NewString(),
		AccountID:  account.ID,
		TenantID:   account.TenantID,
		Succeeded:  true,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		OccurredAt: now,
	})
	return pair, nil
}

// recordFailure feeds both throttles and mirrors the result onto the account row. Store errors
// are logged; the caller still receives the failure it was about to return.
func (s *AuthService) recordFailure(ctx context.Context, identity string, account *domain.Account, in LoginInput, reason string) {
	log := logger.WithContext(ctx, s.logger)
	now := s.now()

	window, err := s.accountThrottle.RecordFailure(ctx, identity)
	if err != nil {
		log.Warn("record login failure failed", zap.String("scope", s.accountThrottle.Scope()), zap.Error(err))
	} else if window.Locked(now) {
		s.lockoutOccurred(ctx, s.accountThrottle.Scope(), window, now)
	}

	if s.ipThrottle != nil && in.IPAddress != "" {
		ipWindow, err := s.ipThrottle.RecordFailure(ctx, ClientIdentity(in.IPAddress))
		if err != nil {
			log.Warn("record login failure failed", zap.String("scope", s.ipThrottle.Scope()), zap.Error(err))
		} else if ipWindow.Locked(now) {
			s.lockoutOccurred(ctx, s.ipThrottle.Scope(), ipWindow, now)
		}
	}

	event := domain.LoginEvent{
		EventID:    uuid.NewString(),
		Succeeded:  false,
		Reason:     reason,
		IPAddress:  in.IPAddress,
		UserAgent:  in.UserAgent,
		OccurredAt: now,
	}
	if account == nil {
		account = s.lookupForMirror(ctx, in.Email)
	}
	if account != nil {
		event.AccountID = account.ID
		event.TenantID = account.TenantID
		var lockedUntil *time.Time
		if err == nil && window.Locked(now) {
			until := window.LockUntil
			lockedUntil = &until
		}
		mirrorCtx, cancel := withStoreTimeout(ctx, s.timeout)
		if err := s.accounts.RecordLoginFailure(mirrorCtx, account.ID, lockedUntil); err != nil {
			log.Warn("record login failure on account failed", zap.String("account_id", account.ID), zap.Error(err))
		}
		cancel()
	}
	s.publishLogin(ctx, event)
}

func (s *AuthService) lookupForMirror(ctx context.Context, email string) *domain.Account {
	lookupCtx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	account, err := s.accounts.GetByEmail(lookupCtx, domain.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("account lookup for failure mirror failed", zap.Error(err))
		}
		return nil
	}
	return account
}

func (s *AuthService) lockoutOccurred(ctx context.Context, scope string, window domain.LoginAttemptWindow, now time.Time) {
	logger.WithContext(ctx, s.logger).Warn("login identity locked",
		zap.String("security_event", "account_locked"),
		zap.String("scope", scope),
		zap.String("identity", logger.MaskString(window.Identity)),
		zap.Time("lock_until", window.LockUntil),
		zap.Int("lockouts", window.Lockouts),
	)
	s.metrics.ObserveLockout(scope)

	if s.events == nil {
		return
	}
	payload := domain.AccountLockedEvent{
		EventID:   uuid.NewString(),
		Identity:  window.Identity,
		Scope:     scope,
		LockUntil: window.LockUntil,
		Lockouts:  window.Lockouts,
		LockedAt:  now,
	}
	if err := s.events.PublishAccountLocked(ctx, payload); err != nil {
		s.logger.Warn("publish account locked event failed", zap.String("scope", scope), zap.Error(err))
	}
}

// Refresh rotates a refresh token. Replaying a rotated token revokes its family, raises a
// security alert and fails with domain.ErrTokenReuseDetected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*domain.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	outcome, err := s.tokens.Rotate(ctx, refreshToken)
	if err == nil {
		span.SetAttributes(attribute.String("auth.outcome", outcomeSuccess))
		s.metrics.ObserveRefresh(outcomeSuccess)
		return outcome.Tokens, nil
	}

	log := logger.WithContext(ctx, s.logger)
	switch outcome.Status {
	case domain.RotationReused:
		s.reuseDetected(ctx, outcome.Previous, meta)
		s.metrics.ObserveRefresh(outcomeReuse)
	case domain.RotationFamilyRevoked:
		log.Info("refresh with revoked family rejected", zap.String("family_id", outcome.Previous.FamilyID))
		s.metrics.ObserveRefresh(outcomeRevoked)
	case domain.RotationNotFound:
		log.Warn("unknown refresh token presented",
			zap.String("security_event", "refresh_token_unknown"),
			zap.String("ip", logger.MaskIP(meta.IPAddress)),
		)
		s.metrics.ObserveRefresh(outcomeReuse)
	case domain.RotationExpired:
		log.Debug("expired refresh token presented", zap.String("family_id", outcome.Previous.FamilyID))
		s.metrics.ObserveRefresh(outcomeExpired)
	default:
		s.metrics.ObserveRefresh(outcomeFor(err))
	}
	span.SetAttributes(attribute.String("auth.outcome", string(outcome.Status)))
	return nil, err
}

func (s *AuthService) reuseDetected(ctx context.Context, previous domain.RefreshTokenRecord, meta ClientMeta) {
	event := domain.TokenReuseDetectedEvent{
		EventID:    uuid.NewString(),
		AccountID:  previous.AccountID,
		TenantID:   previous.TenantID,
		FamilyID:   previous.FamilyID,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		DetectedAt: s.now(),
	}

	logger.WithContext(ctx, s.logger).Warn("refresh token reuse detected",
		zap.String("security_event", "token_reuse_detected"),
		zap.String("account_id", previous.AccountID),
		zap.String("tenant_id", previous.TenantID),
		zap.String("family_id", previous.FamilyID),
		zap.String("ip", logger.MaskIP(meta.IPAddress)),
	)
	s.alerter.TokenReuseDetected(ctx, event)

	if s.events == nil {
		return
	}
	if err := s.events.PublishTokenReuseDetected(ctx, event); err != nil {
		s.logger.Warn("publish token reuse event failed", zap.String("family_id", previous.FamilyID), zap.Error(err))
	}
}

// Logout revokes the family of refreshToken, which must belong to the caller. Without a
// refresh token the family the access token was minted for is revoked.
func (s *AuthService) Logout(ctx context.Context, principal domain.Principal, refreshToken string) error {
	familyID := principal.FamilyID
	if refreshToken != "" {
		record, err := s.tokens.Lookup(ctx, refreshToken)
		if err != nil {
			return err
		}
		if record.AccountID != principal.AccountID {
			return domain.ErrTokenInvalid
		}
		familyID = record.FamilyID
	}
	if familyID == "" {
		return fmt.Errorf("%w: refresh token required", domain.ErrValidation)
	}

	revoked, err := s.tokens.RevokeFamily(ctx, familyID)
	if err != nil {
		return err
	}
	s.publishSessionRevoked(ctx, domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		AccountID: principal.AccountID,
		FamilyID:  familyID,
		Families:  1,
		RevokedBy: principal.AccountID,
		Reason:    "logout",
		RevokedAt: s.now(),
	})
	logger.WithContext(ctx, s.logger).Info("session logged out",
		zap.String("account_id", principal.AccountID),
		zap.String("family_id", familyID),
		zap.Int("tokens_revoked", revoked),
	)
	return nil
}

// LogoutAll revokes every family of the caller.
func (s *AuthService) LogoutAll(ctx context.Context, principal domain.Principal) (int, error) {
	return s.RevokeAllForAccount(ctx, principal.AccountID, principal.AccountID, "logout_all")
}

// RevokeAccountSessions lets an administrator of tenantID end every session of one of its accounts.
// The target must not outrank the actor.
func (s *AuthService) RevokeAccountSessions(ctx context.Context, actor domain.Principal, tenantID, accountID, reason string) (int, error) {
	if err := domain.Authorize(actor, domain.PermSessionRevoke, tenantID); err != nil {
		return 0, err
	}

	lookupCtx, cancel := withStoreTimeout(ctx, s.timeout)
	target, err := s.accounts.GetByID(lookupCtx, accountID)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, repository.ErrNotFound
		}
		return 0, storeFailure("load account", err)
	}
	if err := domain.RequireVendorAccess(actor.TenantID, target.TenantID); err != nil {
		return 0, err
	}
	if !domain.HasRole(actor.Role, target.Role) {
		return 0, domain.ErrPermissionDenied
	}

	if reason == "" {
		reason = "admin_revoke"
	}
	return s.RevokeAllForAccount(ctx, accountID, actor.AccountID, reason)
}

// RevokeAllForAccount revokes every refresh family of accountID.
func (s *AuthService) RevokeAllForAccount(ctx context.Context, accountID, revokedBy, reason string) (int, error) {
	families, err := s.tokens.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.publishSessionRevoked(ctx, domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		AccountID: accountID,
		Families:  families,
		RevokedBy: revokedBy,
		Reason:    reason,
		RevokedAt: s.now(),
	})
	logger.WithContext(ctx, s.logger).Info("account sessions revoked",
		zap.String("account_id", accountID),
		zap.String("revoked_by", revokedBy),
		zap.String("reason", reason),
		zap.Int("families", families),
	)
	return families, nil
}

// Authenticate resolves a bearer access token into a principal.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (domain.Principal, error) {
	return s.tokens.Authenticate(ctx, accessToken)
}

func (s *AuthService) publishLogin(ctx context.Context, event domain.LoginEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLogin(ctx, event); err != nil {
		s.logger.Warn("publish login event failed", zap.String("account_id", event.AccountID), zap.Error(err))
	}
}

func (s *AuthService) publishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("publish session revoked event failed", zap.String("account_id", event.AccountID), zap.Error(err))
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, domain.ErrAccountLocked):
		return outcomeLocked
	case errors.Is(err, domain.ErrInvalidCredentials):
		return outcomeInvalid
	case errors.Is(err, domain.ErrEmailNotVerified):
		return outcomeUnverified
	case errors.Is(err, domain.ErrTwoFactorInvalid):
		return outcomeTwoFactorInvalid
	case errors.Is(err, domain.ErrTwoFactorRequired):
		return outcomeTwoFactorRequired
	case errors.Is(err, domain.ErrTokenExpired):
		return outcomeExpired
	case errors.Is(err, domain.ErrTokenReuseDetected):
		return outcomeReuse
	case errors.Is(err, domain.ErrServiceUnavailable):
		return outcomeUnavailable
	default:
		return outcomeError
	}
}
