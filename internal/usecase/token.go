package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/security"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

const refreshTokenBytes = 32

// TokenConfig holds token lifetimes.
type TokenConfig struct {
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

// RotationOutcome reports a refresh attempt. Previous is set whenever the presented token was known.
type RotationOutcome struct {
	Tokens   *domain.TokenPair
	Status   domain.RotationStatus
	Previous domain.RefreshTokenRecord
}

// AccountLookup resolves the current state of an account.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// TokenService issues access tokens and manages refresh-token families.
type TokenService struct {
	jwt      *security.JWTManager
	store    port.RefreshTokenStore
	accounts AccountLookup
	policy   domain.DegradationPolicy
	cfg      TokenConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(jwtManager *security.JWTManager, store port.RefreshTokenStore, policy domain.DegradationPolicy, cfg TokenConfig, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		jwt:    jwtManager,
		store:  store,
		policy: policy,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the issuing clock.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithAccounts makes Rotate mint successors from the account's current role and tenant.
func (s *TokenService) WithAccounts(accounts AccountLookup) *TokenService {
	if accounts != nil {
		s.accounts = accounts
	}
	return s
}

// Issue mints an access token and the first refresh token of a new family.
func (s *TokenService) Issue(ctx context.Context, accountID string, role domain.Role, tenantID string) (*domain.TokenPair, error) {
	if accountID == "" || tenantID == "" || !role.Valid() {
		return nil, fmt.Errorf("%w: account, tenant and role are required", domain.ErrValidation)
	}

	now := s.now()
	raw, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	record := domain.RefreshTokenRecord{
		TokenID:   security.HashToken(raw),
		FamilyID:  uuid.NewString(),
		AccountID: accountID,
		TenantID:  tenantID,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.store.Save(storeCtx, record); err != nil {
		return nil, storeFailure("save refresh token", err)
	}

	return s.pairFor(record, raw, now)
}

// VerifyAccess checks signature, issuer, audience and expiry only.
func (s *TokenService) VerifyAccess(token string) (domain.AccessClaims, error) {
	claims, kid, err := s.jwt.Parse(token)
	if err != nil {
		return domain.AccessClaims{}, err
	}
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.AccessClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if claims.TenantID == "" {
		return domain.AccessClaims{}, fmt.Errorf("%w: missing tenant", domain.ErrTokenInvalid)
	}

	out := domain.AccessClaims{
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
		Role:     role,
		FamilyID: claims.FamilyID,
		TokenID:  claims.ID,
		KeyID:    kid,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Authenticate verifies an access token and rejects it when its family was revoked.
// When the family state cannot be read the degradation policy decides.
func (s *TokenService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := s.VerifyAccess(token)
	if err != nil {
		return domain.Principal{}, err
	}
	if claims.FamilyID == "" {
		return claims.Principal(), nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	revoked, err := s.store.IsFamilyRevoked(storeCtx, claims.FamilyID)
	if err != nil {
		if s.policy.AllowsFallback() {
			s.logger.Warn("family revocation lookup failed, accepting token",
				zap.String("family_id", claims.FamilyID),
				zap.String("policy", string(s.policy.Mode())),
				zap.Error(err),
			)
			return claims.Principal(), nil
		}
		return domain.Principal{}, storeFailure("check family revocation", err)
	}
	if revoked {
		return domain.Principal{}, fmt.Errorf("%w: session revoked", domain.ErrTokenInvalid)
	}
	return claims.Principal(), nil
}

// Rotate exchanges a refresh token for a new pair. Absent, rotated or revoked tokens yield
// domain.ErrTokenReuseDetected; a rotated token additionally revokes its whole family.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (RotationOutcome, error) {
	if refreshToken == "" {
		return RotationOutcome{Status: domain.RotationNotFound}, domain.ErrTokenReuseDetected
	}

	now := s.now()
	raw, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return RotationOutcome{}, err
	}
	next := domain.RefreshTokenRecord{
		TokenID:   security.HashToken(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
	}

	tokenID := security.HashToken(refreshToken)
	if err := s.resolveSubject(ctx, tokenID, &next); err != nil {
		return RotationOutcome{}, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	result, err := s.store.Rotate(storeCtx, tokenID, next, now)
	if err != nil {
		return RotationOutcome{}, storeFailure("rotate refresh token", err)
	}

	outcome := RotationOutcome{Status: result.Status, Previous: result.Previous}
	switch result.Status {
	case domain.RotationRotated:
		next.FamilyID = result.Previous.FamilyID
		next.AccountID = result.Previous.AccountID
		if next.TenantID == "" {
			next.TenantID = result.Previous.TenantID
		}
		if !next.Role.Valid() {
			next.Role = result.Previous.Role
		}
		if next.Role != result.Previous.Role || next.TenantID != result.Previous.TenantID {
			s.logger.Info("refresh picked up account change",
				zap.String("account_id", next.AccountID),
				zap.String("family_id", next.FamilyID),
				zap.String("role", next.Role.String()),
			)
		}
		pair, err := s.pairFor(next, raw, now)
		if err != nil {
			return outcome, err
		}
		outcome.Tokens = pair
		return outcome, nil
	case domain.RotationExpired:
		return outcome, domain.ErrTokenExpired
	default:
		return outcome, domain.ErrTokenReuseDetected
	}
}

// resolveSubject copies the account's current role and tenant onto next. Tokens that are
// unknown or already revoked are left to the atomic rotation to classify.
func (s *TokenService) resolveSubject(ctx context.Context, tokenID string, next *domain.RefreshTokenRecord) error {
	if s.accounts == nil {
		return nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	record, err := s.store.Get(storeCtx, tokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storeFailure("lookup refresh token", err)
	}
	if record.Revoked {
		return nil
	}

	account, err := s.accounts.GetByID(storeCtx, record.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if _, revokeErr := s.store.RevokeFamily(storeCtx, record.FamilyID); revokeErr != nil {
				s.logger.Warn("revoke family of missing account failed", zap.String("family_id", record.FamilyID), zap.Error(revokeErr))
			}
			return fmt.Errorf("%w: account no longer exists", domain.ErrTokenInvalid)
		}
		return storeFailure("load account", err)
	}

	next.Role = account.Role
	next.TenantID = account.TenantID
	return nil
}

// Lookup resolves the stored record of a raw refresh token.
func (s *TokenService) Lookup(ctx context.Context, refreshToken string) (*domain.RefreshTokenRecord, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	record, err := s.store.Get(storeCtx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, storeFailure("lookup refresh token", err)
	}
	return record, nil
}

// RevokeFamily revokes every token of a family and returns how many were live.
func (s *TokenService) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	count, err := s.store.RevokeFamily(storeCtx, familyID)
	if err != nil {
		return 0, storeFailure("revoke token family", err)
	}
	return count, nil
}

// RevokeAll revokes every family of an account and returns how many families were revoked.
func (s *TokenService) RevokeAll(ctx context.Context, accountID string) (int, error) {
	storeCtx, cancel := withStoreTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	count, err := s.store.RevokeAccount(storeCtx, accountID)
	if err != nil {
		return 0, storeFailure("revoke account tokens", err)
	}
	return count, nil
}

// JWKS renders the public verification keys.
func (s *TokenService) JWKS() ([]byte, error) {
	return s.jwt.JWKS()
}

func (s *TokenService) pairFor(record domain.RefreshTokenRecord, rawRefresh string, now time.Time) (*domain.TokenPair, error) {
	accessExpiry := now.Add(s.cfg.AccessTTL)
	claims := &security.AccessTokenClaims{
		TenantID:  record.TenantID,
		Role:      record.Role.String(),
		FamilyID:  record.FamilyID,
		TokenType: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   record.AccountID,
			Issuer:    s.jwt.Issuer(),
			Audience:  jwt.ClaimStrings(s.jwt.Audience()),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	}

	signed, _, err := s.jwt.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:      signed,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     rawRefresh,
		RefreshExpiresAt: record.ExpiresAt,
		FamilyID:         record.FamilyID,
	}, nil
}
