package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/security"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
	redisrepo "github.com/omairakapasha/EventAI-sub001/internal/repository/redis"
)

const testPassword = "Harbour-Lantern-Velvet-42"

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func testHasher(t *testing.T) *security.Argon2Hasher {
	t.Helper()
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return hasher
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryAccounts implements the account and 2FA repositories in memory.
type memoryAccounts struct {
	mu          sync.Mutex
	accounts    map[string]domain.Account
	tenants     map[string]domain.Tenant
	backupCodes map[string]map[string]struct{}
	failures    map[string]int
	err         error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		accounts:    make(map[string]domain.Account),
		tenants:     make(map[string]domain.Tenant),
		backupCodes: make(map[string]map[string]struct{}),
		failures:    make(map[string]int),
	}
}

func (m *memoryAccounts) put(account domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
}

func (m *memoryAccounts) CreateWithTenant(_ context.Context, tenant domain.Tenant, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return domain.ErrConflict
		}
	}
	m.tenants[tenant.ID] = tenant
	m.accounts[account.ID] = account
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (m *memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, account := range m.accounts {
		if account.Email == domain.NormalizeEmail(email) {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryAccounts) UpdatePassword(_ context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = hash
	account.UpdatedAt = at
	m.accounts[id] = account
	return nil
}

func (m *memoryAccounts) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.EmailVerifiedAt = &at
	m.accounts[id] = account
	return nil
}

func (m *memoryAccounts) RecordLoginFailure(_ context.Context, id string, lockedUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedLoginCount++
	account.LockedUntil = lockedUntil
	m.accounts[id] = account
	return nil
}

func (m *memoryAccounts) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedLoginCount = 0
	account.LockedUntil = nil
	account.LastLoginAt = &at
	m.accounts[id] = account
	return nil
}

func (m *memoryAccounts) EnableTwoFactor(_ context.Context, accountID string, sealed []byte, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	if account.TwoFactorEnabled {
		return domain.ErrTwoFactorAlreadyEnabled
	}
	account.TwoFactorEnabled = true
	account.TwoFactorSecret = sealed
	m.accounts[accountID] = account
	m.setCodes(accountID, hashes)
	return nil
}

func (m *memoryAccounts) DisableTwoFactor(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.TwoFactorEnabled = false
	account.TwoFactorSecret = nil
	m.accounts[accountID] = account
	delete(m.backupCodes, accountID)
	return nil
}

func (m *memoryAccounts) ReplaceBackupCodes(_ context.Context, accountID string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCodes(accountID, hashes)
	return nil
}

func (m *memoryAccounts) ConsumeBackupCode(_ context.Context, accountID, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.backupCodes[accountID]
	if _, ok := codes[hash]; !ok {
		return false, nil
	}
	delete(codes, hash)
	return true, nil
}

func (m *memoryAccounts) CountBackupCodes(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backupCodes[accountID]), nil
}

func (m *memoryAccounts) setCodes(accountID string, hashes []string) {
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	m.backupCodes[accountID] = set
}

type memoryOneTimeTokens struct {
	mu     sync.Mutex
	tokens map[string]domain.OneTimeToken
}

func newMemoryOneTimeTokens() *memoryOneTimeTokens {
	return &memoryOneTimeTokens{tokens: make(map[string]domain.OneTimeToken)}
}

func (m *memoryOneTimeTokens) Create(_ context.Context, token domain.OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memoryOneTimeTokens) Consume(_ context.Context, hash string, purpose domain.OneTimeTokenPurpose, at time.Time) (*domain.OneTimeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[hash]
	if !ok || token.Purpose != purpose || token.UsedAt != nil || !token.ExpiresAt.After(at) {
		return nil, repository.ErrNotFound
	}
	token.UsedAt = &at
	m.tokens[hash] = token
	return &token, nil
}

func (m *memoryOneTimeTokens) InvalidateForAccount(_ context.Context, accountID string, purpose domain.OneTimeTokenPurpose, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, token := range m.tokens {
		if token.AccountID == accountID && token.Purpose == purpose && token.UsedAt == nil {
			token.UsedAt = &at
			m.tokens[hash] = token
		}
	}
	return nil
}

// recordingEvents captures published events.
type recordingEvents struct {
	mu             sync.Mutex
	registered     []domain.AccountRegisteredEvent
	oneTime        []domain.OneTimeTokenRequestedEvent
	passwordChange []domain.PasswordChangedEvent
	logins         []domain.LoginEvent
	locked         []domain.AccountLockedEvent
	reuse          []domain.TokenReuseDetectedEvent
	revoked        []domain.SessionRevokedEvent
	twoFactor      []domain.TwoFactorChangedEvent
}

func (r *recordingEvents) PublishAccountRegistered(_ context.Context, e domain.AccountRegisteredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, e)
	return nil
}

func (r *recordingEvents) PublishOneTimeTokenRequested(_ context.Context, e domain.OneTimeTokenRequestedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oneTime = append(r.oneTime, e)
	return nil
}

func (r *recordingEvents) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passwordChange = append(r.passwordChange, e)
	return nil
}

func (r *recordingEvents) PublishLogin(_ context.Context, e domain.LoginEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, e)
	return nil
}

func (r *recordingEvents) PublishAccountLocked(_ context.Context, e domain.AccountLockedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = append(r.locked, e)
	return nil
}

func (r *recordingEvents) PublishTokenReuseDetected(_ context.Context, e domain.TokenReuseDetectedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reuse = append(r.reuse, e)
	return nil
}

func (r *recordingEvents) PublishSessionRevoked(_ context.Context, e domain.SessionRevokedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, e)
	return nil
}

func (r *recordingEvents) PublishTwoFactorChanged(_ context.Context, e domain.TwoFactorChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.twoFactor = append(r.twoFactor, e)
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []domain.TokenReuseDetectedEvent
}

func (a *recordingAlerter) TokenReuseDetected(_ context.Context, e domain.TokenReuseDetectedEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, e)
}

type countingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	refresh  map[string]int
	lockouts map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{logins: map[string]int{}, refresh: map[string]int{}, lockouts: map[string]int{}}
}

func (m *countingMetrics) ObserveLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *countingMetrics) ObserveRefresh(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[outcome]++
}

func (m *countingMetrics) ObserveLockout(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts[scope]++
}

func (m *countingMetrics) ObserveTwoFactor(string) {}

// authFixture wires every use case against miniredis and in-memory repositories.
type authFixture struct {
	redis     *miniredis.Miniredis
	client    *red.Client
	clock     *testClock
	accounts  *memoryAccounts
	oneTime   *memoryOneTimeTokens
	events    *recordingEvents
	alerter   *recordingAlerter
	metrics   *countingMetrics
	hasher    *security.Argon2Hasher
	totp      *security.TOTP
	sealer    *security.SecretBox
	codes     *security.BackupCodeHasher
	jwt       *security.JWTManager
	tokens    *TokenService
	throttle  *LoginThrottle
	twoFactor *TwoFactorService
	auth      *AuthService
	account   *AccountService
}

var testLockoutPolicy = domain.LockoutPolicy{
	Window:       15 * time.Minute,
	MaxFailures:  5,
	BaseDuration: 15 * time.Minute,
	MaxDuration:  24 * time.Hour,
	Decay:        24 * time.Hour,
}

func newAuthFixture(t *testing.T, policy domain.DegradationPolicy) *authFixture {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := red.NewClient(&red.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	f := &authFixture{
		redis:    server,
		client:   client,
		clock:    newTestClock(),
		accounts: newMemoryAccounts(),
		oneTime:  newMemoryOneTimeTokens(),
		events:   &recordingEvents{},
		alerter:  &recordingAlerter{},
		metrics:  newCountingMetrics(),
		hasher:   testHasher(t),
		totp:     security.NewTOTP(security.TOTPConfig{Issuer: "Marketplace", Period: 30, Skew: 1, Digits: 6}),
		codes:    security.NewBackupCodeHasher([]byte("pepper")),
	}
	f.sealer, err = security.NewSecretBox("test-encryption-key")
	if err != nil {
		t.Fatalf("secretbox: %v", err)
	}

	f.jwt = security.NewJWTManager(security.NewStaticKeyProvider("test-key", signingKey(t)), "marketplace-auth", []string{"marketplace"})

	store := redisrepo.NewRefreshTokenStore(client, redisrepo.RefreshTokenStoreConfig{KeyPrefix: "rt", Retention: 24 * time.Hour, FamilyTTL: 8 * 24 * time.Hour})
	f.tokens = NewTokenService(f.jwt, store, policy, TokenConfig{AccessTTL: 15 * time.Minute, RefreshTTL: 7 * 24 * time.Hour}, nil)

	f.throttle = NewLoginThrottle(redisrepo.NewLoginAttemptStore(client, "login"), testLockoutPolicy, ThrottleScopeAccount, time.Second).WithClock(f.clock.Now)
	ipThrottle := NewLoginThrottle(redisrepo.NewLoginAttemptStore(client, "login-ip"), domain.LockoutPolicy{
		Window:       15 * time.Minute,
		MaxFailures:  50,
		BaseDuration: 5 * time.Minute,
		MaxDuration:  time.Hour,
		Decay:        time.Hour,
	}, ThrottleScopeIP, time.Second).WithClock(f.clock.Now)

	credentials, err := NewCredentialVerifier(f.accounts, f.hasher, 5*time.Second)
	if err != nil {
		t.Fatalf("credential verifier: %v", err)
	}

	twoFactorStore := redisrepo.NewTwoFactorStore(client, "2fa")
	f.twoFactor = NewTwoFactorService(f.accounts, twoFactorStore, twoFactorStore, f.totp, f.sealer, f.codes, credentials, f.throttle, f.events, TwoFactorConfig{BackupCodeCount: 10, EnrollmentTTL: 10 * time.Minute}, nil).
		WithClock(f.clock.Now)

	f.auth, err = NewAuthService(AuthDeps{
		Accounts:             f.accounts,
		Credentials:          credentials,
		AccountThrottle:      f.throttle,
		IPThrottle:           ipThrottle,
		TwoFactor:            f.twoFactor,
		Tokens:               f.tokens,
		Events:               f.events,
		Alerter:              f.alerter,
		Metrics:              f.metrics,
		RequireVerifiedEmail: true,
	})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	f.auth.WithClock(f.clock.Now)

	f.account = NewAccountService(f.accounts, f.oneTime, f.hasher, security.NewPasswordPolicy(), f.tokens, f.throttle, f.events, AccountConfig{}, nil).
		WithClock(f.clock.Now)

	return f
}

// seedAccount stores a verified account with testPassword.
func (f *authFixture) seedAccount(t *testing.T, id, email string, role domain.Role, tenantID string) domain.Account {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	verified := f.clock.Now()
	account := domain.Account{
		ID:              id,
		TenantID:        tenantID,
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		EmailVerifiedAt: &verified,
		CreatedAt:       verified,
	}
	f.accounts.put(account)
	return account
}
