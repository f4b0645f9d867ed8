package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

// Throttle scopes.
const (
	ThrottleScopeAccount = "account"
	ThrottleScopeIP      = "ip"
)

// LoginThrottle applies a sliding-window lockout policy to one kind of identity.
type LoginThrottle struct {
	store   port.LoginAttemptStore
	policy  domain.LockoutPolicy
	scope   string
	timeout time.Duration
	now     func() time.Time
}

// NewLoginThrottle constructs a throttle instance for the given scope.
func NewLoginThrottle(store port.LoginAttemptStore, policy domain.LockoutPolicy, scope string, timeout time.Duration) *LoginThrottle {
	return &LoginThrottle{
		store:   store,
		policy:  policy,
		scope:   scope,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the throttle clock.
func (t *LoginThrottle) WithClock(clock func() time.Time) *LoginThrottle {
	if clock != nil {
		t.now = clock
	}
	return t
}

// Policy returns the lockout policy applied by this throttle.
func (t *LoginThrottle) Policy() domain.LockoutPolicy {
	return t.policy
}

// Scope names the identity kind this throttle guards.
func (t *LoginThrottle) Scope() string {
	return t.scope
}

// Check returns *domain.AccountLockedError while the identity is locked.
func (t *LoginThrottle) Check(ctx context.Context, identity string) error {
	ctx, cancel := withStoreTimeout(ctx, t.timeout)
	defer cancel()

	now := t.now()
	window, err := t.store.Get(ctx, identity, now)
	if err != nil {
		return storeFailure("check login throttle", err)
	}
	if window.Locked(now) {
		return domain.NewAccountLockedError(window.RetryAfter(now))
	}
	return nil
}

// RecordFailure counts a failed attempt and returns the resulting window.
func (t *LoginThrottle) RecordFailure(ctx context.Context, identity string) (domain.LoginAttemptWindow, error) {
	ctx, cancel := withStoreTimeout(ctx, t.timeout)
	defer cancel()

	window, err := t.store.RecordFailure(ctx, identity, t.policy, t.now())
	if err != nil {
		return domain.LoginAttemptWindow{}, storeFailure("record login failure", err)
	}
	return window, nil
}

// RecordSuccess clears the window and the lockout exponent.
func (t *LoginThrottle) RecordSuccess(ctx context.Context, identity string) error {
	ctx, cancel := withStoreTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.store.Reset(ctx, identity); err != nil {
		return storeFailure("reset login throttle", err)
	}
	return nil
}

// LoginIdentity derives the throttle key for an email without storing it in clear.
func LoginIdentity(email string) string {
	sum := sha256.Sum256([]byte(domain.NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

// ClientIdentity derives the coarse IP throttle key.
func ClientIdentity(ip string) string {
	return fmt.Sprintf("ip:%s", ip)
}
