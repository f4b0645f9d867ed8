package domain

import "time"

// Principal is the authenticated caller derived from a verified access token.
// It is passed by value through request contexts and never mutated.
type Principal struct {
	AccountID string
	TenantID  string
	Role      Role
	FamilyID  string
}

// IsZero reports whether no identity is present.
func (p Principal) IsZero() bool {
	return p.AccountID == ""
}

// LoginAttemptWindow is the throttle state of one identity.
type LoginAttemptWindow struct {
	Identity    string
	WindowStart time.Time
	Count       int
	LockUntil   time.Time
	Lockouts    int
}

// Locked reports whether the identity is locked at the given instant.
func (w LoginAttemptWindow) Locked(at time.Time) bool {
	return w.LockUntil.After(at)
}

// RetryAfter returns the remaining lock duration, or zero when unlocked.
func (w LoginAttemptWindow) RetryAfter(at time.Time) time.Duration {
	if !w.Locked(at) {
		return 0
	}
	return w.LockUntil.Sub(at)
}

// LoginStep names the state the login state machine stopped in.
type LoginStep string

const (
	LoginStepAuthenticated     LoginStep = "authenticated"
	LoginStepTwoFactorRequired LoginStep = "two_factor_required"
)

// LoginResult is the outcome of a login attempt that was not rejected.
type LoginResult struct {
	Step    LoginStep
	Account AccountRef
	Tokens  *TokenPair
}

// TwoFactorEnrollment is returned by 2FA setup; Secret and BackupCodes are shown once.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
	BackupCodes     []string
	ExpiresAt       time.Time
}

// PendingEnrollment is the server-side copy of an unconfirmed 2FA enrollment.
type PendingEnrollment struct {
	AccountID        string
	SealedSecret     []byte
	BackupCodeHashes []string
	CreatedAt        time.Time
}

// LockoutPolicy parameterises one throttle instance.
type LockoutPolicy struct {
	Window       time.Duration
	MaxFailures  int
	BaseDuration time.Duration
	MaxDuration  time.Duration
	// Decay is how long an identity must stay quiet after a lock before its lockout count resets.
	Decay time.Duration
}

// LockDuration returns base * 2^(lockouts-1) capped at MaxDuration, for lockouts >= 1.
func (p LockoutPolicy) LockDuration(lockouts int) time.Duration {
	if lockouts < 1 {
		lockouts = 1
	}
	d := p.BaseDuration
	for i := 1; i < lockouts; i++ {
		d *= 2
		if p.MaxDuration > 0 && d >= p.MaxDuration {
			return p.MaxDuration
		}
	}
	if p.MaxDuration > 0 && d > p.MaxDuration {
		return p.MaxDuration
	}
	return d
}
