package domain

import "time"

// Event type names published on the message bus.
const (
	EventAccountRegistered          = "auth.account.registered"
	EventEmailVerificationRequested = "auth.email_verification.requested"
	EventPasswordResetRequested     = "auth.password.reset_requested"
	EventPasswordChanged            = "auth.password.changed"
	EventLoginSucceeded             = "auth.login.succeeded"
	EventLoginFailed                = "auth.login.failed"
	EventAccountLocked              = "auth.account.locked"
	EventRefreshReuseDetected       = "auth.refresh.reuse_detected"
	EventSessionRevoked             = "auth.session.revoked"
	EventTwoFactorEnabled           = "auth.two_factor.enabled"
	EventTwoFactorDisabled          = "auth.two_factor.disabled"
	EventSessionRevokeRequested     = "auth.session.revoke_requested"
)

// AccountRegisteredEvent represents the payload for auth.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	TenantID     string
	Email        string
	Role         Role
	RegisteredAt time.Time
}

// OneTimeTokenRequestedEvent is published for email verification and password reset deliveries.
// Token is the raw single-use value the mailer embeds in a link.
type OneTimeTokenRequestedEvent struct {
	EventID     string
	AccountID   string
	Email       string
	Purpose     OneTimeTokenPurpose
	Token       string
	RequestedAt time.Time
	ExpiresAt   time.Time
	IPAddress   string
}

// PasswordChangedEvent represents the payload for auth.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	AccountID       string
	ChangedAt       time.Time
	SessionsRevoked int
}

// LoginEvent records a login outcome for audit consumers.
type LoginEvent struct {
	EventID    string
	AccountID  string
	TenantID   string
	Succeeded  bool
	Reason     string
	IPAddress  string
	UserAgent  string
	OccurredAt time.Time
}

// AccountLockedEvent represents the payload for auth.account.locked messages.
type AccountLockedEvent struct {
	EventID   string
	Identity  string
	Scope     string
	LockUntil time.Time
	Lockouts  int
	LockedAt  time.Time
}

// TokenReuseDetectedEvent represents the payload for auth.refresh.reuse_detected messages.
type TokenReuseDetectedEvent struct {
	EventID    string
	AccountID  string
	TenantID   string
	FamilyID   string
	IPAddress  string
	UserAgent  string
	DetectedAt time.Time
}

// SessionRevokedEvent represents the payload for auth.session.revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	AccountID string
	FamilyID  string
	Families  int
	RevokedBy string
	Reason    string
	RevokedAt time.Time
}

// TwoFactorChangedEvent represents auth.two_factor.enabled and auth.two_factor.disabled messages.
type TwoFactorChangedEvent struct {
	EventID   string
	AccountID string
	Enabled   bool
	ChangedAt time.Time
}

// SessionRevokeRequestedEvent is consumed from the admin portal to force a logout everywhere.
type SessionRevokeRequestedEvent struct {
	EventID     string    `json:"event_id"`
	AccountID   string    `json:"account_id"`
	TenantID    string    `json:"tenant_id"`
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}
