package domain

import (
	"strings"
	"time"
)

// Tenant is a vendor organisation that owns accounts and marketplace resources.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Account mirrors the authentication-relevant columns of the accounts table.
type Account struct {
	ID               string
	TenantID         string
	Email            string
	PasswordHash     string
	Role             Role
	EmailVerifiedAt  *time.Time
	TwoFactorEnabled bool
	// TwoFactorSecret holds the sealed TOTP secret; nil when 2FA is not enrolled.
	TwoFactorSecret  []byte
	FailedLoginCount int
	LockedUntil      *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EmailVerified reports whether the account confirmed ownership of its email address.
func (a Account) EmailVerified() bool {
	return a.EmailVerifiedAt != nil
}

// Ref returns the lightweight identity handed out by credential verification.
func (a Account) Ref() AccountRef {
	return AccountRef{
		ID:               a.ID,
		TenantID:         a.TenantID,
		Email:            a.Email,
		Role:             a.Role,
		EmailVerified:    a.EmailVerified(),
		TwoFactorEnabled: a.TwoFactorEnabled,
	}
}

// AccountRef is the identity produced by a successful credential check.
type AccountRef struct {
	ID               string
	TenantID         string
	Email            string
	Role             Role
	EmailVerified    bool
	TwoFactorEnabled bool
}

// NormalizeEmail lower-cases and trims an email address for lookups and uniqueness.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
