package domain

import "time"

// TokenTypeAccess is the typ claim carried by access tokens.
const TokenTypeAccess = "access"

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	Subject   string
	TenantID  string
	Role      Role
	FamilyID  string
	TokenID   string
	KeyID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal returns the authenticated identity the claims describe.
func (c AccessClaims) Principal() Principal {
	return Principal{
		AccountID: c.Subject,
		TenantID:  c.TenantID,
		Role:      c.Role,
		FamilyID:  c.FamilyID,
	}
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	FamilyID         string
}

// RefreshTokenRecord is the cached state of one refresh token in a rotation chain.
// The raw token is never stored; TokenID is derived from it by hashing.
type RefreshTokenRecord struct {
	TokenID   string
	FamilyID  string
	AccountID string
	TenantID  string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// IsExpired reports whether the record has elapsed its validity window.
func (r RefreshTokenRecord) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}

// RotationStatus is the outcome of an atomic refresh rotation attempt.
type RotationStatus string

const (
	RotationRotated       RotationStatus = "rotated"
	RotationNotFound      RotationStatus = "not_found"
	RotationReused        RotationStatus = "reused"
	RotationExpired       RotationStatus = "expired"
	RotationFamilyRevoked RotationStatus = "family_revoked"
)

// RotationResult reports what the store did with a presented refresh token.
// Previous is populated whenever the presented token was found.
type RotationResult struct {
	Status   RotationStatus
	Previous RefreshTokenRecord
}

// OneTimeTokenPurpose scopes single-use tokens delivered by email.
type OneTimeTokenPurpose string

const (
	PurposeEmailVerification OneTimeTokenPurpose = "email_verification"
	PurposePasswordReset     OneTimeTokenPurpose = "password_reset"
)

// OneTimeToken is a hashed single-use token for email verification or password reset.
type OneTimeToken struct {
	ID        string
	AccountID string
	TokenHash string
	Purpose   OneTimeTokenPurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}
