package handlers

import (
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary is the account view returned to the owner of the account.
type UserSummary struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	EmailVerified    bool       `json:"emailVerified"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
}

// RegisterRequest defines the payload for vendor registration.
type RegisterRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	VendorName string `json:"vendorName" binding:"required"`
}

// RegisterResponse is returned after registration; the account must verify its email.
type RegisterResponse struct {
	User                 UserSummary `json:"user"`
	RequiresVerification bool        `json:"requiresVerification"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	TwoFactorCode string `json:"twoFactorCode"`
}

// VerifyTwoFactorRequest completes a login that stopped at the second factor.
type VerifyTwoFactorRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken           string       `json:"accessToken"`
	RefreshToken          string       `json:"refreshToken"`
	TokenType             string       `json:"tokenType"`
	ExpiresIn             int          `json:"expiresIn"`
	RefreshTokenExpiresAt time.Time    `json:"refreshTokenExpiresAt"`
	User                  *UserSummary `json:"user,omitempty"`
}

// TwoFactorChallengeResponse is returned when login needs a second factor.
type TwoFactorChallengeResponse struct {
	RequiresTwoFactor bool `json:"requiresTwoFactor"`
}

// RefreshRequest carries the refresh token presented for rotation.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest optionally names the refresh token whose family should end.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RevokedSessionsResponse reports how many refresh families were revoked.
type RevokedSessionsResponse struct {
	RevokedSessions int `json:"revokedSessions"`
}

// EmailRequest carries an email for forgot-password and resend-verification.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest consumes a password reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// TwoFactorSetupResponse is shown once during enrollment.
type TwoFactorSetupResponse struct {
	Secret          string    `json:"secret"`
	QRCode          string    `json:"qrCode"`
	ProvisioningURI string    `json:"provisioningUri"`
	BackupCodes     []string  `json:"backupCodes"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// TwoFactorEnableRequest confirms enrollment with the pending secret and a current code.
type TwoFactorEnableRequest struct {
	Secret string `json:"secret" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// PasswordConfirmationRequest carries the current password for sensitive operations.
type PasswordConfirmationRequest struct {
	Password string `json:"password" binding:"required"`
}

// BackupCodesResponse returns newly generated backup codes.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

// BackupCodesStatusResponse reports how many backup codes remain unused.
type BackupCodesStatusResponse struct {
	Remaining int `json:"remaining"`
}

// RevokeSessionsRequest is the optional body of the admin revoke endpoint.
type RevokeSessionsRequest struct {
	Reason string `json:"reason"`
}

// HealthResponse represents the payload for liveness checks.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

// ReadyResponse represents the payload for readiness checks.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newUserSummary(account domain.Account) UserSummary {
	summary := UserSummary{
		ID:               account.ID,
		TenantID:         account.TenantID,
		Email:            account.Email,
		Role:             account.Role.String(),
		EmailVerified:    account.EmailVerified(),
		TwoFactorEnabled: account.TwoFactorEnabled,
		LastLoginAt:      account.LastLoginAt,
	}
	if !account.CreatedAt.IsZero() {
		created := account.CreatedAt.UTC()
		summary.CreatedAt = &created
	}
	return summary
}

func newUserSummaryFromRef(ref domain.AccountRef) UserSummary {
	return UserSummary{
		ID:               ref.ID,
		TenantID:         ref.TenantID,
		Email:            ref.Email,
		Role:             ref.Role.String(),
		EmailVerified:    ref.EmailVerified,
		TwoFactorEnabled: ref.TwoFactorEnabled,
	}
}

func newTokenResponse(pair *domain.TokenPair, now time.Time) TokenResponse {
	expiresIn := int(pair.AccessExpiresAt.Sub(now).Round(time.Second) / time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return TokenResponse{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		TokenType:             "Bearer",
		ExpiresIn:             expiresIn,
		RefreshTokenExpiresAt: pair.RefreshExpiresAt.UTC(),
	}
}
