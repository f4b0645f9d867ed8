package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *AccountLockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified indicates the password was correct but the email is unconfirmed.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrTwoFactorRequired indicates a second factor must be supplied to finish login.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")
	// ErrTwoFactorInvalid indicates the TOTP or backup code was rejected.
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")
	// ErrTwoFactorNotEnabled indicates a 2FA operation on an account without 2FA.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrTwoFactorAlreadyEnabled indicates enrollment was requested twice.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
	// ErrTokenExpired indicates a token whose lifetime elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenReuseDetected indicates a rotated or unknown refresh token was replayed.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrPermissionDenied indicates the caller's role lacks the permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTenantMismatch indicates a cross-tenant access attempt.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrServiceUnavailable indicates a store, cache or hashing call did not complete in time.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrConflict indicates a uniqueness violation such as a duplicate registration.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// AccountLockedError carries how long the caller must wait before retrying.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked: retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrAccountLocked) match.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// NewAccountLockedError builds a lock error, clamping the wait to at least one second.
func NewAccountLockedError(retryAfter time.Duration) *AccountLockedError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &AccountLockedError{RetryAfter: retryAfter}
}

// Unavailable wraps an infrastructure failure as ErrServiceUnavailable while keeping the cause.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, ErrServiceUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrServiceUnavailable, cause)
}
