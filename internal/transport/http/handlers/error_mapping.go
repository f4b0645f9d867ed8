package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
)

// ErrorCase maps a sentinel error to an HTTP status, a stable code and a client-safe message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// errorCases is evaluated in order; the first errors.Is match wins.
var errorCases = []ErrorCase{
	{Err: domain.ErrValidation, Status: http.StatusBadRequest, Code: "validation_failed", Message: "request validation failed"},
	{Err: domain.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid email or password"},
	{Err: domain.ErrTwoFactorRequired, Status: http.StatusUnauthorized, Code: "two_factor_required", Message: "two-factor code required"},
	{Err: domain.ErrTwoFactorInvalid, Status: http.StatusUnauthorized, Code: "two_factor_invalid", Message: "invalid two-factor code"},
	{Err: domain.ErrTokenExpired, Status: http.StatusUnauthorized, Code: "token_expired", Message: "token expired"},
	{Err: domain.ErrTokenReuseDetected, Status: http.StatusUnauthorized, Code: "token_reuse_detected", Message: "refresh token is no longer valid"},
	{Err: domain.ErrTokenInvalid, Status: http.StatusUnauthorized, Code: "token_invalid", Message: "invalid token"},
	{Err: domain.ErrAccountLocked, Status: http.StatusForbidden, Code: "account_locked", Message: "too many failed attempts"},
	{Err: domain.ErrEmailNotVerified, Status: http.StatusForbidden, Code: "email_not_verified", Message: "email address not verified"},
	{Err: domain.ErrPermissionDenied, Status: http.StatusForbidden, Code: "permission_denied", Message: "permission denied"},
	{Err: domain.ErrTenantMismatch, Status: http.StatusForbidden, Code: "tenant_mismatch", Message: "permission denied"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Code: "conflict", Message: "resource already exists"},
	{Err: domain.ErrTwoFactorAlreadyEnabled, Status: http.StatusConflict, Code: "two_factor_already_enabled", Message: "two-factor authentication already enabled"},
	{Err: domain.ErrTwoFactorNotEnabled, Status: http.StatusBadRequest, Code: "two_factor_not_enabled", Message: "two-factor authentication not enabled"},
	{Err: repository.ErrNotFound, Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"},
	{Err: domain.ErrServiceUnavailable, Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: "service temporarily unavailable, retry later"},
}

// RespondError writes the mapped error body and aborts the handler chain. The raw error is
// attached to the context for the access log and never returned to the client.
func RespondError(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	_ = c.Error(err)

	var locked *domain.AccountLockedError
	if errors.As(err, &locked) {
		c.Header("Retry-After", strconv.Itoa(int(locked.RetryAfter.Round(time.Second)/time.Second)))
	}

	for _, cs := range errorCases {
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if cs.Err == domain.ErrValidation {
				message = validationMessage(err)
			}
			abortWithError(c, cs.Status, cs.Code, message)
			return
		}
	}

	abortWithError(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

// validationMessage exposes the field or password policy message carried by a validation error.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, middleware.ErrorBody{
		Error:   message,
		Code:    code,
		TraceID: middleware.GetTraceID(c),
	})
}

func badRequest(c *gin.Context, message string) {
	_ = c.Error(errors.New(message))
	abortWithError(c, http.StatusBadRequest, "validation_failed", message)
}
