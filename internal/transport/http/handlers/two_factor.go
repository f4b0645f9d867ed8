package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
)

// TwoFactorService manages TOTP enrollment and backup codes for the caller.
type TwoFactorService interface {
	Enroll(ctx context.Context, accountID string) (*domain.TwoFactorEnrollment, error)
	ConfirmEnrollment(ctx context.Context, accountID, secret, code string) error
	Disable(ctx context.Context, accountID, password string) error
	RegenerateBackupCodes(ctx context.Context, accountID, password string) ([]string, error)
	RemainingBackupCodes(ctx context.Context, accountID string) (int, error)
}

// TwoFactorHandler exposes the /2fa endpoints. Every route requires an access token.
type TwoFactorHandler struct {
	twoFactor TwoFactorService
}

// NewTwoFactorHandler constructs TwoFactorHandler.
func NewTwoFactorHandler(twoFactor TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// RegisterRoutes binds the 2FA routes under r, which must already enforce authentication.
// passwordLimits guard the routes that take the account password.
func (h *TwoFactorHandler) RegisterRoutes(r *gin.RouterGroup, passwordLimits []gin.HandlerFunc) {
	r.POST("/setup", h.setup)
	r.POST("/enable", h.enable)
	r.POST("/disable", withMiddleware(passwordLimits, h.disable)...)
	r.POST("/backup-codes", withMiddleware(passwordLimits, h.regenerateBackupCodes)...)
	r.GET("/backup-codes", h.backupCodeStatus)
}

func (h *TwoFactorHandler) setup(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	enrollment, err := h.twoFactor.Enroll(c.Request.Context(), principal.AccountID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, TwoFactorSetupResponse{
		Secret:          enrollment.Secret,
		QRCode:          enrollment.QRCode,
		ProvisioningURI: enrollment.ProvisioningURI,
		BackupCodes:     enrollment.BackupCodes,
		ExpiresAt:       enrollment.ExpiresAt.UTC(),
	})
}

func (h *TwoFactorHandler) enable(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req TwoFactorEnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "secret and code are required")
		return
	}

	err := h.twoFactor.ConfirmEnrollment(c.Request.Context(), principal.AccountID, strings.TrimSpace(req.Secret), strings.TrimSpace(req.Code))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication enabled"})
}

func (h *TwoFactorHandler) disable(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req PasswordConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password is required")
		return
	}

	if err := h.twoFactor.Disable(c.Request.Context(), principal.AccountID, req.Password); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "two-factor authentication disabled"})
}

func (h *TwoFactorHandler) regenerateBackupCodes(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req PasswordConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "password is required")
		return
	}

	codes, err := h.twoFactor.RegenerateBackupCodes(c.Request.Context(), principal.AccountID, req.Password)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

func (h *TwoFactorHandler) backupCodeStatus(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	remaining, err := h.twoFactor.RemainingBackupCodes(c.Request.Context(), principal.AccountID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, BackupCodesStatusResponse{Remaining: remaining})
}

func requirePrincipal(c *gin.Context) (domain.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondError(c, domain.ErrTokenInvalid)
		return domain.Principal{}, false
	}
	return principal, true
}
