package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
	"github.com/omairakapasha/EventAI-sub001/internal/usecase"
)

// AccountService covers registration, email verification and password recovery.
type AccountService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*domain.Account, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string, meta usecase.ClientMeta) error
	ForgotPassword(ctx context.Context, email string, meta usecase.ClientMeta) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

// AccountHandler exposes account lifecycle endpoints.
type AccountHandler struct {
	accounts AccountService
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterRoutes binds account routes. recoveryLimits guard the endpoints that send email.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, registerLimits, recoveryLimits []gin.HandlerFunc) {
	r.POST("/register", withMiddleware(registerLimits, h.register)...)
	r.GET("/verify-email/:token", h.verifyEmail)
	r.POST("/resend-verification", withMiddleware(recoveryLimits, h.resendVerification)...)
	r.POST("/forgot-password", withMiddleware(recoveryLimits, h.forgotPassword)...)
	r.POST("/reset-password", withMiddleware(recoveryLimits, h.resetPassword)...)
	r.GET("/me", requireAuth, h.me)
}

func (h *AccountHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email, password and vendorName are required")
		return
	}

	account, err := h.accounts.Register(c.Request.Context(), usecase.RegisterInput{
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		VendorName: strings.TrimSpace(req.VendorName),
		ClientMeta: clientMeta(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		User:                 newUserSummary(*account),
		RequiresVerification: !account.EmailVerified(),
	})
}

func (h *AccountHandler) verifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		badRequest(c, "verification token is required")
		return
	}

	if err := h.accounts.VerifyEmail(c.Request.Context(), token); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "email verified"})
}

func (h *AccountHandler) resendVerification(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}

	if err := h.accounts.ResendVerification(c.Request.Context(), strings.TrimSpace(req.Email), clientMeta(c)); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists and is unverified, a verification email has been sent"})
}

func (h *AccountHandler) forgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email is required")
		return
	}

	if err := h.accounts.ForgotPassword(c.Request.Context(), strings.TrimSpace(req.Email), clientMeta(c)); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the account exists, a password reset email has been sent"})
}

func (h *AccountHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token and newPassword are required")
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *AccountHandler) me(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondError(c, domain.ErrTokenInvalid)
		return
	}

	account, err := h.accounts.GetAccount(c.Request.Context(), principal.AccountID)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*account))
}
