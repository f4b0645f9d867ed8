package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/transport/http/middleware"
	"github.com/omairakapasha/EventAI-sub001/internal/usecase"
)

// AuthService is the login, refresh and logout surface consumed by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, in usecase.LoginInput) (*domain.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, in usecase.LoginInput) (*domain.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, meta usecase.ClientMeta) (*domain.TokenPair, error)
	Logout(ctx context.Context, principal domain.Principal, refreshToken string) error
	LogoutAll(ctx context.Context, principal domain.Principal) (int, error)
}

// AuthHandler exposes the token lifecycle endpoints.
type AuthHandler struct {
	auth AuthService
	now  func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth, now: time.Now}
}

// RegisterRoutes binds the public and authenticated token routes. credentialLimits guard the
// endpoints that accept a password; refreshLimits guard token rotation.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, credentialLimits, refreshLimits []gin.HandlerFunc) {
	r.POST("/login", withMiddleware(credentialLimits, h.login)...)
	r.POST("/verify-2fa", withMiddleware(credentialLimits, h.verifyTwoFactor)...)
	r.POST("/refresh-token", withMiddleware(refreshLimits, h.refresh)...)
	r.POST("/logout", requireAuth, h.logout)
	r.POST("/logout-all", requireAuth, h.logoutAll)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:         strings.TrimSpace(req.Email),
		Password:      req.Password,
		TwoFactorCode: strings.TrimSpace(req.TwoFactorCode),
		ClientMeta:    clientMeta(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.respondLoginResult(c, result)
}

func (h *AuthHandler) verifyTwoFactor(c *gin.Context) {
	var req VerifyTwoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email, password and code are required")
		return
	}

	result, err := h.auth.VerifyTwoFactor(c.Request.Context(), usecase.LoginInput{
		Email:         strings.TrimSpace(req.Email),
		Password:      req.Password,
		TwoFactorCode: strings.TrimSpace(req.Code),
		ClientMeta:    clientMeta(c),
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	h.respondLoginResult(c, result)
}

func (h *AuthHandler) respondLoginResult(c *gin.Context, result *domain.LoginResult) {
	if result.Step == domain.LoginStepTwoFactorRequired || result.Tokens == nil {
		c.JSON(http.StatusOK, TwoFactorChallengeResponse{RequiresTwoFactor: true})
		return
	}

	resp := newTokenResponse(result.Tokens, h.now())
	user := newUserSummaryFromRef(result.Account)
	resp.User = &user
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refreshToken is required")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken), clientMeta(c))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair, h.now()))
}

func (h *AuthHandler) logout(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondError(c, domain.ErrTokenInvalid)
		return
	}

	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid logout payload")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), principal, strings.TrimSpace(req.RefreshToken)); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

func (h *AuthHandler) logoutAll(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondError(c, domain.ErrTokenInvalid)
		return
	}

	families, err := h.auth.LogoutAll(c.Request.Context(), principal)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RevokedSessionsResponse{RevokedSessions: families})
}

func clientMeta(c *gin.Context) usecase.ClientMeta {
	return usecase.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func withMiddleware(middlewares []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, len(middlewares)+1)
	for _, m := range middlewares {
		if m != nil {
			chain = append(chain, m)
		}
	}
	return append(chain, handler)
}
