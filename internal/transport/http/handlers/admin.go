package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// SessionAdministrator revokes another account's sessions on behalf of an admin.
type SessionAdministrator interface {
	RevokeAccountSessions(ctx context.Context, actor domain.Principal, tenantID, accountID, reason string) (int, error)
}

// AdminHandler exposes tenant administration endpoints.
type AdminHandler struct {
	sessions SessionAdministrator
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(sessions SessionAdministrator) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

// RegisterRoutes binds admin routes under r, which must already enforce authentication and permission.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tenants/:tenantId/accounts/:accountId/revoke-sessions", h.revokeSessions)
}

func (h *AdminHandler) revokeSessions(c *gin.Context) {
	actor, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req RevokeSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid revoke payload")
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin_revoke"
	}

	families, err := h.sessions.RevokeAccountSessions(c.Request.Context(), actor, c.Param("tenantId"), c.Param("accountId"), reason)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RevokedSessionsResponse{RevokedSessions: families})
}
