package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// Authenticator resolves a bearer access token into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (domain.Principal, error)
}

// ErrorResponder writes the HTTP representation of err and aborts the chain.
type ErrorResponder func(c *gin.Context, err error)

// RequireAuth validates the Authorization header and stores the principal in the context.
func RequireAuth(authn Authenticator, respond ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respond(c, err)
			return
		}

		principal, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			respond(c, err)
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// RequirePermission rejects principals whose role does not grant permission.
// It must run after RequireAuth.
func RequirePermission(permission domain.Permission, respond ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			respond(c, fmt.Errorf("%w: authentication required", domain.ErrTokenInvalid))
			return
		}
		if !domain.HasPermission(principal.Role, permission) {
			respond(c, domain.ErrPermissionDenied)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", domain.ErrTokenInvalid)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected bearer authorization", domain.ErrTokenInvalid)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing access token", domain.ErrTokenInvalid)
	}
	return token, nil
}
