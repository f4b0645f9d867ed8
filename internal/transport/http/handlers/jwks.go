package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const jwksCacheControl = "public, max-age=3600"

// KeySetSource renders the public JSON Web Key Set.
type KeySetSource interface {
	JWKS() ([]byte, error)
}

// JWKSHandler provides the JSON Web Key Set used by marketplace services to verify access tokens offline.
type JWKSHandler struct {
	keys KeySetSource
}

// NewJWKSHandler constructs a JWKS handler backed by the supplied key source.
func NewJWKSHandler(keys KeySetSource) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// Keys serves /.well-known/jwks.json.
func (h *JWKSHandler) Keys(c *gin.Context) {
	if h == nil || h.keys == nil {
		RespondError(c, errors.New("jwks source not configured"))
		return
	}

	payload, err := h.keys.JWKS()
	if err != nil {
		RespondError(c, err)
		return
	}

	c.Header("Cache-Control", jwksCacheControl)
	c.Data(http.StatusOK, "application/json", payload)
}
