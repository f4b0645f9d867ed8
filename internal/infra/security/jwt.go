package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

// ErrKeyIDMissing indicates a token header without a kid.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// AccessTokenClaims is the wire form of an access token.
type AccessTokenClaims struct {
	TenantID  string `json:"tid"`
	Role      string `json:"role"`
	FamilyID  string `json:"fid,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies RS256 access tokens and renders the JWKS document.
type JWTManager struct {
	provider KeyProvider
	issuer   string
	audience []string
	now      func() time.Time
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider, issuer string, audience []string) *JWTManager {
	return &JWTManager{
		provider: provider,
		issuer:   strings.TrimSpace(issuer),
		audience: audience,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the verification clock for deterministic testing.
func (m *JWTManager) WithClock(clock func() time.Time) *JWTManager {
	if clock != nil {
		m.now = clock
	}
	return m
}

// Issuer returns the iss claim stamped on every token.
func (m *JWTManager) Issuer() string {
	return m.issuer
}

// Audience returns the aud claim stamped on every token.
func (m *JWTManager) Audience() []string {
	return m.audience
}

// Sign signs claims with the active key and stamps its kid in the header.
func (m *JWTManager) Sign(claims *AccessTokenClaims) (string, string, error) {
	if claims == nil {
		return "", "", fmt.Errorf("jwt: access token claims required")
	}

	kid, key, err := m.provider.SigningKey()
	if err != nil {
		return "", "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		return "", "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, kid, nil
}

// Parse verifies signature, issuer, audience and expiry. Expired tokens yield
// domain.ErrTokenExpired; every other failure yields domain.ErrTokenInvalid.
func (m *JWTManager) Parse(tokenString string) (*AccessTokenClaims, string, error) {
	claims := &AccessTokenClaims{}
	var kid string

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}
	if len(m.audience) > 0 {
		options = append(options, jwt.WithAudience(m.audience[0]))
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		value, ok := token.Header["kid"].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return nil, ErrKeyIDMissing
		}
		kid = value
		return m.provider.VerificationKey(value)
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, kid, fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return nil, kid, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}

	if claims.TokenType != domain.TokenTypeAccess || claims.Subject == "" {
		return nil, kid, fmt.Errorf("%w: not an access token", domain.ErrTokenInvalid)
	}

	return claims, kid, nil
}

// JWKS produces the JSON Web Key Set for every verification key.
func (m *JWTManager) JWKS() ([]byte, error) {
	published := m.provider.VerificationKeys()
	kids := make([]string, 0, len(published))
	for kid := range published {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	keys := make([]map[string]string, 0, len(kids))
	for _, kid := range kids {
		if key := published[kid]; key != nil {
			keys = append(keys, buildJWK(kid, key))
		}
	}

	return json.Marshal(map[string]any{"keys": keys})
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
