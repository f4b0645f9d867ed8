package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

func newTestJWTManager(t *testing.T) (*JWTManager, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewJWTManager(NewStaticKeyProvider("k1", key), "marketplace-auth", []string{"marketplace"}), key
}

func accessClaims(now time.Time, ttl time.Duration) *AccessTokenClaims {
	return &AccessTokenClaims{
		TenantID:  "tenant-1",
		Role:      "admin",
		FamilyID:  "family-1",
		TokenType: domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-1",
			ID:        "jti-1",
			Issuer:    "marketplace-auth",
			Audience:  jwt.ClaimStrings{"marketplace"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestJWTManagerSignAndParse(t *testing.T) {
	manager, _ := newTestJWTManager(t)
	now := time.Now().UTC()

	token, kid, err := manager.Sign(accessClaims(now, 15*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if kid != "k1" {
		t.Fatalf("kid = %q", kid)
	}

	claims, parsedKID, err := manager.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsedKID != "k1" || claims.Subject != "account-1" || claims.TenantID != "tenant-1" || claims.FamilyID != "family-1" {
		t.Fatalf("unexpected claims %+v (kid %s)", claims, parsedKID)
	}
}

func TestJWTManagerParseExpired(t *testing.T) {
	manager, _ := newTestJWTManager(t)
	issued := time.Now().UTC().Add(-time.Hour)
	token, _, err := manager.Sign(accessClaims(issued, 15*time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, _, err := manager.Parse(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTManagerParseRejectsForeignKey(t *testing.T) {
	manager, _ := newTestJWTManager(t)
	other, _ := newTestJWTManager(t)

	token, _, err := other.Sign(accessClaims(time.Now().UTC(), time.Minute))
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, _, err := manager.Parse(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, _, err := manager.Parse("not.a.jwt"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestJWTManagerParseRejectsWrongType(t *testing.T) {
	manager, _ := newTestJWTManager(t)
	claims := accessClaims(time.Now().UTC(), time.Minute)
	claims.TokenType = "refresh"
	token, _, _ := manager.Sign(claims)

	if _, _, err := manager.Parse(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTManagerParseRejectsWrongAudience(t *testing.T) {
	manager, _ := newTestJWTManager(t)
	claims := accessClaims(time.Now().UTC(), time.Minute)
	claims.Audience = jwt.ClaimStrings{"someone-else"}
	token, _, _ := manager.Sign(claims)

	if _, _, err := manager.Parse(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestJWTManagerJWKS(t *testing.T) {
	manager, key := newTestJWTManager(t)
	raw, err := manager.JWKS()
	if err != nil {
		t.Fatalf("JWKS() error = %v", err)
	}

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal jwks: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kid"] != "k1" || doc.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwks %s", raw)
	}
	if doc.Keys[0]["e"] != "AQAB" || key.PublicKey.E != 65537 {
		t.Fatalf("unexpected exponent %q", doc.Keys[0]["e"])
	}
}

func TestFileKeyProviderLoadsDirectory(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(filepath.Join(dir, "2026-01.pem"), privatePEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	retired, _ := rsa.GenerateKey(rand.Reader, 2048)
	publicDER, _ := x509.MarshalPKIXPublicKey(&retired.PublicKey)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(filepath.Join(dir, "2025-07.pub"), publicPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	provider, err := NewFileKeyProvider(dir, "")
	if err != nil {
		t.Fatalf("NewFileKeyProvider() error = %v", err)
	}
	kid, _, err := provider.SigningKey()
	if err != nil || kid != "2026-01" {
		t.Fatalf("SigningKey() = %q, %v", kid, err)
	}
	if len(provider.VerificationKeys()) != 2 {
		t.Fatalf("expected both keys published")
	}
	if _, err := provider.VerificationKey("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if _, err := NewFileKeyProvider(dir, "2025-07"); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey for public-only kid, got %v", err)
	}
}
