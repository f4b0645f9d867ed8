package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestArgon2HasherRoundTrip(t *testing.T) {
	hasher, err := NewArgon2Hasher(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher() error = %v", err)
	}

	encoded, err := hasher.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := hasher.Verify("correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = hasher.Verify("wrong horse battery staple", encoded)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestArgon2HasherSaltsEveryHash(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testArgon2Config())
	first, _ := hasher.Hash("same password")
	second, _ := hasher.Hash("same password")
	if first == second {
		t.Fatalf("expected distinct salts to give distinct hashes")
	}
}

func TestArgon2HasherVerifiesLegacyBcrypt(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testArgon2Config())
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := hasher.Verify("legacy-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("Verify(bcrypt correct) = %v, %v", ok, err)
	}
	ok, err = hasher.Verify("other", string(legacy))
	if err != nil || ok {
		t.Fatalf("Verify(bcrypt wrong) = %v, %v", ok, err)
	}
}

func TestArgon2HasherRejectsMalformedHash(t *testing.T) {
	hasher, _ := NewArgon2Hasher(testArgon2Config())
	if _, err := hasher.Verify("pw", "argon2id$v=19$garbage"); err == nil {
		t.Fatalf("expected malformed hash error")
	}
	if ok, err := hasher.Verify("", "anything"); ok || err != nil {
		t.Fatalf("empty password should simply not match, got %v, %v", ok, err)
	}
}

func TestNewArgon2HasherValidatesConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Iterations = 0
	if _, err := NewArgon2Hasher(cfg); err == nil {
		t.Fatalf("expected config validation error")
	}
}
