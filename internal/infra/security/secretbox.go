package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

var errSealedTooShort = errors.New("secretbox: sealed value too short")

// SecretBox seals secrets at rest with XChaCha20-Poly1305.
// Sealed values are nonce || ciphertext.
type SecretBox struct {
	key []byte
}

// NewSecretBox accepts a 32-byte key, or a base64 encoding of one. Any other
// non-empty input is stretched with SHA-256 so development setups can use a passphrase.
func NewSecretBox(key string) (*SecretBox, error) {
	if key == "" {
		return nil, fmt.Errorf("secretbox: encryption key is required")
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return &SecretBox{key: decoded}, nil
	}
	if len(key) == chacha20poly1305.KeySize {
		return &SecretBox{key: []byte(key)}, nil
	}
	sum := sha256.Sum256([]byte(key))
	return &SecretBox{key: sum[:]}, nil
}

// Seal encrypts plaintext bound to associatedData.
func (b *SecretBox) Seal(plaintext, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secretbox: generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

// Open decrypts a value produced by Seal with the same associatedData.
func (b *SecretBox) Open(sealed, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errSealedTooShort
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("secretbox: open: %w", err)
	}
	return plaintext, nil
}

var _ port.SecretSealer = (*SecretBox)(nil)
