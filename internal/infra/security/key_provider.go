package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrNoSigningKey    = errors.New("no private key found for signing")
	errUnsupportedKeyF = errors.New("unsupported key format")
)

// KeyProvider supplies the process-wide signing key and the public keys accepted for verification.
type KeyProvider interface {
	SigningKey() (kid string, key *rsa.PrivateKey, err error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// FileKeyProvider loads PEM keys from a directory once at startup.
// The kid of each key is its file name without extension.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKID string
	signingKey *rsa.PrivateKey
}

// NewFileKeyProvider reads every PEM file in keyDir. When signingKID is empty the
// lexically first private key signs.
func NewFileKeyProvider(keyDir, signingKID string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if !file.IsDir() {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}
	privateKeys := make(map[string]*rsa.PrivateKey)

	for _, name := range names {
		path := filepath.Join(keyDir, name)
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(name, filepath.Ext(name))
		private, public, err := parseRSAKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}
		if private != nil {
			privateKeys[kid] = private
			if provider.signingKID == "" && signingKID == "" {
				provider.signingKID = kid
			}
		}
		provider.keys[kid] = public
	}

	if signingKID != "" {
		provider.signingKID = signingKID
	}
	provider.signingKey = privateKeys[provider.signingKID]
	if provider.signingKey == nil {
		return nil, ErrNoSigningKey
	}

	return provider, nil
}

// NewStaticKeyProvider wraps a single in-memory key pair.
func NewStaticKeyProvider(kid string, key *rsa.PrivateKey) *FileKeyProvider {
	return &FileKeyProvider{
		keys:       map[string]*rsa.PublicKey{kid: &key.PublicKey},
		signingKID: kid,
		signingKey: key,
	}
}

func parseRSAKey(data []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, errors.New("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, &key.PublicKey, nil
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return nil, key, nil
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}

	return nil, nil, errUnsupportedKeyF
}

// SigningKey returns the active key id and private key.
func (p *FileKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return "", nil, ErrNoSigningKey
	}
	return p.signingKID, p.signingKey, nil
}

// VerificationKey returns the public key registered under kid.
func (p *FileKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// VerificationKeys returns a copy of every loaded public key by kid.
func (p *FileKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

var _ KeyProvider = (*FileKeyProvider)(nil)
