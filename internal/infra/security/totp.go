package security

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpSecretSize = 20 // 160 bits
	qrCodeSize     = 200
)

// TOTPConfig controls code generation and the accepted clock skew.
type TOTPConfig struct {
	Issuer string
	Period uint
	Skew   uint
	Digits int
}

// TOTPKey is a freshly generated shared secret with its provisioning artefacts.
type TOTPKey struct {
	Secret string
	URI    string
	// QRCode is a PNG data URL of URI.
	QRCode string
}

// TOTP generates and validates RFC 6238 codes.
type TOTP struct {
	cfg TOTPConfig
}

// NewTOTP applies defaults of 30 second steps, one step of skew and six digits.
func NewTOTP(cfg TOTPConfig) *TOTP {
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "Marketplace"
	}
	return &TOTP{cfg: cfg}
}

// Period returns the length of one time step.
func (t *TOTP) Period() time.Duration {
	return time.Duration(t.cfg.Period) * time.Second
}

// ReplayWindow is how long an accepted step stays usable under the configured skew.
func (t *TOTP) ReplayWindow() time.Duration {
	return t.Period() * time.Duration(2*t.cfg.Skew+1)
}

// Generate creates a base32 secret for accountName.
func (t *TOTP) Generate(accountName string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.cfg.Issuer,
		AccountName: accountName,
		Period:      t.cfg.Period,
		SecretSize:  totpSecretSize,
		Digits:      otp.Digits(t.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("totp: generate key: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return TOTPKey{}, fmt.Errorf("totp: render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TOTPKey{}, fmt.Errorf("totp: encode qr code: %w", err)
	}

	return TOTPKey{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Code returns the code for secret at the given instant.
func (t *TOTP) Code(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, t.opts())
	if err != nil {
		return "", fmt.Errorf("totp: generate code: %w", err)
	}
	return code, nil
}

// Validate checks code against the current step and up to Skew steps either side.
// It returns the matched step so callers can refuse to accept it twice.
func (t *TOTP) Validate(secret, code string, at time.Time) (int64, bool, error) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if len(code) != t.cfg.Digits || !isDigits(code) {
		return 0, false, nil
	}

	period := int64(t.cfg.Period)
	current := at.Unix() / period
	skew := int64(t.cfg.Skew)

	matched := int64(-1)
	for offset := -skew; offset <= skew; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), t.opts())
		if err != nil {
			return 0, false, fmt.Errorf("totp: generate code: %w", err)
		}
		// keep scanning so timing does not reveal which step matched
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && matched < 0 {
			matched = step
		}
	}

	if matched < 0 {
		return 0, false, nil
	}
	return matched, true, nil
}

func (t *TOTP) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    t.cfg.Period,
		Skew:      0,
		Digits:    otp.Digits(t.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
