package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// BackupCodeAlphabet omits characters that are easy to confuse when read aloud.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const backupCodeLength = 10

// BackupCodeHasher derives the stored form of backup codes.
type BackupCodeHasher struct {
	pepper []byte
}

// NewBackupCodeHasher returns a hasher keyed with pepper.
func NewBackupCodeHasher(pepper []byte) *BackupCodeHasher {
	return &BackupCodeHasher{pepper: append([]byte(nil), pepper...)}
}

// Hash returns hex(HMAC-SHA256(pepper, accountID || 0x00 || canonical(code))).
func (h *BackupCodeHasher) Hash(accountID, code string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(accountID))
	mac.Write([]byte{0})
	mac.Write([]byte(CanonicalizeBackupCode(code)))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateBackupCodes returns count display-formatted codes.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("backup codes: count must be positive")
	}
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := newBackupCode(backupCodeLength)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, FormatBackupCode(code))
	}
	return codes, nil
}

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	limit := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("backup codes: random index: %w", err)
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatBackupCode splits a canonical code with a hyphen at its midpoint.
func FormatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode upper-cases and strips separators.
func CanonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// LooksLikeBackupCode reports whether input has the shape of a backup code rather than a TOTP code.
func LooksLikeBackupCode(input string) bool {
	canonical := CanonicalizeBackupCode(input)
	if len(canonical) != backupCodeLength {
		return false
	}
	for _, r := range canonical {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			return false
		}
	}
	return true
}
