package security

import (
	"strings"
	"testing"
	"time"
)

func TestTOTPGenerateProducesProvisioningArtefacts(t *testing.T) {
	gen := NewTOTP(TOTPConfig{Issuer: "Vendor Portal", Skew: 1})
	key, err := gen.Generate("owner@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(key.Secret) != 32 {
		t.Fatalf("expected 160-bit base32 secret, got %q", key.Secret)
	}
	if !strings.HasPrefix(key.URI, "otpauth://totp/") || !strings.Contains(key.URI, "issuer=Vendor") {
		t.Fatalf("unexpected provisioning uri %q", key.URI)
	}
	if !strings.HasPrefix(key.QRCode, "data:image/png;base64,") {
		t.Fatalf("unexpected qr code prefix")
	}
}

func TestTOTPValidateWithinSkew(t *testing.T) {
	gen := NewTOTP(TOTPConfig{Skew: 1})
	key, err := gen.Generate("owner@example.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)
	code, err := gen.Code(key.Secret, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("Code() error = %v", err)
	}

	step, ok, err := gen.Validate(key.Secret, code, now)
	if err != nil || !ok {
		t.Fatalf("Validate(previous step) = %v, %v", ok, err)
	}
	if want := now.Unix()/30 - 1; step != want {
		t.Fatalf("step = %d, want %d", step, want)
	}

	old, _ := gen.Code(key.Secret, now.Add(-90*time.Second))
	if old != code {
		if _, ok, _ := gen.Validate(key.Secret, old, now); ok {
			t.Fatalf("expected code three steps old to be rejected")
		}
	}
}

func TestTOTPValidateRejectsMalformedCodes(t *testing.T) {
	gen := NewTOTP(TOTPConfig{Skew: 1})
	key, _ := gen.Generate("owner@example.com")
	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		if _, ok, err := gen.Validate(key.Secret, code, time.Now()); ok || err != nil {
			t.Fatalf("Validate(%q) = %v, %v", code, ok, err)
		}
	}
}

func TestTOTPReplayWindow(t *testing.T) {
	gen := NewTOTP(TOTPConfig{Skew: 1})
	if got := gen.ReplayWindow(); got != 90*time.Second {
		t.Fatalf("ReplayWindow() = %s", got)
	}
}
