package security

import (
	"strings"
	"testing"
)

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("GenerateBackupCodes() error = %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("got %d codes", len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if len(code) != 11 || code[5] != '-' {
			t.Fatalf("unexpected format %q", code)
		}
		if !LooksLikeBackupCode(code) {
			t.Fatalf("generated code %q not recognised", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}

	if _, err := GenerateBackupCodes(0); err == nil {
		t.Fatalf("expected error for zero count")
	}
}

func TestBackupCodeHasherCanonicalises(t *testing.T) {
	hasher := NewBackupCodeHasher([]byte("pepper"))
	a := hasher.Hash("acct-1", "ABCDE-FGHJK")
	b := hasher.Hash("acct-1", " abcde fghjk ")
	if a != b {
		t.Fatalf("expected canonical forms to hash equally")
	}
	if hasher.Hash("acct-2", "ABCDE-FGHJK") == a {
		t.Fatalf("hash must be bound to the account")
	}
	if NewBackupCodeHasher([]byte("other")).Hash("acct-1", "ABCDE-FGHJK") == a {
		t.Fatalf("hash must depend on the pepper")
	}
	if strings.Contains(a, "ABCDE") {
		t.Fatalf("hash leaks code")
	}
}

func TestLooksLikeBackupCode(t *testing.T) {
	cases := map[string]bool{
		"ABCDE-FGHJK": true,
		"abcdefghjk":  true,
		"123456":      false,
		"ABCDE-FGHJ0": false,
		"":            false,
	}
	for input, want := range cases {
		if got := LooksLikeBackupCode(input); got != want {
			t.Fatalf("LooksLikeBackupCode(%q) = %v, want %v", input, got, want)
		}
	}
}
