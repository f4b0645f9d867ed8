package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

type slowHasher struct {
	delay time.Duration
}

func (h slowHasher) Hash(password string) (string, error) {
	return "slow$" + password, nil
}

func (h slowHasher) Verify(string, string) (bool, error) {
	time.Sleep(h.delay)
	return true, nil
}

func TestCredentialVerifier(t *testing.T) {
	accounts := newMemoryAccounts()
	hasher := testHasher(t)
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts.put(domain.Account{ID: "account-1", TenantID: "tenant-1", Email: "owner@lakeside.example", PasswordHash: hash, Role: domain.RoleOwner})

	verifier, err := NewCredentialVerifier(accounts, hasher, time.Second)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	cases := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "valid", email: "owner@lakeside.example", password: testPassword},
		{name: "case insensitive email", email: "OWNER@Lakeside.Example", password: testPassword},
		{name: "wrong password", email: "owner@lakeside.example", password: "nope", wantErr: domain.ErrInvalidCredentials},
		{name: "unknown email", email: "ghost@lakeside.example", password: testPassword, wantErr: domain.ErrInvalidCredentials},
		{name: "empty password", email: "owner@lakeside.example", password: "", wantErr: domain.ErrInvalidCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			account, err := verifier.Verify(context.Background(), tc.email, tc.password)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if account.ID != "account-1" {
				t.Fatalf("unexpected account %s", account.ID)
			}
		})
	}
}

func TestCredentialVerifierTimeoutIsUnavailable(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.put(domain.Account{ID: "account-1", Email: "owner@lakeside.example", PasswordHash: "slow$x", Role: domain.RoleOwner})

	verifier, err := NewCredentialVerifier(accounts, slowHasher{delay: 200 * time.Millisecond}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	cases := []struct {
		name  string
		email string
	}{
		{name: "known email", email: "owner@lakeside.example"},
		{name: "unknown email", email: "ghost@lakeside.example"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tc.email, "x")
			if !errors.Is(err, domain.ErrServiceUnavailable) {
				t.Fatalf("expected service unavailable, got %v", err)
			}
			if errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("timeout must not read as invalid credentials")
			}
		})
	}
}

func TestCredentialVerifierStoreFailureIsUnavailable(t *testing.T) {
	accounts := newMemoryAccounts()
	verifier, err := NewCredentialVerifier(accounts, testHasher(t), time.Second)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	accounts.err = errors.New("connection refused")

	if _, err := verifier.Verify(context.Background(), "owner@lakeside.example", "x"); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}
