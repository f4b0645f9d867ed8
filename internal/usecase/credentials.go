package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

// CredentialVerifier checks email and password pairs without revealing which half was wrong.
type CredentialVerifier struct {
	accounts  port.AccountRepository
	hasher    port.PasswordHasher
	timeout   time.Duration
	dummyHash string
}

// NewCredentialVerifier precomputes a throwaway hash so unknown emails cost the same as wrong passwords.
func NewCredentialVerifier(accounts port.AccountRepository, hasher port.PasswordHasher, timeout time.Duration) (*CredentialVerifier, error) {
	if accounts == nil || hasher == nil {
		return nil, fmt.Errorf("credential verifier requires accounts and hasher")
	}
	dummy, err := hasher.Hash("dummy-password-for-unknown-accounts")
	if err != nil {
		return nil, fmt.Errorf("precompute dummy hash: %w", err)
	}
	return &CredentialVerifier{accounts: accounts, hasher: hasher, timeout: timeout, dummyHash: dummy}, nil
}

// Verify returns the account owning email when password matches. Unknown emails and wrong
// passwords both yield domain.ErrInvalidCredentials; timeouts yield domain.ErrServiceUnavailable.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	lookupCtx, cancel := withStoreTimeout(ctx, v.timeout)
	account, err := v.accounts.GetByEmail(lookupCtx, email)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if _, err := v.compare(ctx, password, v.dummyHash); errors.Is(err, domain.ErrServiceUnavailable) {
				return nil, err
			}
			return nil, domain.ErrInvalidCredentials
		}
		return nil, storeFailure("lookup account", err)
	}

	ok, err := v.compare(ctx, password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return account, nil
}

// CheckPassword re-checks the password of an already loaded account.
func (v *CredentialVerifier) CheckPassword(ctx context.Context, account *domain.Account, password string) error {
	if account == nil || strings.TrimSpace(password) == "" {
		return domain.ErrInvalidCredentials
	}

	ok, err := v.compare(ctx, password, account.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	return nil
}

type compareResult struct {
	ok  bool
	err error
}

// compare runs the hash comparison under the verifier timeout.
func (v *CredentialVerifier) compare(ctx context.Context, password, encoded string) (bool, error) {
	hashCtx, cancel := withStoreTimeout(ctx, v.timeout)
	defer cancel()

	done := make(chan compareResult, 1)
	go func() {
		ok, err := v.hasher.Verify(password, encoded)
		done <- compareResult{ok: ok, err: err}
	}()

	select {
	case <-hashCtx.Done():
		return false, domain.Unavailable("verify password", hashCtx.Err())
	case res := <-done:
		if res.err != nil {
			return false, fmt.Errorf("verify password: %w", res.err)
		}
		return res.ok, nil
	}
}
