package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

const defaultTwoFactorPrefix = "2fa"

type pendingEnrollmentPayload struct {
	AccountID        string   `json:"account_id"`
	SealedSecret     []byte   `json:"sealed_secret"`
	BackupCodeHashes []string `json:"backup_code_hashes"`
	CreatedAt        int64    `json:"created_at"`
}

// TwoFactorStore keeps unconfirmed enrollments and accepted TOTP steps in Redis.
type TwoFactorStore struct {
	client *red.Client
	prefix string
}

// NewTwoFactorStore constructs a Redis-backed enrollment store and replay guard.
func NewTwoFactorStore(client *red.Client, keyPrefix string) *TwoFactorStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultTwoFactorPrefix
	}
	return &TwoFactorStore{client: client, prefix: prefix}
}

// SavePending replaces any pending enrollment of the account.
func (s *TwoFactorStore) SavePending(ctx context.Context, pending domain.PendingEnrollment, ttl time.Duration) error {
	if strings.TrimSpace(pending.AccountID) == "" {
		return fmt.Errorf("account id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(pendingEnrollmentPayload{
		AccountID:        pending.AccountID,
		SealedSecret:     pending.SealedSecret,
		BackupCodeHashes: pending.BackupCodeHashes,
		CreatedAt:        pending.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal pending enrollment: %w", err)
	}

	if err := s.client.Set(ctx, s.pendingKey(pending.AccountID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set pending enrollment: %w", err)
	}
	return nil
}

// GetPending returns the pending enrollment or repository.ErrNotFound once it expired.
func (s *TwoFactorStore) GetPending(ctx context.Context, accountID string) (*domain.PendingEnrollment, error) {
	raw, err := s.client.Get(ctx, s.pendingKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get pending enrollment: %w", err)
	}

	var payload pendingEnrollmentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal pending enrollment: %w", err)
	}

	return &domain.PendingEnrollment{
		AccountID:        payload.AccountID,
		SealedSecret:     payload.SealedSecret,
		BackupCodeHashes: payload.BackupCodeHashes,
		CreatedAt:        time.Unix(payload.CreatedAt, 0).UTC(),
	}, nil
}

// DeletePending drops the pending enrollment, if any.
func (s *TwoFactorStore) DeletePending(ctx context.Context, accountID string) error {
	if err := s.client.Del(ctx, s.pendingKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis delete pending enrollment: %w", err)
	}
	return nil
}

// MarkUsed records step for the account and reports false if it was already recorded.
func (s *TwoFactorStore) MarkUsed(ctx context.Context, accountID string, step int64, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(accountID) == "" {
		return false, fmt.Errorf("account id is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be positive")
	}

	key := fmt.Sprintf("%s:used:%s:%s", s.prefix, accountID, strconv.FormatInt(step, 10))
	fresh, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis mark totp step: %w", err)
	}
	return fresh, nil
}

func (s *TwoFactorStore) pendingKey(accountID string) string {
	return fmt.Sprintf("%s:pending:%s", s.prefix, accountID)
}

var (
	_ port.TwoFactorEnrollmentStore = (*TwoFactorStore)(nil)
	_ port.TOTPReplayGuard          = (*TwoFactorStore)(nil)
)
