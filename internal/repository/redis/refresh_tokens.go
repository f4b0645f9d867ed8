package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
	"github.com/omairakapasha/EventAI-sub001/internal/repository"
)

const defaultRefreshTokenPrefix = "rt"

// Key layout under the store prefix:
//
//	token:<id>           hash {fam, acct, tid, role, iat, exp, revoked}
//	family:<fid>         set of token ids
//	account:<aid>        set of family ids
//	family_revoked:<fid> marker, present once the family is revoked
//
// Timestamps are unix milliseconds. The scripts derive family, member token and account keys
// from the prefix at run time, so the store requires a single Redis node (no Cluster).

// rotateRefreshLua swaps a live token for its successor in the same family.
// KEYS[1] = presented token key, KEYS[2] = successor token key
// ARGV[1] = key prefix, ARGV[2] = now, ARGV[3] = successor id, ARGV[4] = successor iat,
// ARGV[5] = successor exp, ARGV[6] = successor ttl, ARGV[7] = family ttl,
// ARGV[8] = successor role, ARGV[9] = successor tenant (empty inherits from the presented token)
var rotateRefreshLua = red.NewScript(`
local function reply(status, fields)
  local out = {status}
  for i = 1, #fields do
    out[#out + 1] = fields[i]
  end
  return out
end

local cur = redis.call('HGETALL', KEYS[1])
if #cur == 0 then
  return {'not_found'}
end

local rec = {}
for i = 1, #cur, 2 do
  rec[cur[i]] = cur[i + 1]
end

local prefix = ARGV[1]
local now = tonumber(ARGV[2])
local familyTTL = ARGV[7]
local famKey = prefix .. 'family:' .. rec['fam']
local revokedKey = prefix .. 'family_revoked:' .. rec['fam']

if redis.call('EXISTS', revokedKey) == 1 then
  return reply('family_revoked', cur)
end

if rec['revoked'] == '1' then
  local members = redis.call('SMEMBERS', famKey)
  for _, id in ipairs(members) do
    local tokenKey = prefix .. 'token:' .. id
    if redis.call('EXISTS', tokenKey) == 1 then
      redis.call('HSET', tokenKey, 'revoked', '1')
    end
  end
  redis.call('SET', revokedKey, ARGV[2], 'PX', familyTTL)
  return reply('reused', cur)
end

if tonumber(rec['exp']) <= now then
  return reply('expired', cur)
end

local role = rec['role']
if ARGV[8] ~= '' then
  role = ARGV[8]
end
local tenant = rec['tid']
if ARGV[9] ~= '' then
  tenant = ARGV[9]
end

redis.call('HSET', KEYS[1], 'revoked', '1')
redis.call('HSET', KEYS[2],
  'fam', rec['fam'], 'acct', rec['acct'], 'tid', tenant, 'role', role,
  'iat', ARGV[4], 'exp', ARGV[5], 'revoked', '0')
redis.call('PEXPIRE', KEYS[2], ARGV[6])
redis.call('SADD', famKey, ARGV[3])
redis.call('PEXPIRE', famKey, familyTTL)
local accountKey = prefix .. 'account:' .. rec['acct']
redis.call('SADD', accountKey, rec['fam'])
redis.call('PEXPIRE', accountKey, familyTTL)
return reply('rotated', cur)
`)

// revokeFamilyLua marks every token of a family revoked and sets the family marker.
// KEYS[1] = family set, KEYS[2] = family marker
// ARGV[1] = key prefix, ARGV[2] = now, ARGV[3] = marker ttl
var revokeFamilyLua = red.NewScript(`
local revoked = 0
local members = redis.call('SMEMBERS', KEYS[1])
for _, id in ipairs(members) do
  local tokenKey = ARGV[1] .. 'token:' .. id
  if redis.call('HGET', tokenKey, 'revoked') == '0' then
    redis.call('HSET', tokenKey, 'revoked', '1')
    revoked = revoked + 1
  end
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return revoked
`)

// revokeAccountLua revokes every family recorded for an account.
// KEYS[1] = account set
// ARGV[1] = key prefix, ARGV[2] = now, ARGV[3] = marker ttl
var revokeAccountLua = red.NewScript(`
local prefix = ARGV[1]
local families = redis.call('SMEMBERS', KEYS[1])
local count = 0
for _, fam in ipairs(families) do
  local revokedKey = prefix .. 'family_revoked:' .. fam
  if redis.call('EXISTS', revokedKey) == 0 then
    count = count + 1
  end
  local members = redis.call('SMEMBERS', prefix .. 'family:' .. fam)
  for _, id in ipairs(members) do
    local tokenKey = prefix .. 'token:' .. id
    if redis.call('EXISTS', tokenKey) == 1 then
      redis.call('HSET', tokenKey, 'revoked', '1')
    end
  end
  redis.call('SET', revokedKey, ARGV[2], 'PX', ARGV[3])
end
return count
`)

// RefreshTokenStoreConfig controls key naming and retention.
type RefreshTokenStoreConfig struct {
	KeyPrefix string
	// Retention keeps records past expiry so late presentations are classified, not forgotten.
	Retention time.Duration
	// FamilyTTL bounds the lifetime of family, account and revocation marker keys.
	FamilyTTL time.Duration
}

// RefreshTokenStore keeps refresh-token families in Redis and rotates them with Lua scripts.
type RefreshTokenStore struct {
	client *red.Client
	prefix string
	cfg    RefreshTokenStoreConfig
}

// NewRefreshTokenStore wires a Redis client into a refresh token store.
func NewRefreshTokenStore(client *red.Client, cfg RefreshTokenStoreConfig) *RefreshTokenStore {
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultRefreshTokenPrefix
	}
	if cfg.FamilyTTL <= 0 {
		cfg.FamilyTTL = 7*24*time.Hour + cfg.Retention
	}
	return &RefreshTokenStore{client: client, prefix: prefix + ":", cfg: cfg}
}

// Save persists a freshly issued record and links it to its family and account.
func (s *RefreshTokenStore) Save(ctx context.Context, record domain.RefreshTokenRecord) error {
	if record.TokenID == "" || record.FamilyID == "" || record.AccountID == "" {
		return fmt.Errorf("refresh token record requires token, family and account ids")
	}

	ttl := record.ExpiresAt.Sub(record.IssuedAt) + s.cfg.Retention
	if ttl <= 0 {
		return fmt.Errorf("refresh token record already expired")
	}

	familyKey := s.familyKey(record.FamilyID)
	accountKey := s.accountKey(record.AccountID)

	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.HSet(ctx, s.tokenKey(record.TokenID), recordFields(record))
		pipe.PExpire(ctx, s.tokenKey(record.TokenID), ttl)
		pipe.SAdd(ctx, familyKey, record.TokenID)
		pipe.PExpire(ctx, familyKey, s.cfg.FamilyTTL)
		pipe.SAdd(ctx, accountKey, record.FamilyID)
		pipe.PExpire(ctx, accountKey, s.cfg.FamilyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save refresh token: %w", err)
	}
	return nil
}

// Get returns the record stored under tokenID or repository.ErrNotFound.
func (s *RefreshTokenStore) Get(ctx context.Context, tokenID string) (*domain.RefreshTokenRecord, error) {
	values, err := s.client.HGetAll(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get refresh token: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	record, err := parseRecord(tokenID, values)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Rotate atomically revokes tokenID and stores next in the same family.
// Family and account are inherited from the rotated record; tenant and role are inherited
// unless next sets them.
func (s *RefreshTokenStore) Rotate(ctx context.Context, tokenID string, next domain.RefreshTokenRecord, now time.Time) (domain.RotationResult, error) {
	ttl := next.ExpiresAt.Sub(now) + s.cfg.Retention
	if ttl <= 0 {
		return domain.RotationResult{}, fmt.Errorf("successor refresh token already expired")
	}

	role := ""
	if next.Role.Valid() {
		role = next.Role.String()
	}

	raw, err := rotateRefreshLua.Run(ctx, s.client,
		[]string{s.tokenKey(tokenID), s.tokenKey(next.TokenID)},
		s.prefix,
		now.UnixMilli(),
		next.TokenID,
		next.IssuedAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		s.cfg.FamilyTTL.Milliseconds(),
		role,
		next.TenantID,
	).Result()
	if err != nil {
		return domain.RotationResult{}, fmt.Errorf("redis rotate refresh token: %w", err)
	}

	parts, ok := raw.([]interface{})
	if !ok || len(parts) == 0 {
		return domain.RotationResult{}, fmt.Errorf("redis rotate refresh token: invalid script response")
	}
	status, ok := parts[0].(string)
	if !ok {
		return domain.RotationResult{}, fmt.Errorf("redis rotate refresh token: invalid script status")
	}

	result := domain.RotationResult{Status: domain.RotationStatus(status)}
	if result.Status == domain.RotationNotFound {
		return result, nil
	}

	fields := make(map[string]string, (len(parts)-1)/2)
	for i := 1; i+1 < len(parts); i += 2 {
		key, _ := parts[i].(string)
		value, _ := parts[i+1].(string)
		fields[key] = value
	}
	previous, err := parseRecord(tokenID, fields)
	if err != nil {
		return domain.RotationResult{}, err
	}
	result.Previous = previous

	switch result.Status {
	case domain.RotationRotated, domain.RotationReused, domain.RotationExpired, domain.RotationFamilyRevoked:
		return result, nil
	default:
		return domain.RotationResult{}, fmt.Errorf("redis rotate refresh token: unknown status %q", status)
	}
}

// RevokeFamily revokes every token of the family and returns how many were still live.
func (s *RefreshTokenStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	if strings.TrimSpace(familyID) == "" {
		return 0, fmt.Errorf("family id is required")
	}

	count, err := revokeFamilyLua.Run(ctx, s.client,
		[]string{s.familyKey(familyID), s.familyRevokedKey(familyID)},
		s.prefix,
		time.Now().UnixMilli(),
		s.cfg.FamilyTTL.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis revoke refresh family: %w", err)
	}
	return count, nil
}

// RevokeAccount revokes every family of the account and returns how many were not already revoked.
func (s *RefreshTokenStore) RevokeAccount(ctx context.Context, accountID string) (int, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, fmt.Errorf("account id is required")
	}

	count, err := revokeAccountLua.Run(ctx, s.client,
		[]string{s.accountKey(accountID)},
		s.prefix,
		time.Now().UnixMilli(),
		s.cfg.FamilyTTL.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis revoke account families: %w", err)
	}
	return count, nil
}

// IsFamilyRevoked reports whether the family marker is present.
func (s *RefreshTokenStore) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	if strings.TrimSpace(familyID) == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.familyRevokedKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check refresh family: %w", err)
	}
	return n > 0, nil
}

func (s *RefreshTokenStore) tokenKey(tokenID string) string {
	return s.prefix + "token:" + tokenID
}

func (s *RefreshTokenStore) familyKey(familyID string) string {
	return s.prefix + "family:" + familyID
}

func (s *RefreshTokenStore) familyRevokedKey(familyID string) string {
	return s.prefix + "family_revoked:" + familyID
}

func (s *RefreshTokenStore) accountKey(accountID string) string {
	return s.prefix + "account:" + accountID
}

func recordFields(record domain.RefreshTokenRecord) map[string]interface{} {
	revoked := "0"
	if record.Revoked {
		revoked = "1"
	}
	return map[string]interface{}{
		"fam":     record.FamilyID,
		"acct":    record.AccountID,
		"tid":     record.TenantID,
		"role":    record.Role.String(),
		"iat":     strconv.FormatInt(record.IssuedAt.UnixMilli(), 10),
		"exp":     strconv.FormatInt(record.ExpiresAt.UnixMilli(), 10),
		"revoked": revoked,
	}
}

func parseRecord(tokenID string, values map[string]string) (domain.RefreshTokenRecord, error) {
	issued, err := strconv.ParseInt(values["iat"], 10, 64)
	if err != nil {
		return domain.RefreshTokenRecord{}, fmt.Errorf("parse refresh token iat: %w", err)
	}
	expires, err := strconv.ParseInt(values["exp"], 10, 64)
	if err != nil {
		return domain.RefreshTokenRecord{}, fmt.Errorf("parse refresh token exp: %w", err)
	}
	role, err := domain.ParseRole(values["role"])
	if err != nil {
		return domain.RefreshTokenRecord{}, fmt.Errorf("parse refresh token role: %w", err)
	}

	return domain.RefreshTokenRecord{
		TokenID:   tokenID,
		FamilyID:  values["fam"],
		AccountID: values["acct"],
		TenantID:  values["tid"],
		Role:      role,
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		Revoked:   values["revoked"] == "1",
	}, nil
}

var _ port.RefreshTokenStore = (*RefreshTokenStore)(nil)
