package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

const defaultLoginAttemptPrefix = "login"

// recordFailureLua appends a failure to the sliding window and locks the identity once the
// window holds MaxFailures entries. The window is cleared when a lock is set so each lock
// needs a fresh run of failures; the lockout exponent survives until Decay elapses.
// KEYS[1] = failures zset, KEYS[2] = state hash {lock_until, lockouts}
// ARGV[1] = now, ARGV[2] = window, ARGV[3] = max failures, ARGV[4] = base lock,
// ARGV[5] = max lock, ARGV[6] = decay, ARGV[7] = member
var recordFailureLua = red.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local maxFailures = tonumber(ARGV[3])
local base = tonumber(ARGV[4])
local maxLock = tonumber(ARGV[5])
local decay = tonumber(ARGV[6])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[7])
redis.call('PEXPIRE', KEYS[1], window)

local count = redis.call('ZCARD', KEYS[1])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local windowStart = now
if #oldest == 2 then
  windowStart = tonumber(oldest[2])
end

local lockouts = tonumber(redis.call('HGET', KEYS[2], 'lockouts') or '0')
local lockUntil = tonumber(redis.call('HGET', KEYS[2], 'lock_until') or '0')

if count >= maxFailures and lockUntil <= now then
  lockouts = lockouts + 1
  local duration = base
  for i = 2, lockouts do
    duration = duration * 2
    if maxLock > 0 and duration >= maxLock then
      duration = maxLock
      break
    end
  end
  if maxLock > 0 and duration > maxLock then
    duration = maxLock
  end
  lockUntil = now + duration
  redis.call('HSET', KEYS[2], 'lockouts', lockouts, 'lock_until', lockUntil)
  redis.call('DEL', KEYS[1])
end

if lockouts > 0 then
  local ttl = decay
  if lockUntil > now then
    ttl = ttl + (lockUntil - now)
  end
  redis.call('PEXPIRE', KEYS[2], ttl)
end

return {count, windowStart, lockUntil, lockouts}
`)

// LoginAttemptStore keeps per-identity login failure windows and lock state in Redis.
type LoginAttemptStore struct {
	client *red.Client
	prefix string
}

// NewLoginAttemptStore constructs a login attempt store; distinct prefixes isolate throttle instances.
func NewLoginAttemptStore(client *red.Client, keyPrefix string) *LoginAttemptStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLoginAttemptPrefix
	}
	return &LoginAttemptStore{client: client, prefix: prefix}
}

// Get returns the current window and lock state without modifying it.
func (s *LoginAttemptStore) Get(ctx context.Context, identity string, now time.Time) (domain.LoginAttemptWindow, error) {
	if strings.TrimSpace(identity) == "" {
		return domain.LoginAttemptWindow{}, fmt.Errorf("identity is required")
	}

	var (
		count *red.IntCmd
		state *red.SliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe red.Pipeliner) error {
		count = pipe.ZCard(ctx, s.failuresKey(identity))
		state = pipe.HMGet(ctx, s.stateKey(identity), "lock_until", "lockouts")
		return nil
	})
	if err != nil && !errors.Is(err, red.Nil) {
		return domain.LoginAttemptWindow{}, fmt.Errorf("redis get login attempts: %w", err)
	}

	window := domain.LoginAttemptWindow{Identity: identity, WindowStart: now, Count: int(count.Val())}
	values := state.Val()
	if len(values) == 2 {
		if ms, ok := parseInt(values[0]); ok && ms > 0 {
			window.LockUntil = time.UnixMilli(ms).UTC()
		}
		if n, ok := parseInt(values[1]); ok {
			window.Lockouts = int(n)
		}
	}
	return window, nil
}

// RecordFailure adds a failure at now and applies policy atomically.
func (s *LoginAttemptStore) RecordFailure(ctx context.Context, identity string, policy domain.LockoutPolicy, now time.Time) (domain.LoginAttemptWindow, error) {
	if strings.TrimSpace(identity) == "" {
		return domain.LoginAttemptWindow{}, fmt.Errorf("identity is required")
	}
	if policy.Window <= 0 || policy.MaxFailures <= 0 || policy.BaseDuration <= 0 {
		return domain.LoginAttemptWindow{}, fmt.Errorf("lockout policy requires positive window, max failures and base duration")
	}

	values, err := recordFailureLua.Run(ctx, s.client,
		[]string{s.failuresKey(identity), s.stateKey(identity)},
		now.UnixMilli(),
		policy.Window.Milliseconds(),
		policy.MaxFailures,
		policy.BaseDuration.Milliseconds(),
		policy.MaxDuration.Milliseconds(),
		policy.Decay.Milliseconds(),
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return domain.LoginAttemptWindow{}, fmt.Errorf("redis record login failure: %w", err)
	}
	if len(values) != 4 {
		return domain.LoginAttemptWindow{}, fmt.Errorf("redis record login failure: invalid script response")
	}

	window := domain.LoginAttemptWindow{
		Identity:    identity,
		Count:       int(values[0]),
		WindowStart: time.UnixMilli(values[1]).UTC(),
		Lockouts:    int(values[3]),
	}
	if values[2] > 0 {
		window.LockUntil = time.UnixMilli(values[2]).UTC()
	}
	return window, nil
}

// Reset clears the failure window and the lockout exponent.
func (s *LoginAttemptStore) Reset(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if err := s.client.Del(ctx, s.failuresKey(identity), s.stateKey(identity)).Err(); err != nil {
		return fmt.Errorf("redis reset login attempts: %w", err)
	}
	return nil
}

func (s *LoginAttemptStore) failuresKey(identity string) string {
	return fmt.Sprintf("%s:failures:%s", s.prefix, identity)
}

func (s *LoginAttemptStore) stateKey(identity string) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, identity)
}

func parseInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case int64:
		return v, true
	default:
		return 0, false
	}
}

var _ port.LoginAttemptStore = (*LoginAttemptStore)(nil)
