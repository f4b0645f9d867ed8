package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/omairakapasha/EventAI-sub001/internal/core/port"
)

// slidingWindowLua trims expired hits, admits the request when the window has room and
// reports the oldest remaining hit so callers can compute the reset instant.
// KEYS[1] = window zset
// ARGV[1] = now, ARGV[2] = window, ARGV[3] = limit, ARGV[4] = member
var slidingWindowLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], window)

local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = now
if #oldest == 2 then
  first = tonumber(oldest[2])
end
return {allowed, count, first}
`)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
}

// RateLimitRepository persists rate-limit hits in Redis sorted sets.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Hit records a request at the given instant if the window ending there has room.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (port.RateLimitDecision, error) {
	if window <= 0 {
		return port.RateLimitDecision{}, errors.New("window must be positive")
	}
	if limit <= 0 {
		return port.RateLimitDecision{}, errors.New("limit must be positive")
	}

	values, err := slidingWindowLua.Run(ctx, r.client,
		[]string{r.key(identifier)},
		at.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(at.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis rate limit hit: %w", err)
	}
	if len(values) != 3 {
		return port.RateLimitDecision{}, fmt.Errorf("redis rate limit hit: invalid script response")
	}

	count := int(values[1])
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return port.RateLimitDecision{
		Allowed:   values[0] == 1,
		Count:     count,
		Remaining: remaining,
		Reset:     time.UnixMilli(values[2]).Add(window).UTC(),
	}, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
