package port

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of a single sliding-window hit.
type RateLimitDecision struct {
	Allowed   bool
	Count     int
	Remaining int
	Reset     time.Time
}

// RateLimitStore records a request inside a sliding window and decides atomically.
type RateLimitStore interface {
	Hit(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (RateLimitDecision, error)
}
