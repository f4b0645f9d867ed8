package redis

import (
	"context"
	"testing"
	"time"

	"github.com/omairakapasha/EventAI-sub001/internal/core/domain"
)

func testLockoutPolicy() domain.LockoutPolicy {
	return domain.LockoutPolicy{
		Window:       15 * time.Minute,
		MaxFailures:  3,
		BaseDuration: 15 * time.Minute,
		MaxDuration:  time.Hour,
		Decay:        24 * time.Hour,
	}
}

func TestLoginAttemptStore_LocksOnMaxFailures(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewLoginAttemptStore(client, "test:login")
	ctx := context.Background()
	policy := testLockoutPolicy()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i < policy.MaxFailures; i++ {
		window, err := store.RecordFailure(ctx, "id-1", policy, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
		if window.Count != i || window.Locked(now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("attempt %d: unexpected window %+v", i, window)
		}
	}

	at := now.Add(10 * time.Second)
	window, err := store.RecordFailure(ctx, "id-1", policy, at)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if !window.Locked(at) || window.Lockouts != 1 {
		t.Fatalf("expected lock after max failures, got %+v", window)
	}
	if got := window.RetryAfter(at); got != 15*time.Minute {
		t.Fatalf("retry after = %s", got)
	}

	current, err := store.Get(ctx, "id-1", at)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !current.Locked(at) || current.Lockouts != 1 {
		t.Fatalf("Get did not observe the lock: %+v", current)
	}
}

func TestLoginAttemptStore_LockDurationDoublesAndCaps(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewLoginAttemptStore(client, "test:login")
	ctx := context.Background()
	policy := testLockoutPolicy()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	want := []time.Duration{15 * time.Minute, 30 * time.Minute, time.Hour, time.Hour}
	for round, expected := range want {
		var window domain.LoginAttemptWindow
		for i := 0; i < policy.MaxFailures; i++ {
			var err error
			window, err = store.RecordFailure(ctx, "id-2", policy, at)
			if err != nil {
				t.Fatalf("RecordFailure returned error: %v", err)
			}
			at = at.Add(time.Second)
		}
		locked := at.Add(-time.Second)
		if got := window.LockUntil.Sub(locked); got != expected {
			t.Fatalf("round %d: lock = %s, want %s", round, got, expected)
		}
		at = window.LockUntil.Add(time.Second)
	}
}

func TestLoginAttemptStore_WindowSlides(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewLoginAttemptStore(client, "test:login")
	ctx := context.Background()
	policy := testLockoutPolicy()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	if _, err := store.RecordFailure(ctx, "id-3", policy, now); err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if _, err := store.RecordFailure(ctx, "id-3", policy, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}

	later := now.Add(20 * time.Minute)
	window, err := store.RecordFailure(ctx, "id-3", policy, later)
	if err != nil {
		t.Fatalf("RecordFailure returned error: %v", err)
	}
	if window.Count != 1 || window.Locked(later) {
		t.Fatalf("expected stale failures to fall out of the window, got %+v", window)
	}
}

func TestLoginAttemptStore_ResetClearsState(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewLoginAttemptStore(client, "test:login")
	ctx := context.Background()
	policy := testLockoutPolicy()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < policy.MaxFailures; i++ {
		if _, err := store.RecordFailure(ctx, "id-4", policy, now); err != nil {
			t.Fatalf("RecordFailure returned error: %v", err)
		}
	}
	if err := store.Reset(ctx, "id-4"); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	window, err := store.Get(ctx, "id-4", now)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if window.Locked(now) || window.Count != 0 || window.Lockouts != 0 {
		t.Fatalf("expected clean window after reset, got %+v", window)
	}
}
