package domain

import (
	"context"
	"time"
)

// LockManager hands out exclusive named locks with a TTL. The round control
// loop takes one at startup so two deployments cannot drive the same round.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock belongs to someone else. The unlock function may be called more
	// than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces a sliding-window request budget per key. Used to
// throttle the public betting endpoint per client.
type RateLimiter interface {
	// Allow reports whether one more request for key fits inside the window.
	// An allowed request is counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
