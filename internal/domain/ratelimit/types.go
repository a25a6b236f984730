// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Limiter is the interface for per-identity admission control.
//
// Implementations use a token bucket per identity: capacity C, refill
// rate R tokens/second, with lazy refill on each call. The interface is
// storage-agnostic; the in-memory implementation lives in
// adapter/outbound/memory.
type Limiter interface {
	// TryAcquire attempts to take cost tokens from identity's bucket.
	// It never blocks: the caller must reject the request when it
	// returns false rather than wait for refill.
	TryAcquire(identity string, cost float64) bool
}

// Config defines the token bucket parameters shared by all identities.
type Config struct {
	// Capacity is the maximum number of tokens a bucket holds.
	Capacity float64
	// RefillRate is how many tokens are added per second.
	RefillRate float64
}

// Error is returned at the proxy boundary when a request is rejected by
// the rate limiter.
type Error struct {
	// Identity is the bucket that was exhausted.
	Identity string
	// RetryAfter is a hint for when one token will be available.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q, retry after %v", e.Identity, e.RetryAfter)
}
