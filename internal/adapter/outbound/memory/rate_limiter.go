// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aisafe-dev/aisafegate/internal/domain/ratelimit"
)

// TokenBucketLimiter implements ratelimit.Limiter with one lazily-created
// bucket per identity. Refill and debit for an identity are atomic under
// that identity's own lock, so unrelated identities never contend.
// Includes background cleanup to prevent unbounded identity growth.
type TokenBucketLimiter struct {
	mu      sync.RWMutex // guards the buckets map, not the buckets
	buckets map[string]*bucket

	config ratelimit.Config
	now    func() time.Time

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	maxTTL          time.Duration
}

// bucket is the per-identity token state. Mutated only under its own lock.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// LimiterOption configures a TokenBucketLimiter.
type LimiterOption func(*TokenBucketLimiter)

// WithClock overrides the limiter's time source. For tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *TokenBucketLimiter) {
		l.now = now
	}
}

// WithCleanup overrides the background cleanup interval and the maximum
// idle age of a bucket before removal.
func WithCleanup(interval, maxTTL time.Duration) LimiterOption {
	return func(l *TokenBucketLimiter) {
		l.cleanupInterval = interval
		l.maxTTL = maxTTL
	}
}

// NewTokenBucketLimiter creates a limiter with the given bucket config.
// Default cleanup interval: 5 minutes, default maxTTL: 1 hour.
func NewTokenBucketLimiter(config ratelimit.Config, opts ...LimiterOption) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		buckets:         make(map[string]*bucket),
		config:          config,
		now:             time.Now,
		stopChan:        make(chan struct{}),
		cleanupInterval: 5 * time.Minute,
		maxTTL:          time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire refills the identity's bucket based on elapsed time, then
// debits cost if enough tokens remain. It never blocks.
func (l *TokenBucketLimiter) TryAcquire(identity string, cost float64) bool {
	b := l.bucketFor(identity)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(l.config.Capacity, b.tokens+elapsed*l.config.RefillRate)
		b.lastRefill = now
	}

	if b.tokens >= cost {
		b.tokens -= cost
		return true
	}
	return false
}

// RetryAfter estimates how long until one token is available for identity.
// Advisory only; used for the Retry-After response header.
func (l *TokenBucketLimiter) RetryAfter(identity string) time.Duration {
	if l.config.RefillRate <= 0 {
		return 0
	}
	b := l.bucketFor(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / l.config.RefillRate * float64(time.Second))
}

// bucketFor returns the identity's bucket, creating it on first sight.
func (l *TokenBucketLimiter) bucketFor(identity string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[identity]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[identity]; ok {
		return b
	}
	b = &bucket{tokens: l.config.Capacity, lastRefill: l.now()}
	l.buckets[identity] = b
	return b
}

// StartCleanup starts the background cleanup goroutine, which removes
// buckets idle longer than maxTTL. Stops when Stop() is called.
func (l *TokenBucketLimiter) StartCleanup() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}

func (l *TokenBucketLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.maxTTL)
	cleaned := 0
	for identity, b := range l.buckets {
		b.mu.Lock()
		stale := b.lastRefill.Before(cutoff)
		b.mu.Unlock()
		if stale {
			delete(l.buckets, identity)
			cleaned++
		}
	}

	if cleaned > 0 {
		slog.Debug("rate limiter cleanup completed",
			"cleaned_identities", cleaned,
			"remaining_identities", len(l.buckets))
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *TokenBucketLimiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the current number of tracked identities.
// Useful for testing and monitoring memory usage.
func (l *TokenBucketLimiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*TokenBucketLimiter)(nil)
