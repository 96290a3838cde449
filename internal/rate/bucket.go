package rate

import (
	"context"
	"math"
	"sync"
	"time"
)

// TokenBucket is a continuously refilling, non-blocking admission limiter.
type TokenBucket struct {
	mu              sync.Mutex
	tokens          float64
	lastRefill      time.Time
	maxTokens       int
	refillRatePerMs float64
	now             func() time.Time
}

// NewTokenBucket creates a full bucket admitting maxRequests per window.
func NewTokenBucket(maxRequests int, window time.Duration) (*TokenBucket, error) {
	return newTokenBucket(maxRequests, window, time.Now)
}

// NewTokenBucketWithClock is NewTokenBucket with an injected clock.
func NewTokenBucketWithClock(maxRequests int, window time.Duration, now func() time.Time) (*TokenBucket, error) {
	if now == nil {
		now = time.Now
	}
	return newTokenBucket(maxRequests, window, now)
}

func newTokenBucket(maxRequests int, window time.Duration, now func() time.Time) (*TokenBucket, error) {
	windowMs := float64(window) / float64(time.Millisecond)
	if maxRequests <= 0 || windowMs <= 0 {
		return nil, ErrInvalidBucket
	}
	return &TokenBucket{
		tokens:          float64(maxRequests),
		lastRefill:      now(),
		maxTokens:       maxRequests,
		refillRatePerMs: float64(maxRequests) / windowMs,
		now:             now,
	}, nil
}

// TryAcquire refills the bucket and consumes one token if a whole token is available.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Allow adapts TryAcquire to the dispatcher's limiter contract. It never fails.
func (b *TokenBucket) Allow(context.Context) (bool, error) {
	return b.TryAcquire(), nil
}

// TokenCount refills and returns the number of whole tokens available.
// Reading has the side effect of a refill.
func (b *TokenBucket) TokenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return int(math.Floor(b.tokens))
}

// Tokens returns the exact fractional token count after a refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// MaxTokens returns the bucket capacity.
func (b *TokenBucket) MaxTokens() int {
	return b.maxTokens
}

// RefillRatePerMs returns the refill rate in tokens per millisecond.
func (b *TokenBucket) RefillRatePerMs() float64 {
	return b.refillRatePerMs
}

// Reset fills the bucket and restarts the refill clock.
func (b *TokenBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = float64(b.maxTokens)
	b.lastRefill = b.now()
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsedMs := float64(now.Sub(b.lastRefill)) / float64(time.Millisecond)
	if elapsedMs <= 0 {
		return
	}
	b.tokens = math.Min(float64(b.maxTokens), b.tokens+elapsedMs*b.refillRatePerMs)
	b.lastRefill = now
}
