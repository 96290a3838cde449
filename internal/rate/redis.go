package rate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBucketScript = `
local max = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])

local tokens = tonumber(redis.call("HGET", KEYS[1], "t"))
local last = tonumber(redis.call("HGET", KEYS[1], "ts"))
if tokens == nil or last == nil then
  tokens = max
  last = now
end

local elapsed = now - last
if elapsed > 0 then
  tokens = math.min(max, tokens + elapsed * rate)
  last = now
end

local allowed = 0
if cost > 0 and tokens >= cost then
  tokens = tokens - cost
  allowed = 1
end

redis.call("HSET", KEYS[1], "t", tostring(tokens), "ts", tostring(last))
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens)}
`

var redisBucketLua = redis.NewScript(redisBucketScript)

// RedisBucket is a token bucket whose state lives in Redis, shared by every client
// configured with the same key.
type RedisBucket struct {
	redis           redis.UniversalClient
	key             string
	maxTokens       int
	refillRatePerMs float64
	ttl             time.Duration
	now             func() time.Time
}

// NewRedisBucket creates a shared bucket stored under rl:<name>.
func NewRedisBucket(redisClient redis.UniversalClient, name string, maxRequests int, window time.Duration) (*RedisBucket, error) {
	windowMs := float64(window) / float64(time.Millisecond)
	if redisClient == nil || maxRequests <= 0 || windowMs <= 0 {
		return nil, ErrInvalidBucket
	}
	return &RedisBucket{
		redis:           redisClient,
		key:             bucketKey(name),
		maxTokens:       maxRequests,
		refillRatePerMs: float64(maxRequests) / windowMs,
		ttl:             2 * window,
		now:             time.Now,
	}, nil
}

// WithClock replaces the clock used to timestamp refills. Intended for tests.
func (b *RedisBucket) WithClock(now func() time.Time) *RedisBucket {
	if now != nil {
		b.now = now
	}
	return b
}

// Allow consumes one token when available. Backend failures deny the request.
func (b *RedisBucket) Allow(ctx context.Context) (bool, error) {
	allowed, _, err := b.eval(ctx, 1)
	return allowed, err
}

// TokenCount refills and returns the number of whole tokens available.
func (b *RedisBucket) TokenCount(ctx context.Context) (int, error) {
	_, tokens, err := b.eval(ctx, 0)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(tokens)), nil
}

// Reset drops the shared state; the next call starts from a full bucket.
func (b *RedisBucket) Reset(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

func (b *RedisBucket) eval(ctx context.Context, cost int) (bool, float64, error) {
	nowMs := b.now().UnixMilli()
	res, err := redisBucketLua.Run(ctx, b.redis, []string{b.key},
		b.maxTokens,
		strconv.FormatFloat(b.refillRatePerMs, 'f', -1, 64),
		nowMs,
		b.ttl.Milliseconds(),
		cost,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%w: unexpected script reply", ErrLimiterUnavailable)
	}

	allowed, _ := res[0].(int64)
	raw, _ := res[1].(string)
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return allowed == 1, tokens, nil
}

func bucketKey(name string) string {
	return "rl:" + name
}
