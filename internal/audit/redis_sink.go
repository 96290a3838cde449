package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisWriteTimeout = 2 * time.Second

// RedisSink appends entries as JSON to a capped Redis list so the trail survives the
// process. The list is trimmed to the same cap as the in-memory Log.
type RedisSink struct {
	redis   redis.UniversalClient
	key     string
	max     int64
	timeout time.Duration
	onError func(error)
}

// NewRedisSink creates a sink writing to the list at key. maxEntries <= 0 uses
// DefaultMaxEntries. onError, if non-nil, observes write failures.
func NewRedisSink(redisClient redis.UniversalClient, key string, maxEntries int, onError func(error)) *RedisSink {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if key == "" {
		key = "audit:pve"
	}
	return &RedisSink{
		redis:   redisClient,
		key:     key,
		max:     int64(maxEntries),
		timeout: defaultRedisWriteTimeout,
		onError: onError,
	}
}

func (s *RedisSink) Emit(ctx context.Context, entry Entry) {
	if s == nil || s.redis == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.report(err)
		return
	}

	// Detached from request cancellation; the write has its own timeout.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	pipe := s.redis.TxPipeline()
	pipe.RPush(writeCtx, s.key, data)
	pipe.LTrim(writeCtx, s.key, -s.max, -1)
	if _, err := pipe.Exec(writeCtx); err != nil {
		s.report(err)
	}
}

// Read returns up to limit most recent persisted entries, oldest-first; limit <= 0
// returns everything retained.
func (s *RedisSink) Read(ctx context.Context, limit int) ([]Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.redis.LRange(ctx, s.key, start, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *RedisSink) report(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
