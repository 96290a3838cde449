package pveauth

import (
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/pveauth/internal/audit"
	internalmetrics "github.com/MrEthical07/pveauth/internal/metrics"
)

// AuditEntry is one record of the audit trail: one per physical request attempt.
type AuditEntry = internalaudit.Entry

// AuditResult is success or failure.
type AuditResult = internalaudit.Result

const (
	AuditSuccess = internalaudit.ResultSuccess
	AuditFailure = internalaudit.ResultFailure
)

// AuditSink observes every appended [AuditEntry].
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all entries.
type NoOpSink = internalaudit.NoOpSink

// MultiSink fans an entry out to several sinks in order.
type MultiSink = internalaudit.MultiSink

// AuditLaneStats reports delivery counters for one asynchronously fed sink.
type AuditLaneStats = internalaudit.LaneStats

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes sanitized JSON lines to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes sanitized entries to an hclog logger: Info on success, Warn on failure.
type LoggerSink = internalaudit.LoggerSink

// RedisSink appends entries to a capped Redis list shared across processes.
type RedisSink = internalaudit.RedisSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewLoggerSink(logger hclog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

// NewRedisSink creates a [RedisSink] on key retaining maxEntries; onError may be nil.
func NewRedisSink(client redis.UniversalClient, key string, maxEntries int, onError func(error)) *RedisSink {
	return internalaudit.NewRedisSink(client, key, maxEntries, onError)
}

// Sanitize keeps ASCII letters, digits, underscore, space, '.' and '-'. Use it before
// writing caller-controlled text to line-oriented logs.
func Sanitize(text string) string {
	return internalaudit.Sanitize(text)
}

// SanitizeEntry returns a copy of entry with [Sanitize] applied to every free-text field.
func SanitizeEntry(entry AuditEntry) AuditEntry {
	return internalaudit.SanitizeEntry(entry)
}

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricRequestSuccess counts dispatches that returned data.
	MetricRequestSuccess = internalmetrics.MetricRequestSuccess
	// MetricRequestFailure counts dispatches that returned an error.
	MetricRequestFailure = internalmetrics.MetricRequestFailure
	// MetricRateLimited counts requests denied by the limiter.
	MetricRateLimited = internalmetrics.MetricRateLimited
	// MetricRequestUnauthenticated counts dispatches that ended on a failed credential
	// exchange.
	MetricRequestUnauthenticated = internalmetrics.MetricRequestUnauthenticated
	// MetricRequestCanceled counts dispatches abandoned during a backoff wait.
	MetricRequestCanceled = internalmetrics.MetricRequestCanceled
	// MetricAuthSuccess counts completed credential exchanges.
	MetricAuthSuccess = internalmetrics.MetricAuthSuccess
	// MetricAuthFailure counts failed credential exchanges.
	MetricAuthFailure = internalmetrics.MetricAuthFailure
	// MetricSessionInvalidated counts tickets dropped after a 401.
	MetricSessionInvalidated = internalmetrics.MetricSessionInvalidated
	// MetricReauthRetry counts re-authentication retries.
	MetricReauthRetry = internalmetrics.MetricReauthRetry
	// MetricRetryExhausted counts dispatches that ran out of retries.
	MetricRetryExhausted = internalmetrics.MetricRetryExhausted
	// MetricTransportFailure counts network-level failures.
	MetricTransportFailure = internalmetrics.MetricTransportFailure
	// MetricHTTPError counts non-2xx answers other than recoverable 401s.
	MetricHTTPError = internalmetrics.MetricHTTPError
	// MetricRequestLatency is the dispatch latency histogram, backoff waits included.
	MetricRequestLatency = internalmetrics.MetricRequestLatency
)

// LatencyBounds are the upper bounds of the latency histogram buckets; the last bucket
// is unbounded.
var LatencyBounds = internalmetrics.LatencyBounds

// ReauthBucketCount is the length of [MetricsSnapshot].Reauths.
const ReauthBucketCount = internalmetrics.ReauthBucketCount

// Metrics holds atomic counters, the optional latency histogram and the re-authentication
// distribution.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
