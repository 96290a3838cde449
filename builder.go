package pveauth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/pveauth/internal/audit"
	"github.com/MrEthical07/pveauth/internal/flows"
	"github.com/MrEthical07/pveauth/internal/rate"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

// Builder assembles a Client. A Builder is single-use.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config    Config
	transport transport.Transport
	redis     redis.UniversalClient
	logger    hclog.Logger
	sinks     []AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTransport replaces the default HTTPS transport. Host, Port, VerifyTLS and Timeout
// are then only validated, not applied.
func (b *Builder) WithTransport(tr transport.Transport) *Builder {
	b.transport = tr
	return b
}

// WithRedis moves the rate limit budget into Redis under Config.RateLimit.RedisKey so
// every client sharing the key shares one bucket.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for session and dispatch events. Defaults to a null logger.
func (b *Builder) WithLogger(logger hclog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink adds an observer notified of every audit entry. May be called repeatedly.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces the clock used by the local rate limiter and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the client. It performs no network I/O.
//
// Build may return an error when input validation fails; every such error matches
// ErrConfiguration.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TRANSPORT --------
	tr := b.transport
	if tr == nil {
		httpTransport, err := transport.NewHTTP(transport.HTTPConfig{
			Host:      cfg.Host,
			Port:      cfg.Port,
			VerifyTLS: cfg.TLSVerification(),
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, configError("%v", err)
		}
		tr = httpTransport
	}
	if !cfg.TLSVerification() {
		logger.Warn("TLS certificate verification disabled", "host", cfg.Host)
	}

	// -------- RATE LIMITER --------
	var limiter clientLimiter
	if b.redis != nil {
		bucket, err := rate.NewRedisBucket(b.redis, cfg.RateLimit.RedisKey, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		if err != nil {
			return nil, configError("%v", err)
		}
		limiter = sharedLimiter{bucket.WithClock(now)}
	} else {
		bucket, err := rate.NewTokenBucketWithClock(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, now)
		if err != nil {
			return nil, configError("%v", err)
		}
		limiter = localLimiter{bucket}
	}

	// -------- AUDIT --------
	var observer audit.Sink
	var dispatcher *audit.Dispatcher
	switch {
	case len(b.sinks) == 0:
	case cfg.Audit.Async:
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sinks...)
		observer = dispatcher
	case len(b.sinks) == 1:
		observer = b.sinks[0]
	default:
		observer = audit.MultiSink(b.sinks)
	}
	auditLog := audit.NewLog(cfg.Audit.MaxEntries, observer)

	// -------- METRICS --------
	metrics := NewMetrics(cfg.Metrics)

	// -------- SESSION --------
	sessions := session.NewManager(creds, tr,
		session.WithLogger(logger.Named("session")),
		session.WithHooks(session.Hooks{
			OnAuthenticated: func() { metrics.Inc(MetricAuthSuccess) },
			OnFailure:       func(error) { metrics.Inc(MetricAuthFailure) },
			OnInvalidated:   func() { metrics.Inc(MetricSessionInvalidated) },
		}),
	)

	c := &Client{
		config:     cfg,
		logger:     logger,
		transport:  tr,
		session:    sessions,
		limiter:    limiter,
		auditLog:   auditLog,
		dispatcher: dispatcher,
		metrics:    metrics,
		now:        now,

		auditObservers: len(b.sinks),
	}

	dispatchLogger := logger.Named("dispatch")
	c.flows = flows.New(flows.Deps{
		Dispatch: flows.DispatchDeps{
			Limiter:           limiter,
			Session:           sessions,
			Transport:         tr,
			Audit:             auditLog,
			User:              creds.Principal(),
			MaxRetries:        cfg.Retry.MaxRetries,
			BackoffStep:       cfg.Retry.BackoffStep,
			Now:               now,
			NewID:             uuid.NewString,
			Debug:             dispatchLogger.Debug,
			Warn:              dispatchLogger.Warn,
			Observe:           c.observeDispatch,
			OnRetry:           func(int, time.Duration) { metrics.Inc(MetricReauthRetry) },
			RateLimitExceeded: ErrRateLimitExceeded,
			NewHTTPError: func(status int, statusText, message string) error {
				return &HTTPError{StatusCode: status, Status: statusText, Message: message}
			},
			NewRetryExhausted: func(retries int) error {
				return &RetryExhaustedError{Retries: retries}
			},
		},
	})

	b.built = true
	logger.Debug("client built",
		"host", cfg.Host,
		"principal", creds.Principal(),
		"rate_limit", cfg.RateLimit.MaxRequests,
		"window", cfg.RateLimit.Window,
		"shared_limiter", b.redis != nil,
	)
	return c, nil
}

type clientLimiter interface {
	Allow(ctx context.Context) (bool, error)
	tokens(ctx context.Context) (int, error)
	reset(ctx context.Context) error
}

type localLimiter struct {
	*rate.TokenBucket
}

func (l localLimiter) tokens(context.Context) (int, error) { return l.TokenCount(), nil }

func (l localLimiter) reset(context.Context) error {
	l.Reset()
	return nil
}

type sharedLimiter struct {
	*rate.RedisBucket
}

func (l sharedLimiter) tokens(ctx context.Context) (int, error) { return l.TokenCount(ctx) }
func (l sharedLimiter) reset(ctx context.Context) error         { return l.Reset(ctx) }
