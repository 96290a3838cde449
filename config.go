package pveauth

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MrEthical07/pveauth/internal/audit"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

// Config defines the connection, credential, and dispatch settings of a Client.
//
// Start from DefaultConfig; a zero Config does not validate.
type Config struct {
	Host string
	Port int

	Username    string
	Password    string
	TokenID     string
	TokenSecret string
	Realm       string

	// VerifyTLS defaults to true when nil.
	VerifyTLS *bool
	// Timeout bounds one HTTP exchange.
	Timeout time.Duration

	RateLimit RateLimitConfig
	Retry     RetryConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sizes the token bucket: MaxRequests per Window, refilled continuously.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	// RedisKey names the shared bucket when a Redis client is supplied to the Builder.
	RedisKey string
}

func (c RateLimitConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRequests, validation.Required, validation.Min(1)),
		validation.Field(&c.Window, validation.Required, validation.Min(time.Millisecond)),
	)
}

/*
====================================
RETRY CONFIG
====================================
*/

// RetryConfig bounds re-authentication after a 401. The n-th retry waits
// BackoffStep × n.
type RetryConfig struct {
	MaxRetries  int
	BackoffStep time.Duration
}

func (c RetryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.BackoffStep, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig sizes the in-memory log and the asynchronous sink dispatcher.
type AuditConfig struct {
	MaxEntries int
	// Async routes sink delivery through a buffered dispatcher. When false, sinks run
	// inline on the request path.
	Async      bool
	BufferSize int
	DropIfFull bool
}

func (c AuditConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxEntries, validation.Min(0)),
		validation.Field(&c.BufferSize, validation.When(c.Async, validation.Required, validation.Min(1))),
	)
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns port 8006, realm pam, TLS verification on, a 30s timeout,
// 100 requests per 60s, three retries with a 1s linear step, and a 10000-entry audit log.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Port:    transport.DefaultPort,
		Realm:   session.DefaultRealm,
		Timeout: transport.DefaultTimeout,
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
			RedisKey:    "pveauth",
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BackoffStep: time.Second,
		},
		Audit: AuditConfig{
			MaxEntries: audit.DefaultMaxEntries,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.VerifyTLS != nil {
		v := *cfg.VerifyTLS
		out.VerifyTLS = &v
	}
	return out
}

// Bool returns a pointer to v, for Config.VerifyTLS.
func Bool(v bool) *bool {
	return &v
}

// TLSVerification reports the effective VerifyTLS setting.
func (c *Config) TLSVerification() bool {
	return c.VerifyTLS == nil || *c.VerifyTLS
}

/*
====================================
VALIDATION
====================================
*/

// hostPattern admits hostnames and IPv4 addresses.
var hostPattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// Validate checks required fields and ranges. Every failure matches ErrConfiguration.
func (c *Config) Validate() error {
	hasToken := c.TokenID != "" || c.TokenSecret != ""
	err := validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required, validation.Match(hostPattern).Error("must contain only letters, digits, dots and hyphens")),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password,
			validation.When(!hasToken, validation.Required.Error("password or API token is required"))),
		validation.Field(&c.TokenID, validation.When(c.Password == "" && hasToken, validation.Required)),
		validation.Field(&c.TokenSecret, validation.When(c.Password == "" && hasToken, validation.Required)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second), validation.Max(time.Minute)),
		validation.Field(&c.RateLimit),
		validation.Field(&c.Retry),
		validation.Field(&c.Audit),
	)
	if err != nil {
		return configError("%v", err)
	}
	return nil
}

// Credentials builds the credential union. A password takes precedence over an API
// token when both are configured.
func (c *Config) Credentials() (session.Credentials, error) {
	var (
		creds session.Credentials
		err   error
	)
	if c.Password != "" {
		creds, err = session.NewPasswordCredential(c.Username, c.Realm, c.Password)
	} else {
		creds, err = session.NewTokenCredential(c.Username, c.Realm, c.TokenID, c.TokenSecret)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return creds, nil
}
