package pveauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvHost            = "PROXMOX_HOST"
	EnvPort            = "PROXMOX_PORT"
	EnvUsername        = "PROXMOX_USERNAME"
	EnvPassword        = "PROXMOX_PASSWORD"
	EnvTokenID         = "PROXMOX_TOKEN_ID"
	EnvTokenSecret     = "PROXMOX_TOKEN_SECRET"
	EnvRealm           = "PROXMOX_REALM"
	EnvVerifySSL       = "PROXMOX_VERIFY_SSL"
	EnvTimeout         = "PROXMOX_TIMEOUT"
	EnvRateLimitMax    = "PROXMOX_RATE_LIMIT_MAX"
	EnvRateLimitWindow = "PROXMOX_RATE_LIMIT_WINDOW"
	EnvRetryBackoff    = "PROXMOX_RETRY_BACKOFF"
)

// LoadConfigFromEnv overlays PROXMOX_* variables on DefaultConfig and validates the
// result. PROXMOX_TIMEOUT, PROXMOX_RATE_LIMIT_WINDOW and PROXMOX_RETRY_BACKOFF are
// milliseconds. TLS verification is disabled only by PROXMOX_VERIFY_SSL=false.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfigFromLookup(os.LookupEnv)
}

// LoadConfigFromLookup is LoadConfigFromEnv over an arbitrary lookup function.
func LoadConfigFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()
	var errs *multierror.Error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	millis := func(key string, dst *time.Duration) {
		var n int
		integer(key, &n)
		if n != 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}

	str(EnvHost, &cfg.Host)
	integer(EnvPort, &cfg.Port)
	str(EnvUsername, &cfg.Username)
	str(EnvPassword, &cfg.Password)
	str(EnvTokenID, &cfg.TokenID)
	str(EnvTokenSecret, &cfg.TokenSecret)
	str(EnvRealm, &cfg.Realm)
	millis(EnvTimeout, &cfg.Timeout)
	integer(EnvRateLimitMax, &cfg.RateLimit.MaxRequests)
	millis(EnvRateLimitWindow, &cfg.RateLimit.Window)
	millis(EnvRetryBackoff, &cfg.Retry.BackoffStep)

	if v, ok := lookup(EnvVerifySSL); ok {
		cfg.VerifyTLS = Bool(!strings.EqualFold(strings.TrimSpace(v), "false"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
