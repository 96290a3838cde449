package pveauth

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

var (
	// ErrConfiguration is returned by Config validation and Build before any network activity.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrRateLimitExceeded is returned when the limiter denies a request. It is never retried.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAuthenticationFailed is returned when the credential exchange fails.
	ErrAuthenticationFailed = session.ErrAuthenticationFailed
	// ErrInvalidAuthResponse is returned when the ticket response lacks a ticket or CSRF
	// token. It also matches ErrAuthenticationFailed.
	ErrInvalidAuthResponse = session.ErrInvalidAuthResponse
	// ErrInvalidCredentials is returned when a credential is missing a required field.
	ErrInvalidCredentials = session.ErrInvalidCredentials
	// ErrRetryExhausted is matched by *RetryExhaustedError.
	ErrRetryExhausted = errors.New("retries exhausted")
	// ErrTransport marks network-level failures.
	ErrTransport = transport.ErrTransport
	// ErrClientClosed is returned by Do after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// HTTPError is a non-2xx answer other than a recoverable 401.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("proxmox api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("proxmox api: status %d", e.StatusCode)
}

// RetryExhaustedError is returned when a request kept failing with 401 after Retries
// re-authentications.
type RetryExhaustedError struct {
	Retries int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d re-authentication attempts", ErrRetryExhausted, e.Retries)
}

func (e *RetryExhaustedError) Unwrap() error {
	return ErrRetryExhausted
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
