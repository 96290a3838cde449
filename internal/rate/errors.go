package rate

import "errors"

var (
	// ErrInvalidBucket is returned when a bucket is constructed with non-positive limits.
	ErrInvalidBucket = errors.New("invalid token bucket parameters")
	// ErrLimiterUnavailable is returned when the shared limiter backend cannot be reached.
	ErrLimiterUnavailable = errors.New("rate limiter backend unavailable")
)
