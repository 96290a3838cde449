package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/pveauth/internal/audit"
	"github.com/MrEthical07/pveauth/transport"
	"github.com/cenkalti/backoff/v4"
)

// OperationAuthenticate is the audit operation recorded for failed credential exchanges.
const OperationAuthenticate = "authenticate"

// DispatchFailureKind classifies dispatch failures for root-level metric mapping.
type DispatchFailureKind int

const (
	DispatchFailureNone DispatchFailureKind = iota
	DispatchFailureRateLimited
	DispatchFailureLimiter
	DispatchFailureAuthentication
	DispatchFailureTransport
	DispatchFailureStatus
	DispatchFailureDecode
	DispatchFailureRetryExhausted
	DispatchFailureCanceled
)

// DispatchResult carries the unwrapped data member or failure metadata.
type DispatchResult struct {
	Data    json.RawMessage
	Failure DispatchFailureKind
	Err     error
	// Retries is the retry counter at exit: zero on success.
	Retries int
	// Attempts counts the audit entries this dispatch appended.
	Attempts int
	// Reauths counts re-authentications triggered by 401 answers. Unlike Retries it
	// survives a successful finish.
	Reauths int
}

type DispatchLimiter interface {
	Allow(ctx context.Context) (bool, error)
}

type DispatchSession interface {
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
	Invalidate()
	Decorate(req *transport.Request)
}

type DispatchAuditLog interface {
	Append(ctx context.Context, e audit.Entry)
}

// DispatchDeps captures dispatch flow dependencies.
type DispatchDeps struct {
	Limiter   DispatchLimiter
	Session   DispatchSession
	Transport transport.Transport
	Audit     DispatchAuditLog

	User        string
	MaxRetries  int
	BackoffStep time.Duration

	Now     func() time.Time
	NewID   func() string
	Sleep   func(context.Context, time.Duration) error
	Debug   func(string, ...any)
	Warn    func(string, ...any)
	Observe func(res DispatchResult, latency time.Duration)
	OnRetry func(attempt int, wait time.Duration)

	RateLimitExceeded error
	NewHTTPError      func(status int, statusText, message string) error
	NewRetryExhausted func(retries int) error
}

// LinearBackOff waits Step multiplied by the attempt number: Step, 2×Step, 3×Step...
// It satisfies backoff.BackOff and never returns backoff.Stop on its own; bound it
// with backoff.WithMaxRetries.
type LinearBackOff struct {
	Step    time.Duration
	attempt int
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.Step * time.Duration(b.attempt)
}

func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// retryState is local to one dispatch.
type retryState struct {
	counter int
	policy  backoff.BackOff
}

func newRetryState(step time.Duration, maxRetries int) *retryState {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryState{
		policy: backoff.WithMaxRetries(&LinearBackOff{Step: step}, uint64(maxRetries)),
	}
}

// next advances the counter and returns the wait before the next attempt, or false
// when the retry budget is spent.
func (r *retryState) next() (time.Duration, bool) {
	wait := r.policy.NextBackOff()
	if wait == backoff.Stop {
		return 0, false
	}
	r.counter++
	return wait, true
}

// SleepContext waits d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// RunDispatch executes one logical request: limiter gate, lazy authentication, send,
// and bounded re-authentication on 401. Every physical attempt, including gate and
// authentication failures, appends exactly one audit entry.
func RunDispatch(ctx context.Context, req *transport.Request, deps DispatchDeps) DispatchResult {
	deps = withDispatchDefaults(deps)
	retry := newRetryState(deps.BackoffStep, deps.MaxRetries)
	started := deps.Now()
	var attempts, reauths int

	finish := func(res DispatchResult) DispatchResult {
		res.Retries = retry.counter
		res.Reauths = reauths
		if deps.Observe != nil {
			deps.Observe(res, deps.Now().Sub(started))
		}
		return res
	}

	for {
		attempts++

		allowed, err := deps.Limiter.Allow(ctx)
		if err != nil || !allowed {
			kind := DispatchFailureRateLimited
			cause := deps.RateLimitExceeded
			if err != nil {
				kind = DispatchFailureLimiter
				cause = fmt.Errorf("%w: %w", deps.RateLimitExceeded, err)
			}
			appendAudit(ctx, deps, req.Method, req.Path, cause)
			return finish(DispatchResult{Failure: kind, Err: cause, Attempts: attempts})
		}

		if !deps.Session.IsAuthenticated() {
			if err := deps.Session.Authenticate(ctx); err != nil {
				appendAudit(ctx, deps, OperationAuthenticate, req.Path, err)
				return finish(DispatchResult{Failure: DispatchFailureAuthentication, Err: err, Attempts: attempts})
			}
		}

		attempt := req.Clone()
		deps.Session.Decorate(attempt)

		resp, err := deps.Transport.Send(ctx, attempt)
		if err == nil && resp == nil {
			err = fmt.Errorf("%w: nil response", transport.ErrTransport)
		}
		if err != nil {
			if !errors.Is(err, transport.ErrTransport) {
				err = fmt.Errorf("%w: %w", transport.ErrTransport, err)
			}
			appendAudit(ctx, deps, req.Method, req.Path, err)
			return finish(DispatchResult{Failure: DispatchFailureTransport, Err: err, Attempts: attempts})
		}

		if resp.OK() {
			data, err := decodeData(resp.Body)
			if err != nil {
				err = fmt.Errorf("%w: %v", transport.ErrTransport, err)
				appendAudit(ctx, deps, req.Method, req.Path, err)
				return finish(DispatchResult{Failure: DispatchFailureDecode, Err: err, Attempts: attempts})
			}
			retry.counter = 0
			appendAudit(ctx, deps, req.Method, req.Path, nil)
			return finish(DispatchResult{Data: data, Attempts: attempts})
		}

		statusErr := deps.NewHTTPError(resp.StatusCode, resp.Status, errorMessage(resp.Body))
		appendAudit(ctx, deps, req.Method, req.Path, statusErr)

		if resp.StatusCode != http.StatusUnauthorized {
			return finish(DispatchResult{Failure: DispatchFailureStatus, Err: statusErr, Attempts: attempts})
		}

		wait, ok := retry.next()
		if !ok {
			err := deps.NewRetryExhausted(retry.counter)
			deps.Warn("retry budget exhausted", "path", req.Path, "retries", retry.counter)
			return finish(DispatchResult{Failure: DispatchFailureRetryExhausted, Err: err, Attempts: attempts})
		}

		deps.Session.Invalidate()
		reauths++
		deps.Debug("session rejected, re-authenticating", "path", req.Path, "attempt", retry.counter, "wait", wait)
		if deps.OnRetry != nil {
			deps.OnRetry(retry.counter, wait)
		}
		if err := deps.Sleep(ctx, wait); err != nil {
			return finish(DispatchResult{Failure: DispatchFailureCanceled, Err: err, Attempts: attempts})
		}
		if err := deps.Session.Authenticate(ctx); err != nil {
			attempts++
			appendAudit(ctx, deps, OperationAuthenticate, req.Path, err)
			return finish(DispatchResult{Failure: DispatchFailureAuthentication, Err: err, Attempts: attempts})
		}
	}
}

func withDispatchDefaults(deps DispatchDeps) DispatchDeps {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.Debug == nil {
		deps.Debug = func(string, ...any) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.RateLimitExceeded == nil {
		deps.RateLimitExceeded = errors.New("rate limit exceeded")
	}
	if deps.NewHTTPError == nil {
		deps.NewHTTPError = func(status int, _ string, message string) error {
			return fmt.Errorf("http status %d: %s", status, message)
		}
	}
	if deps.NewRetryExhausted == nil {
		deps.NewRetryExhausted = func(retries int) error {
			return fmt.Errorf("retries exhausted after %d attempts", retries)
		}
	}
	return deps
}

func appendAudit(ctx context.Context, deps DispatchDeps, operation, resource string, err error) {
	if deps.Audit == nil {
		return
	}
	e := audit.Entry{
		Timestamp: deps.Now(),
		Operation: operation,
		User:      deps.User,
		Resource:  resource,
		Result:    audit.ResultSuccess,
	}
	if deps.NewID != nil {
		e.ID = deps.NewID()
	}
	if err != nil {
		e.Result = audit.ResultFailure
		e.Details = err.Error()
	}
	deps.Audit.Append(ctx, e)
}

func decodeData(body []byte) (json.RawMessage, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}

func errorMessage(body []byte) string {
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Message != "" {
		return env.Message
	}
	const maxLen = 256
	if len(body) > maxLen {
		return string(body[:maxLen])
	}
	return string(body)
}
