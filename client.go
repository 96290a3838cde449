package pveauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/MrEthical07/pveauth/internal/audit"
	"github.com/MrEthical07/pveauth/internal/flows"
	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

// Client is an authenticated, rate-limited, audited Proxmox VE API client. It is safe
// for concurrent use after Build.
type Client struct {
	config     Config
	logger     hclog.Logger
	transport  transport.Transport
	session    *session.Manager
	limiter    clientLimiter
	auditLog   *audit.Log
	dispatcher *audit.Dispatcher
	metrics    *Metrics
	flows      flows.Service
	now        func() time.Time

	auditObservers int
	lastRetries    atomic.Int64
	closed         atomic.Bool
}

// Do sends one logical request and returns the "data" member of the response body.
//
// For GET and DELETE, params are encoded into the query string; for other methods they
// form the application/x-www-form-urlencoded body. A 401 triggers bounded
// re-authentication; any other failure is returned as-is. Every physical attempt is
// recorded in the audit log.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := c.flows.Dispatch(ctx, buildRequest(method, path, params))
	c.lastRetries.Store(int64(res.Retries))
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Data, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, query)
}

func (c *Client) Post(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, params)
}

func (c *Client) Put(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, params)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, query)
}

func buildRequest(method, path string, params url.Values) *transport.Request {
	method = strings.ToUpper(method)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body []byte
	if len(params) > 0 {
		switch method {
		case http.MethodGet, http.MethodDelete, http.MethodHead:
			path += "?" + params.Encode()
		default:
			body = []byte(params.Encode())
		}
	}

	req := transport.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req
}

// Authenticate establishes a session ahead of the first request; a session already held
// is kept. Its outcome is recorded in the audit log under the "authenticate" operation.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	err := c.session.Authenticate(ctx)

	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: c.now(),
		Operation: flows.OperationAuthenticate,
		User:      c.session.Credentials().Principal(),
		Resource:  session.TicketPath,
		Result:    AuditSuccess,
	}
	if _, ok := c.session.Credentials().(session.TokenCredential); ok {
		entry.Resource = "api_token"
	}
	if err != nil {
		entry.Result = AuditFailure
		entry.Details = err.Error()
	}
	c.auditLog.Append(ctx, entry)
	return err
}

// IsAuthenticated reports whether session material is held.
func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

// SessionState returns the session manager's state.
func (c *Client) SessionState() session.State {
	return c.session.State()
}

// RetryCount returns the retry counter left by the most recent dispatch: zero after a
// success.
func (c *Client) RetryCount() int {
	return int(c.lastRetries.Load())
}

// AuditLogs returns the most recent limit entries oldest-first, or all when limit <= 0.
// The slice is a copy.
func (c *Client) AuditLogs(limit int) []AuditEntry {
	return c.auditLog.Read(limit)
}

// ClearAuditLogs empties the in-memory audit log. Sinks are unaffected.
func (c *Client) ClearAuditLogs() {
	c.auditLog.Clear()
	c.logger.Info("audit log cleared")
}

// RateLimitTokens returns the whole tokens currently available.
func (c *Client) RateLimitTokens(ctx context.Context) (int, error) {
	return c.limiter.tokens(ctx)
}

// ResetRateLimit refills the bucket.
func (c *Client) ResetRateLimit(ctx context.Context) error {
	return c.limiter.reset(ctx)
}

// MetricsSnapshot returns a point-in-time copy of the client metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of entries dropped by the asynchronous sink dispatcher.
func (c *Client) AuditDropped() uint64 {
	return c.dispatcher.Dropped()
}

// AuditDelivery reports per-sink delivery counters of the asynchronous dispatcher, in
// registration order. It is nil for synchronous audit.
func (c *Client) AuditDelivery() []AuditLaneStats {
	return c.dispatcher.Stats()
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// Close drains the asynchronous audit dispatcher. Further requests fail with
// ErrClientClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.dispatcher.Close()
}

func (c *Client) observeDispatch(res flows.DispatchResult, latency time.Duration) {
	m := c.metrics
	m.Observe(MetricRequestLatency, latency)
	m.ObserveReauths(res.Reauths)

	switch res.Failure {
	case flows.DispatchFailureNone:
		m.Inc(MetricRequestSuccess)
		return
	case flows.DispatchFailureRateLimited, flows.DispatchFailureLimiter:
		m.Inc(MetricRateLimited)
	case flows.DispatchFailureAuthentication:
		m.Inc(MetricRequestUnauthenticated)
	case flows.DispatchFailureTransport, flows.DispatchFailureDecode:
		m.Inc(MetricTransportFailure)
	case flows.DispatchFailureStatus:
		m.Inc(MetricHTTPError)
	case flows.DispatchFailureRetryExhausted:
		m.Inc(MetricRetryExhausted)
	case flows.DispatchFailureCanceled:
		m.Inc(MetricRequestCanceled)
	}
	m.Inc(MetricRequestFailure)
}
