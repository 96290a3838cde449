package pveauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/pveauth/session"
	"github.com/MrEthical07/pveauth/transport"
)

const testTicketBody = `{"data":{"ticket":"PVE:root@pam:4F2A","CSRFPreventionToken":"4F2A:csrf","username":"root@pam"}}`

// fakePVE answers the ticket endpoint and scripts statuses for every other path.
type fakePVE struct {
	mu          sync.Mutex
	ticketCalls int
	apiCalls    int
	statuses    []int
	ticketBody  string
	requests    []*transport.Request
}

func newFakePVE(statuses ...int) *fakePVE {
	if len(statuses) == 0 {
		statuses = []int{http.StatusOK}
	}
	return &fakePVE{statuses: statuses, ticketBody: testTicketBody}
}

func (f *fakePVE) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req.Clone())
	if req.Path == session.TicketPath {
		f.ticketCalls++
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(f.ticketBody)}, nil
	}

	status := f.statuses[len(f.statuses)-1]
	if f.apiCalls < len(f.statuses) {
		status = f.statuses[f.apiCalls]
	}
	f.apiCalls++

	switch status {
	case http.StatusOK:
		return &transport.Response{StatusCode: status, Body: []byte(`{"data":[{"node":"pve1"}]}`)}, nil
	default:
		return &transport.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       []byte(`{"data":null,"message":"` + http.StatusText(status) + `"}`),
		}, nil
	}
}

func (f *fakePVE) counts() (ticket, api int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticketCalls, f.apiCalls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fastConfig() Config {
	cfg := validConfig()
	cfg.Retry.BackoffStep = time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

func buildClient(t *testing.T, cfg Config, tr transport.Transport) *Client {
	t.Helper()
	c, err := New().WithConfig(cfg).WithTransport(tr).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClientRecoversFromTwoRejections(t *testing.T) {
	pve := newFakePVE(http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK)
	c := buildClient(t, fastConfig(), pve)

	data, err := c.Get(context.Background(), "/nodes", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `[{"node":"pve1"}]` {
		t.Fatalf("unexpected data %s", data)
	}
	if c.RetryCount() != 0 {
		t.Fatalf("expected retry counter 0, got %d", c.RetryCount())
	}

	logs := c.AuditLogs(0)
	if len(logs) != 3 {
		t.Fatalf("expected 3 audit entries, got %d: %+v", len(logs), logs)
	}
	failures := 0
	for _, e := range logs {
		if e.Result == AuditFailure {
			failures++
		}
		if e.User != "root@pam" || e.ID == "" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
	if failures != 2 || logs[2].Result != AuditSuccess {
		t.Fatalf("expected 2 failures then success, got %+v", logs)
	}

	if ticket, _ := pve.counts(); ticket != 3 {
		t.Fatalf("expected initial auth plus 2 re-auths, got %d", ticket)
	}
	snap := c.MetricsSnapshot()
	if snap.Counters[MetricReauthRetry] != 2 || snap.Counters[MetricSessionInvalidated] != 2 || snap.Counters[MetricRequestSuccess] != 1 {
		t.Fatalf("unexpected metrics %+v", snap.Counters)
	}
}

func TestClientRetryExhausted(t *testing.T) {
	pve := newFakePVE(http.StatusUnauthorized)
	c := buildClient(t, fastConfig(), pve)

	_, err := c.Get(context.Background(), "/nodes", nil)
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Retries != 3 {
		t.Fatalf("expected RetryExhaustedError{3}, got %v", err)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatal("expected ErrRetryExhausted match")
	}
	ticket, api := pve.counts()
	if ticket != 4 || api != 4 {
		t.Fatalf("expected 1+3 authentications and 4 sends, got %d/%d", ticket, api)
	}
	if c.RetryCount() != 3 {
		t.Fatalf("expected retry counter 3, got %d", c.RetryCount())
	}
	if n := len(c.AuditLogs(0)); n != 4 {
		t.Fatalf("expected 4 audit entries, got %d", n)
	}
	if c.MetricsSnapshot().Counters[MetricRetryExhausted] != 1 {
		t.Fatal("expected retry exhausted metric")
	}
}

func TestClientHTTPErrorNotRetried(t *testing.T) {
	pve := newFakePVE(http.StatusInternalServerError)
	c := buildClient(t, fastConfig(), pve)

	_, err := c.Post(context.Background(), "/nodes/pve1/qemu/100/status/start", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected HTTPError 500, got %v", err)
	}
	if httpErr.Message != "Internal Server Error" {
		t.Fatalf("expected server message, got %q", httpErr.Message)
	}
	if _, api := pve.counts(); api != 1 {
		t.Fatalf("expected a single send, got %d", api)
	}
}

func TestClientRateLimitWindowScenario(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cfg := fastConfig()
	cfg.RateLimit.MaxRequests = 5
	cfg.RateLimit.Window = time.Second

	pve := newFakePVE()
	c, err := New().WithConfig(cfg).WithTransport(pve).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := c.Get(ctx, "/version", nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := c.Get(ctx, "/version", nil); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if _, api := pve.counts(); api != 5 {
		t.Fatalf("denied request must not be sent, got %d sends", api)
	}

	clock.Advance(200 * time.Millisecond)
	if _, err := c.Get(ctx, "/version", nil); err != nil {
		t.Fatalf("expected one refilled token, got %v", err)
	}
	if _, err := c.Get(ctx, "/version", nil); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit after refill consumed, got %v", err)
	}

	logs := c.AuditLogs(0)
	if len(logs) != 8 || logs[5].Result != AuditFailure || logs[7].Result != AuditFailure {
		t.Fatalf("expected rate limited attempts audited, got %+v", logs)
	}
	if c.MetricsSnapshot().Counters[MetricRateLimited] != 2 {
		t.Fatal("expected 2 rate limited metrics")
	}
	if n, _ := c.RateLimitTokens(ctx); n != 0 {
		t.Fatalf("expected empty bucket, got %d", n)
	}
	if err := c.ResetRateLimit(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := c.RateLimitTokens(ctx); n != 5 {
		t.Fatalf("expected full bucket after reset, got %d", n)
	}
}

func TestClientTokenAuthentication(t *testing.T) {
	cfg := fastConfig()
	cfg.Password = ""
	cfg.TokenID = "ci"
	cfg.TokenSecret = "0f1e"

	pve := newFakePVE()
	c := buildClient(t, cfg, pve)

	if _, err := c.Get(context.Background(), "/nodes", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	ticket, _ := pve.counts()
	if ticket != 0 {
		t.Fatalf("token auth must not exchange tickets, got %d", ticket)
	}
	req := pve.requests[0]
	if got := req.Header.Get("Authorization"); got != "PVEAPIToken=root@pam!ci=0f1e" {
		t.Fatalf("unexpected authorization %q", got)
	}
	if c.SessionState() != session.Authenticated {
		t.Fatalf("expected authenticated, got %s", c.SessionState())
	}
}

func TestClientAuthenticationFailure(t *testing.T) {
	pve := newFakePVE()
	pve.ticketBody = `{"data":{"ticket":"only-ticket"}}`
	c := buildClient(t, fastConfig(), pve)

	_, err := c.Get(context.Background(), "/nodes", nil)
	if !errors.Is(err, ErrAuthenticationFailed) || !errors.Is(err, ErrInvalidAuthResponse) {
		t.Fatalf("expected invalid auth response, got %v", err)
	}
	if _, api := pve.counts(); api != 0 {
		t.Fatal("request must not be sent without a session")
	}
	logs := c.AuditLogs(0)
	if len(logs) != 1 || logs[0].Operation != "authenticate" || logs[0].Result != AuditFailure {
		t.Fatalf("expected authenticate failure entry, got %+v", logs)
	}
	if c.MetricsSnapshot().Counters[MetricAuthFailure] != 1 {
		t.Fatal("expected auth failure metric")
	}
}

func TestClientExplicitAuthenticateAudited(t *testing.T) {
	pve := newFakePVE()
	c := buildClient(t, fastConfig(), pve)

	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Fatal("expected authenticated client")
	}
	logs := c.AuditLogs(1)
	if len(logs) != 1 || logs[0].Operation != "authenticate" || logs[0].Result != AuditSuccess {
		t.Fatalf("unexpected audit %+v", logs)
	}
	c.ClearAuditLogs()
	if len(c.AuditLogs(0)) != 0 {
		t.Fatal("expected cleared log")
	}
}

func TestClientNilTransportResponseIsTransportError(t *testing.T) {
	pve := newFakePVE()
	tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Path == session.TicketPath {
			return pve.Send(ctx, req)
		}
		return nil, nil
	})
	c := buildClient(t, fastConfig(), tr)

	_, err := c.Get(context.Background(), "/nodes", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	logs := c.AuditLogs(0)
	if len(logs) != 1 || logs[0].Result != AuditFailure || logs[0].Resource != "/nodes" {
		t.Fatalf("expected one failure entry for /nodes, got %+v", logs)
	}
}

func TestClientEncodesParams(t *testing.T) {
	pve := newFakePVE()
	c := buildClient(t, fastConfig(), pve)
	ctx := context.Background()

	if _, err := c.Get(ctx, "nodes/pve1/tasks", url.Values{"limit": {"5"}}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := c.Post(ctx, "/nodes/pve1/qemu/100/clone", url.Values{"newid": {"101"}, "name": {"web 2"}}); err != nil {
		t.Fatalf("post: %v", err)
	}

	get := pve.requests[1]
	if get.Path != "/nodes/pve1/tasks?limit=5" || get.Body != nil {
		t.Fatalf("unexpected GET %+v", get)
	}
	post := pve.requests[2]
	if post.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", post.Header.Get("Content-Type"))
	}
	form, _ := url.ParseQuery(string(post.Body))
	if form.Get("newid") != "101" || form.Get("name") != "web 2" {
		t.Fatalf("unexpected form %v", form)
	}
	if post.Header.Get("CSRFPreventionToken") != "4F2A:csrf" {
		t.Fatal("ticket requests must carry the CSRF token")
	}
}

func TestClientOverHTTPS(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/api2/json/access/ticket":
			_ = r.ParseForm()
			if r.PostForm.Get("username") != "root@pam" || r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(testTicketBody))
		case "/api2/json/version":
			cookie, err := r.Cookie("PVEAuthCookie")
			if err != nil || cookie.Value != "PVE:root@pam:4F2A" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"version":"8.2.4","release":"8.2"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tr := transport.NewHTTPWithClient(srv.URL+transport.APIPrefix, srv.Client())
	c := buildClient(t, fastConfig(), tr)

	data, err := c.Get(context.Background(), "/version", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(string(data), `"8.2.4"`) {
		t.Fatalf("unexpected data %s", data)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "POST /api2/json/access/ticket" {
		t.Fatalf("unexpected call sequence %v", seen)
	}
}

func TestClientSharedRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := fastConfig()
	cfg.RateLimit.MaxRequests = 3
	cfg.RateLimit.Window = time.Hour
	cfg.RateLimit.RedisKey = "cluster-a"

	build := func() *Client {
		c, err := New().WithConfig(cfg).WithTransport(newFakePVE()).WithRedis(rdb).Build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		t.Cleanup(c.Close)
		return c
	}
	a, b := build(), build()
	ctx := context.Background()

	for _, c := range []*Client{a, b, a} {
		if _, err := c.Get(ctx, "/version", nil); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if _, err := b.Get(ctx, "/version", nil); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected shared budget exhausted, got %v", err)
	}
}

func TestClientAsyncAuditSink(t *testing.T) {
	cfg := fastConfig()
	cfg.Audit.Async = true
	cfg.Audit.BufferSize = 8
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(8)
	c, err := New().WithConfig(cfg).WithTransport(newFakePVE()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Get(context.Background(), "/nodes", nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	c.Close()

	select {
	case e := <-sink.Entries():
		if e.Resource != "/nodes" || e.Result != AuditSuccess {
			t.Fatalf("unexpected entry %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("sink never received the entry")
	}
	if c.AuditDropped() != 0 {
		t.Fatalf("expected no drops, got %d", c.AuditDropped())
	}
	if _, err := c.Get(context.Background(), "/nodes", nil); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Host = ""
	if _, err := New().WithConfig(cfg).Build(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}

	b := New().WithConfig(validConfig()).WithTransport(newFakePVE())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}
