package flows

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/pveauth/internal/audit"
	"github.com/MrEthical07/pveauth/transport"
)

var (
	errTestRateLimited  = errors.New("rate limited")
	errTestExhausted    = errors.New("retries exhausted")
	errTestAuthRejected = errors.New("authentication failed")
)

type testHTTPError struct{ status int }

func (e *testHTTPError) Error() string { return fmt.Sprintf("status %d", e.status) }

type testExhausted struct{ retries int }

func (e *testExhausted) Error() string { return fmt.Sprintf("exhausted after %d", e.retries) }
func (e *testExhausted) Unwrap() error { return errTestExhausted }

type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (l *fakeLimiter) Allow(context.Context) (bool, error) {
	l.calls++
	return l.allow, l.err
}

type fakeSession struct {
	authenticated bool
	authCalls     int
	invalidations int
	authErr       error
}

func (s *fakeSession) IsAuthenticated() bool { return s.authenticated }

func (s *fakeSession) Authenticate(context.Context) error {
	s.authCalls++
	if s.authErr != nil {
		return s.authErr
	}
	s.authenticated = true
	return nil
}

func (s *fakeSession) Invalidate() {
	s.invalidations++
	s.authenticated = false
}

func (s *fakeSession) Decorate(req *transport.Request) {
	if s.authenticated {
		req.Header.Set("Authorization", "PVEAPIToken=test")
	}
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *memAudit) Append(_ context.Context, e audit.Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

func (a *memAudit) results() (success, failure int) {
	for _, e := range a.entries {
		if e.Succeeded() {
			success++
		} else {
			failure++
		}
	}
	return
}

func scripted(t *testing.T, statuses ...int) (transport.Transport, *int) {
	t.Helper()
	sent := 0
	return transport.Func(func(_ context.Context, req *transport.Request) (*transport.Response, error) {
		if req.Header.Get("Authorization") == "" {
			t.Errorf("request %d sent undecorated", sent)
		}
		status := statuses[len(statuses)-1]
		if sent < len(statuses) {
			status = statuses[sent]
		}
		sent++
		body := `{"data":{"ok":true}}`
		if status != http.StatusOK {
			body = `{"data":null,"message":"denied"}`
		}
		return &transport.Response{StatusCode: status, Status: http.StatusText(status), Body: []byte(body)}, nil
	}), &sent
}

type harness struct {
	limiter *fakeLimiter
	session *fakeSession
	audit   *memAudit
	waits   []time.Duration
}

func newHarness() *harness {
	return &harness{
		limiter: &fakeLimiter{allow: true},
		session: &fakeSession{},
		audit:   &memAudit{},
	}
}

func (h *harness) deps(tr transport.Transport) DispatchDeps {
	return DispatchDeps{
		Limiter:     h.limiter,
		Session:     h.session,
		Transport:   tr,
		Audit:       h.audit,
		User:        "root@pam",
		MaxRetries:  3,
		BackoffStep: time.Second,
		NewID:       func() string { return "id" },
		Sleep: func(_ context.Context, d time.Duration) error {
			h.waits = append(h.waits, d)
			return nil
		},
		RateLimitExceeded: errTestRateLimited,
		NewHTTPError: func(status int, _, _ string) error {
			return &testHTTPError{status: status}
		},
		NewRetryExhausted: func(retries int) error {
			return &testExhausted{retries: retries}
		},
	}
}

func TestDispatchSuccessReturnsData(t *testing.T) {
	h := newHarness()
	tr, sent := scripted(t, http.StatusOK)

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Data) != `{"ok":true}` {
		t.Fatalf("unexpected data %s", res.Data)
	}
	if *sent != 1 || h.session.authCalls != 1 {
		t.Fatalf("expected one send and one auth, got %d/%d", *sent, h.session.authCalls)
	}
	if len(h.audit.entries) != 1 || !h.audit.entries[0].Succeeded() {
		t.Fatalf("expected one success entry, got %+v", h.audit.entries)
	}
	e := h.audit.entries[0]
	if e.Operation != http.MethodGet || e.Resource != "/nodes" || e.User != "root@pam" {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestDispatchRecoversAfterTwoRejections(t *testing.T) {
	h := newHarness()
	tr, sent := scripted(t, http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK)
	deps := h.deps(tr)
	var observed []DispatchResult
	deps.Observe = func(res DispatchResult, _ time.Duration) { observed = append(observed, res) }

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), deps)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Retries != 0 {
		t.Fatalf("expected retry counter reset to 0, got %d", res.Retries)
	}
	if res.Reauths != 2 {
		t.Fatalf("expected 2 re-authentications, got %d", res.Reauths)
	}
	if len(observed) != 1 || observed[0].Failure != DispatchFailureNone || observed[0].Reauths != 2 {
		t.Fatalf("expected one observed success with 2 re-authentications, got %+v", observed)
	}
	if *sent != 3 {
		t.Fatalf("expected 3 sends, got %d", *sent)
	}
	if len(h.audit.entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(h.audit.entries))
	}
	if s, f := h.audit.results(); s != 1 || f != 2 {
		t.Fatalf("expected 1 success/2 failure, got %d/%d", s, f)
	}
	if h.audit.entries[2].Result != audit.ResultSuccess {
		t.Fatal("last entry must be the success")
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(h.waits) != len(want) || h.waits[0] != want[0] || h.waits[1] != want[1] {
		t.Fatalf("expected linear waits %v, got %v", want, h.waits)
	}
	if h.session.invalidations != 2 {
		t.Fatalf("expected 2 invalidations, got %d", h.session.invalidations)
	}
}

func TestDispatchAlwaysUnauthorizedExhaustsRetries(t *testing.T) {
	h := newHarness()
	h.session.authenticated = true
	tr, sent := scripted(t, http.StatusUnauthorized)

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))

	var exhausted *testExhausted
	if !errors.As(res.Err, &exhausted) || exhausted.retries != 3 {
		t.Fatalf("expected retries exhausted after 3, got %v", res.Err)
	}
	if !errors.Is(res.Err, errTestExhausted) {
		t.Fatal("expected sentinel match")
	}
	if res.Failure != DispatchFailureRetryExhausted || res.Retries != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.session.authCalls != 3 {
		t.Fatalf("expected exactly 3 re-authentications, got %d", h.session.authCalls)
	}
	if *sent != 4 || len(h.audit.entries) != 4 {
		t.Fatalf("expected 4 attempts audited, got sends=%d entries=%d", *sent, len(h.audit.entries))
	}
	if s, _ := h.audit.results(); s != 0 {
		t.Fatalf("expected no success entries, got %d", s)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	for i, w := range want {
		if h.waits[i] != w {
			t.Fatalf("wait %d: expected %v, got %v", i, w, h.waits[i])
		}
	}
}

func TestDispatchZeroRetriesFailsImmediately(t *testing.T) {
	h := newHarness()
	tr, _ := scripted(t, http.StatusUnauthorized)
	deps := h.deps(tr)
	deps.MaxRetries = 0

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), deps)
	if !errors.Is(res.Err, errTestExhausted) {
		t.Fatalf("expected exhausted, got %v", res.Err)
	}
	if len(h.waits) != 0 || h.session.authCalls != 1 {
		t.Fatalf("expected no retry, got waits=%v auth=%d", h.waits, h.session.authCalls)
	}
}

func TestDispatchNonUnauthorizedIsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		h := newHarness()
		tr, sent := scripted(t, status)

		res := RunDispatch(context.Background(), transport.NewRequest(http.MethodPost, "/nodes/pve/qemu/100/status/start", nil), h.deps(tr))
		var httpErr *testHTTPError
		if !errors.As(res.Err, &httpErr) || httpErr.status != status {
			t.Fatalf("status %d: expected http error, got %v", status, res.Err)
		}
		if *sent != 1 || len(h.waits) != 0 || h.session.invalidations != 0 {
			t.Fatalf("status %d: must not retry", status)
		}
		if len(h.audit.entries) != 1 || h.audit.entries[0].Succeeded() {
			t.Fatalf("status %d: expected one failure entry", status)
		}
	}
}

func TestDispatchRateLimitedAuditsAndSkipsSend(t *testing.T) {
	h := newHarness()
	h.limiter.allow = false
	tr := transport.Func(func(context.Context, *transport.Request) (*transport.Response, error) {
		t.Fatal("rate limited request must not be sent")
		return nil, nil
	})

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if !errors.Is(res.Err, errTestRateLimited) || res.Failure != DispatchFailureRateLimited {
		t.Fatalf("expected rate limit failure, got %+v", res)
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].Succeeded() {
		t.Fatalf("expected one failure entry, got %+v", h.audit.entries)
	}
	if h.session.authCalls != 0 {
		t.Fatal("rate limited dispatch must not authenticate")
	}
}

func TestDispatchLimiterErrorFailsClosed(t *testing.T) {
	h := newHarness()
	backendErr := errors.New("redis down")
	h.limiter.err = backendErr
	tr, sent := scripted(t, http.StatusOK)

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if !errors.Is(res.Err, errTestRateLimited) || !errors.Is(res.Err, backendErr) {
		t.Fatalf("expected wrapped limiter failure, got %v", res.Err)
	}
	if *sent != 0 {
		t.Fatal("limiter failure must not send")
	}
}

func TestDispatchAuthenticationFailureAudited(t *testing.T) {
	h := newHarness()
	h.session.authErr = errTestAuthRejected
	tr, sent := scripted(t, http.StatusOK)

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if !errors.Is(res.Err, errTestAuthRejected) || res.Failure != DispatchFailureAuthentication {
		t.Fatalf("expected authentication failure, got %+v", res)
	}
	if *sent != 0 {
		t.Fatal("unauthenticated request must not be sent")
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].Operation != OperationAuthenticate {
		t.Fatalf("expected authenticate failure entry, got %+v", h.audit.entries)
	}
}

func TestDispatchTransportErrorNotRetried(t *testing.T) {
	h := newHarness()
	tr := transport.Func(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, errors.New("connection refused")
	})

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if !errors.Is(res.Err, transport.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", res.Err)
	}
	if len(h.waits) != 0 || len(h.audit.entries) != 1 {
		t.Fatalf("expected single audited attempt, got waits=%v entries=%d", h.waits, len(h.audit.entries))
	}
}

func TestDispatchNilResponseIsTransportFailure(t *testing.T) {
	h := newHarness()
	tr := transport.Func(func(context.Context, *transport.Request) (*transport.Response, error) {
		return nil, nil
	})

	res := RunDispatch(context.Background(), transport.NewRequest(http.MethodGet, "/nodes", nil), h.deps(tr))
	if !errors.Is(res.Err, transport.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", res.Err)
	}
	if res.Failure != DispatchFailureTransport {
		t.Fatalf("expected transport failure kind, got %v", res.Failure)
	}
	if _, failure := h.audit.results(); failure != 1 || len(h.audit.entries) != 1 {
		t.Fatalf("expected one failure entry, got %+v", h.audit.entries)
	}
}

func TestDispatchCanceledDuringBackoff(t *testing.T) {
	h := newHarness()
	tr, sent := scripted(t, http.StatusUnauthorized)
	deps := h.deps(tr)
	deps.Sleep = SleepContext
	deps.BackoffStep = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := RunDispatch(ctx, transport.NewRequest(http.MethodGet, "/nodes", nil), deps)
	if !errors.Is(res.Err, context.Canceled) || res.Failure != DispatchFailureCanceled {
		t.Fatalf("expected cancellation, got %+v", res)
	}
	if *sent != 1 {
		t.Fatalf("expected one send before cancel, got %d", *sent)
	}
}

func TestDispatchRequestNotMutated(t *testing.T) {
	h := newHarness()
	tr, _ := scripted(t, http.StatusOK)
	req := transport.NewRequest(http.MethodGet, "/nodes", nil)

	_ = RunDispatch(context.Background(), req, h.deps(tr))
	if req.Header.Get("Authorization") != "" {
		t.Fatal("caller request must not carry session material")
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &LinearBackOff{Step: 250 * time.Millisecond}
	for i := 1; i <= 4; i++ {
		if got := b.NextBackOff(); got != time.Duration(i)*250*time.Millisecond {
			t.Fatalf("step %d: got %v", i, got)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 250*time.Millisecond {
		t.Fatalf("after reset: got %v", got)
	}
}
