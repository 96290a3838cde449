package pveauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/MrEthical07/pveauth/session"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSecurityInvariantSecretsNeverLoggedOrAudited(t *testing.T) {
	const password = "pw-Zq81-never-log"
	var out lockedBuffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &out, Level: hclog.Trace})

	cfg := fastConfig()
	cfg.Password = password
	pve := newFakePVE(http.StatusUnauthorized, http.StatusOK)

	var sinkOut lockedBuffer
	c, err := New().
		WithConfig(cfg).
		WithTransport(pve).
		WithLogger(logger).
		WithAuditSink(NewLoggerSink(logger.Named("audit"))).
		WithAuditSink(NewJSONWriterSink(&sinkOut)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.Get(context.Background(), "/nodes", nil); err != nil {
		t.Fatalf("get: %v", err)
	}

	audit, _ := json.Marshal(c.AuditLogs(0))
	for name, text := range map[string]string{"log": out.String(), "audit": string(audit), "sink": sinkOut.String()} {
		if strings.Contains(text, password) {
			t.Fatalf("password leaked into %s output", name)
		}
		if strings.Contains(text, "PVE:root@pam:4F2A") || strings.Contains(text, "4F2A:csrf") {
			t.Fatalf("ticket or CSRF token leaked into %s output", name)
		}
	}
}

func TestSecurityInvariantTicketOnlyOnAPIRequests(t *testing.T) {
	pve := newFakePVE()
	c := buildClient(t, fastConfig(), pve)

	if _, err := c.Post(context.Background(), "/nodes/pve1/status", nil); err != nil {
		t.Fatalf("post: %v", err)
	}

	exchange, api := pve.requests[0], pve.requests[1]
	if exchange.Path != session.TicketPath || exchange.Header.Get("Cookie") != "" || exchange.Header.Get(session.CSRFHeader) != "" {
		t.Fatalf("ticket exchange must not carry session material: %+v", exchange.Header)
	}
	if api.Header.Get("Cookie") != session.CookieName+"=PVE:root@pam:4F2A" {
		t.Fatalf("unexpected cookie %q", api.Header.Get("Cookie"))
	}
	if api.Header.Get(session.CSRFHeader) != "4F2A:csrf" {
		t.Fatalf("write request missing CSRF token: %+v", api.Header)
	}
}

func TestSecurityInvariantRejectedTicketReplacedBeforeRetry(t *testing.T) {
	pve := newFakePVE(http.StatusUnauthorized, http.StatusOK)
	c := buildClient(t, fastConfig(), pve)

	if _, err := c.Get(context.Background(), "/nodes", nil); err != nil {
		t.Fatalf("get: %v", err)
	}

	var order []string
	for _, r := range pve.requests {
		if r.Path == session.TicketPath {
			order = append(order, "exchange")
		} else {
			order = append(order, "send")
		}
	}
	if got := strings.Join(order, ","); got != "exchange,send,exchange,send" {
		t.Fatalf("expected a fresh exchange between rejected send and retry, got %s", got)
	}
}

func TestSecurityInvariantBoundedAttempts(t *testing.T) {
	for _, retries := range []int{0, 1, 5} {
		cfg := fastConfig()
		cfg.Retry.MaxRetries = retries
		pve := newFakePVE(http.StatusUnauthorized)
		c := buildClient(t, cfg, pve)

		if _, err := c.Get(context.Background(), "/nodes", nil); err == nil {
			t.Fatalf("retries=%d: expected failure", retries)
		}
		if _, api := pve.counts(); api != retries+1 {
			t.Fatalf("retries=%d: expected %d sends, got %d", retries, retries+1, api)
		}
	}
}
