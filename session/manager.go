package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/pveauth/transport"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

const (
	// TicketPath is the ticket exchange endpoint, relative to the API base.
	TicketPath = "/access/ticket"

	// CookieName carries the ticket on ticket-based requests.
	CookieName = "PVEAuthCookie"
	// CSRFHeader carries the CSRF prevention token on ticket-based requests.
	CSRFHeader = "CSRFPreventionToken"
	// AuthorizationHeader carries the API token on token-based requests.
	AuthorizationHeader = "Authorization"
)

var (
	// ErrAuthenticationFailed is returned when the credential exchange fails.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidAuthResponse is returned when the exchange succeeded but the body lacks
	// a ticket or CSRF token. It always arrives wrapped with ErrAuthenticationFailed.
	ErrInvalidAuthResponse = errors.New("invalid authentication response")
)

// State is the observable authentication state. Expiry is never predicted: an expired
// ticket looks Authenticated until a request is rejected and the session invalidated.
type State int32

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Hooks observe authentication outcomes. Nil fields are skipped.
type Hooks struct {
	OnAuthenticated func()
	OnFailure       func(err error)
	OnInvalidated   func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for authentication events.
func WithLogger(logger hclog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHooks installs outcome hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// Manager owns the session and runs the credential exchange. It is safe for concurrent
// use; concurrent Authenticate calls share one in-flight exchange.
type Manager struct {
	creds     Credentials
	transport transport.Transport
	logger    hclog.Logger
	hooks     Hooks

	mu         sync.RWMutex
	ticket     string
	csrfToken  string
	authHeader string

	inFlight atomic.Int32
	group    singleflight.Group
}

// NewManager creates an unauthenticated manager.
func NewManager(creds Credentials, tr transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		creds:     creds,
		transport: tr,
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Credentials returns the credential the manager authenticates with.
func (m *Manager) Credentials() Credentials {
	return m.creds
}

// Authenticate establishes a session. Token credentials synthesize the static header
// without network activity; password credentials exchange the password for a ticket.
//
// A session that is already held is kept. The shared exchange is not tied to any one
// caller's cancellation; a caller whose ctx ends stops waiting and gets its ctx error
// while the exchange completes for the others.
func (m *Manager) Authenticate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	flight := context.WithoutCancel(ctx)

	ch := m.group.DoChan("authenticate", func() (interface{}, error) {
		if m.IsAuthenticated() {
			return nil, nil
		}
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		return nil, m.authenticate(flight)
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Trace("joined in-flight authentication", "principal", m.creds.Principal())
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, ctx.Err())
	}
}

func (m *Manager) authenticate(ctx context.Context) error {
	switch c := m.creds.(type) {
	case TokenCredential:
		m.mu.Lock()
		m.authHeader = c.AuthorizationHeader()
		m.mu.Unlock()
		m.succeeded()
		return nil
	case PasswordCredential:
		ticket, csrf, err := m.exchange(ctx, c)
		if err != nil {
			m.failed(err)
			return err
		}
		m.mu.Lock()
		m.ticket = ticket
		m.csrfToken = csrf
		m.mu.Unlock()
		m.succeeded()
		return nil
	default:
		err := fmt.Errorf("%w: %w", ErrAuthenticationFailed, ErrInvalidCredentials)
		m.failed(err)
		return err
	}
}

type ticketResponse struct {
	Data *struct {
		Ticket              string `json:"ticket"`
		CSRFPreventionToken string `json:"CSRFPreventionToken"`
		Username            string `json:"username"`
	} `json:"data"`
}

func (m *Manager) exchange(ctx context.Context, c PasswordCredential) (string, string, error) {
	form := url.Values{}
	form.Set("username", c.Principal())
	form.Set("password", c.password)

	req := transport.NewRequest(http.MethodPost, TicketPath, []byte(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.transport.Send(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if resp == nil {
		return "", "", fmt.Errorf("%w: %w: nil response", ErrAuthenticationFailed, transport.ErrTransport)
	}
	if !resp.OK() {
		return "", "", fmt.Errorf("%w: ticket exchange returned status %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var body ticketResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", "", fmt.Errorf("%w: %w: %v", ErrAuthenticationFailed, ErrInvalidAuthResponse, err)
	}
	if body.Data == nil || body.Data.Ticket == "" || body.Data.CSRFPreventionToken == "" {
		return "", "", fmt.Errorf("%w: %w: missing ticket or CSRF token", ErrAuthenticationFailed, ErrInvalidAuthResponse)
	}
	return body.Data.Ticket, body.Data.CSRFPreventionToken, nil
}

// IsAuthenticated reports whether a token header or a complete ticket pair is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticatedLocked()
}

func (m *Manager) authenticatedLocked() bool {
	return m.authHeader != "" || (m.ticket != "" && m.csrfToken != "")
}

// State returns the current authentication state.
func (m *Manager) State() State {
	if m.IsAuthenticated() {
		return Authenticated
	}
	if m.inFlight.Load() > 0 {
		return Authenticating
	}
	return Unauthenticated
}

// Invalidate drops the ticket and CSRF token. A token header is kept: it cannot
// expire client-side.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	hadTicket := m.ticket != "" || m.csrfToken != ""
	m.ticket = ""
	m.csrfToken = ""
	m.mu.Unlock()

	if hadTicket {
		m.logger.Debug("session invalidated", "principal", m.creds.Principal())
		if m.hooks.OnInvalidated != nil {
			m.hooks.OnInvalidated()
		}
	}
}

// Decorate attaches the session material to req. It adds nothing when the manager is
// unauthenticated.
func (m *Manager) Decorate(req *transport.Request) {
	if req == nil {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ticket != "" && m.csrfToken != "" {
		req.Header.Set("Cookie", CookieName+"="+m.ticket)
		req.Header.Set(CSRFHeader, m.csrfToken)
	}
	if m.authHeader != "" {
		req.Header.Set(AuthorizationHeader, m.authHeader)
	}
}

func (m *Manager) succeeded() {
	m.logger.Debug("authenticated", "principal", m.creds.Principal(), "expiring", m.creds.Expiring())
	if m.hooks.OnAuthenticated != nil {
		m.hooks.OnAuthenticated()
	}
}

func (m *Manager) failed(err error) {
	m.logger.Warn("authentication failed", "principal", m.creds.Principal(), "error", err)
	if m.hooks.OnFailure != nil {
		m.hooks.OnFailure(err)
	}
}
