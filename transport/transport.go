package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrTransport marks network-level failures: DNS, TLS, connection, timeout, body read.
var ErrTransport = errors.New("transport failure")

// Request is one outbound API call. Path is relative to the API base
// (for example "/nodes" or "/access/ticket").
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// NewRequest returns a request with an initialized header map.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   body,
	}
}

// Clone returns a deep copy so decorations on one attempt never leak into the next.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Method: r.Method,
		Path:   r.Path,
		Header: r.Header.Clone(),
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// Response carries the status and raw body of one exchange.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends a single request.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
