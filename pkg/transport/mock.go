package transport

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ideaspaper/reqkit/internal/httputil"
)

// ResponderFunc produces the mock's answer for one request.
type ResponderFunc func(ctx context.Context, req *Request) (*Response, error)

// Mock is an in-memory Transport for tests. It records every request it
// receives and answers through Responder.
type Mock struct {
	mu sync.Mutex

	// Responder answers each request. When nil, Response and Error are returned.
	Responder ResponderFunc

	// Response is returned when Responder is nil.
	Response *Response

	// Error is returned when Responder is nil.
	Error error

	// Requests records all requests sent to this mock.
	Requests []*Request

	name string
}

var _ Transport = (*Mock)(nil)

// NewMock creates a Mock named "mock".
func NewMock(responder ResponderFunc) *Mock {
	return &Mock{Responder: responder, name: "mock"}
}

// Named returns the mock under a different name, for Manager tests.
func (m *Mock) Named(name string) *Mock {
	m.name = name
	return m
}

func (m *Mock) Name() string { return m.name }

// Send records req and returns the configured answer. The lock is released
// before the responder runs so it may block on ctx.
func (m *Mock) Send(ctx context.Context, req *Request) (*Response, error) {
	recorded := &Request{
		Method: req.Method,
		URL:    cloneURL(req.URL),
		Header: req.Header.Clone(),
		Body:   append([]byte(nil), req.Body...),
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, recorded)
	responder, resp, err := m.Responder, m.Response, m.Error
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if responder != nil {
		return responder(ctx, recorded)
	}
	return resp, err
}

// RequestCount returns the number of requests recorded.
func (m *Mock) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, or nil if none recorded.
func (m *Mock) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// Reset clears recorded requests.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
}

// NewResponse builds a Response with a string body. headers are name/value pairs.
func NewResponse(status int, body string, headers ...string) *Response {
	return &Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Proto:      "HTTP/1.1",
		Header:     httputil.NewHeader(headers...),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
