package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/PentesterFlow/OpenProbe/internal/errors"
)

// MockClient serves scripted responses and records every request it sees.
// Tests drive pipeline phases through it without a network.
type MockClient struct {
	mu       sync.Mutex
	handler  func(req *ProbeRequest) (*Response, error)
	requests []*ProbeRequest
	closed   bool
}

// NewMockClient creates a mock client backed by a handler function.
func NewMockClient(handler func(req *ProbeRequest) (*Response, error)) *MockClient {
	return &MockClient{handler: handler}
}

// Send records the request and delegates to the handler.
func (m *MockClient) Send(ctx context.Context, req *ProbeRequest) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Categorize(err, req.URL)
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return JSONResponse(http.StatusOK, `{}`), nil
	}
	return handler(req)
}

// Requests returns a copy of all recorded requests.
func (m *MockClient) Requests() []*ProbeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProbeRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests sent.
func (m *MockClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Close marks the client closed.
func (m *MockClient) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Closed reports whether Close was called.
func (m *MockClient) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// JSONResponse builds a JSON response for mock handlers.
func JSONResponse(status int, body string) *Response {
	return &Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
	}
}

// TextResponse builds a plain text response for mock handlers.
func TextResponse(status int, body string) *Response {
	return &Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte(body),
	}
}
