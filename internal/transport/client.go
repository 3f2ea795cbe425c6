// Package transport sends probe requests and returns raw responses. Probe
// responses are data: HTTP status codes never surface as errors here, only
// connection and timeout failures do.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PentesterFlow/OpenProbe/internal/errors"
	"github.com/PentesterFlow/OpenProbe/internal/metrics"
	"github.com/PentesterFlow/OpenProbe/internal/param"
	"github.com/PentesterFlow/OpenProbe/internal/ratelimit"
)

// DefaultUserAgent identifies probe traffic.
const DefaultUserAgent = "OpenProbe/1.0"

// DefaultAccept is sent on every probe unless overridden.
const DefaultAccept = "application/json, text/plain, */*"

// ProbeRequest is a fully encoded outbound request.
type ProbeRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// Response is the raw result of one probe.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType returns the response content type header.
func (r *Response) ContentType() string {
	if r == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// ElapsedMS returns the request duration in milliseconds.
func (r *Response) ElapsedMS() int64 {
	if r == nil {
		return 0
	}
	return r.Duration.Milliseconds()
}

// Client sends probe requests.
type Client interface {
	Send(ctx context.Context, req *ProbeRequest) (*Response, error)
	Close()
}

// RateLimiter paces outbound probes.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// feedbackLimiter is implemented by adaptive limiters.
type feedbackLimiter interface {
	RecordSuccess()
	RecordError()
}

// Config holds configuration for the HTTP probe client.
type Config struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	MaxBodyBytes        int64
	UserAgent           string
	Headers             map[string]string
	Auth                param.Auth
	SkipTLSVerify       bool
	RequestsPerSecond   float64
	Burst               int
}

// DefaultConfig returns optimized defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		MaxBodyBytes:        5 * 1024 * 1024,
		UserAgent:           DefaultUserAgent,
		SkipTLSVerify:       true,
	}
}

// HTTPClient is the production probe client.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	auth      param.Auth
	maxBody   int64
	limiter   RateLimiter
	collector *metrics.Collector
	mu        sync.RWMutex
}

// New creates a new HTTP probe client.
func New(config Config) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 5 * 1024 * 1024
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	hc := &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: config.UserAgent,
		headers:   config.Headers,
		auth:      config.Auth,
		maxBody:   config.MaxBodyBytes,
	}

	if config.RequestsPerSecond > 0 {
		hc.limiter = ratelimit.NewLimiter(config.RequestsPerSecond, config.Burst)
	}

	return hc
}

// SetLimiter replaces the rate limiter.
func (hc *HTTPClient) SetLimiter(l RateLimiter) {
	hc.mu.Lock()
	hc.limiter = l
	hc.mu.Unlock()
}

// SetHeaders sets base headers applied to all probes.
func (hc *HTTPClient) SetHeaders(headers map[string]string) {
	hc.mu.Lock()
	hc.headers = headers
	hc.mu.Unlock()
}

// SetMetrics attaches a metrics collector.
func (hc *HTTPClient) SetMetrics(c *metrics.Collector) {
	hc.mu.Lock()
	hc.collector = c
	hc.mu.Unlock()
}

// Send performs one probe. It returns an error only when no HTTP response
// was obtained (connection failure, timeout, cancellation).
func (hc *HTTPClient) Send(ctx context.Context, req *ProbeRequest) (*Response, error) {
	hc.mu.RLock()
	limiter := hc.limiter
	collector := hc.collector
	hc.mu.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, errors.Categorize(err, req.URL)
		}
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, errors.NewProbeError(errors.Parse, req.URL, "request_creation", "failed to create request", err)
	}

	hc.applyHeaders(httpReq, req)

	start := time.Now()
	if collector != nil {
		collector.RecordRequest()
	}

	resp, err := hc.client.Do(httpReq)
	if err != nil {
		probeErr := errors.Categorize(err, req.URL)
		if collector != nil {
			collector.RecordError(probeErr.Type.String())
		}
		if fb, ok := limiter.(feedbackLimiter); ok {
			fb.RecordError()
		}
		return nil, probeErr
	}
	defer resp.Body.Close()

	// Read body with limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, hc.maxBody))
	if err != nil {
		probeErr := errors.NewNetworkError(req.URL, "body_read", err)
		if collector != nil {
			collector.RecordError(probeErr.Type.String())
		}
		return nil, probeErr
	}

	duration := time.Since(start)
	if collector != nil {
		collector.RecordStatusCode(resp.StatusCode)
		collector.RecordResponseTime(duration)
		collector.RecordBytes(int64(len(body)))
	}
	if fb, ok := limiter.(feedbackLimiter); ok {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			fb.RecordError()
		} else {
			fb.RecordSuccess()
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}

// applyHeaders layers default, base, auth, and per-probe headers.
func (hc *HTTPClient) applyHeaders(httpReq *http.Request, req *ProbeRequest) {
	httpReq.Header.Set("User-Agent", hc.userAgent)
	httpReq.Header.Set("Accept", DefaultAccept)

	hc.mu.RLock()
	for k, v := range hc.headers {
		httpReq.Header.Set(k, v)
	}
	auth := hc.auth
	hc.mu.RUnlock()

	switch auth.Type {
	case param.AuthBearer:
		if auth.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+auth.Token)
		}
	case param.AuthAPIKey:
		if auth.APIKey != "" {
			name := auth.HeaderName
			if name == "" {
				name = param.DefaultAPIKeyHeader
			}
			httpReq.Header.Set(name, auth.APIKey)
		}
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	} else if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		if looksLikeJSON(req.Body) {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	}
}

// looksLikeJSON is a cheap sniff for defaulting the content type.
func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// Close closes idle connections.
func (hc *HTTPClient) Close() {
	hc.client.CloseIdleConnections()
}
