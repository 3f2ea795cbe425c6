// Package errors provides error types and handling for the discovery pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Validation represents request validation errors (bad URL, method).
	Validation
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// RateLimit represents rate limiting (429) errors.
	RateLimit
	// Auth represents authentication/authorization errors (401, 403).
	Auth
	// NotFound represents 404 errors.
	NotFound
	// ServerError represents 5xx errors.
	ServerError
	// ClientError represents 4xx errors (except 401, 403, 404, 429).
	ClientError
	// Parse represents parsing errors (JSON, HTML).
	Parse
	// Budget represents time budget exhaustion within a phase.
	Budget
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Validation:
		return "validation"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case RateLimit:
		return "rate_limit"
	case Auth:
		return "auth"
	case NotFound:
		return "not_found"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Parse:
		return "parse"
	case Budget:
		return "budget"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatal returns whether errors of this type abort a discovery run.
// Only request validation failures do; everything else degrades the run
// to a partial result.
func (t ErrorType) IsFatal() bool {
	return t == Validation
}

// ProbeError represents a categorized discovery error.
type ProbeError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Fatal      bool
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *ProbeError) Is(target error) bool {
	t, ok := target.(*ProbeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewProbeError creates a new ProbeError.
func NewProbeError(errType ErrorType, url, operation, message string, cause error) *ProbeError {
	return &ProbeError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Fatal:     errType.IsFatal(),
	}
}

// NewValidationError creates a fatal request validation error.
func NewValidationError(url, message string, cause error) *ProbeError {
	return NewProbeError(Validation, url, "validate", message, cause)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Timeout, url, operation, "request timed out", cause)
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(url string) *ProbeError {
	err := NewProbeError(RateLimit, url, "probe", "rate limited by target", nil)
	err.StatusCode = 429
	return err
}

// NewAuthError creates an authentication error.
func NewAuthError(url string, statusCode int, message string) *ProbeError {
	err := NewProbeError(Auth, url, "probe", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(url string) *ProbeError {
	err := NewProbeError(NotFound, url, "probe", "endpoint not found", nil)
	err.StatusCode = 404
	return err
}

// NewServerError creates a server error.
func NewServerError(url string, statusCode int, message string) *ProbeError {
	err := NewProbeError(ServerError, url, "probe", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewClientError creates a client error.
func NewClientError(url string, statusCode int, message string) *ProbeError {
	err := NewProbeError(ClientError, url, "probe", message, nil)
	err.StatusCode = statusCode
	return err
}

// NewParseError creates a parse error.
func NewParseError(url, operation string, cause error) *ProbeError {
	return NewProbeError(Parse, url, operation, "parsing failed", cause)
}

// NewBudgetError creates a time budget exhaustion error.
func NewBudgetError(url, operation string) *ProbeError {
	return NewProbeError(Budget, url, operation, "time budget exhausted", nil)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ProbeError {
	return NewProbeError(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *ProbeError {
	if err == nil {
		return nil
	}

	// Already a ProbeError
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}

	// Check for context cancellation
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "probe")
	}

	// Check for timeout
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return NewTimeoutError(url, "probe", err)
	}

	// Check for network errors
	if isNetworkError(err) {
		return NewNetworkError(url, "probe", err)
	}

	// Default to unknown
	return NewProbeError(Unknown, url, "probe", err.Error(), err)
}

// CategorizeHTTPStatus creates an error from HTTP status code. Probe
// responses are data, not errors, so this is only used for reporting
// unproductive endpoints, never for control flow.
func CategorizeHTTPStatus(statusCode int, url string) *ProbeError {
	switch {
	case statusCode == 401:
		return NewAuthError(url, statusCode, "unauthorized")
	case statusCode == 403:
		return NewAuthError(url, statusCode, "forbidden")
	case statusCode == 404:
		return NewNotFoundError(url)
	case statusCode == 429:
		return NewRateLimitError(url)
	case statusCode >= 500:
		return NewServerError(url, statusCode, fmt.Sprintf("server returned %d", statusCode))
	case statusCode >= 400:
		return NewClientError(url, statusCode, fmt.Sprintf("client error %d", statusCode))
	default:
		return nil
	}
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	// Check for net.Error timeout
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Check error message
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// Check for specific network errors
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	// Check for syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Check error message
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp")
}

// IsFatal checks if an error aborts the discovery run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Fatal
	}
	return false
}

// IsPartial checks if an error degrades the run without aborting it.
func IsPartial(err error) bool {
	return err != nil && !IsFatal(err)
}

// IsConnectionError checks if an error means the probe never produced a
// response. These feed the consecutive-failure breaker.
func IsConnectionError(err error) bool {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type == Network || probeErr.Type == Timeout
	}
	return isTimeout(err) || isNetworkError(err)
}

// IsAuthError checks if an error is authentication-related.
func IsAuthError(err error) bool {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type == Auth
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr.Type
	}
	return Unknown
}
