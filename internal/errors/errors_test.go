package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Validation, "validation"},
		{Network, "network"},
		{Timeout, "timeout"},
		{RateLimit, "rate_limit"},
		{Auth, "auth"},
		{NotFound, "not_found"},
		{ServerError, "server_error"},
		{ClientError, "client_error"},
		{Parse, "parse"},
		{Budget, "budget"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsFatal(t *testing.T) {
	tests := []struct {
		errType ErrorType
		fatal   bool
	}{
		{Validation, true},
		{Network, false},
		{Timeout, false},
		{RateLimit, false},
		{Auth, false},
		{NotFound, false},
		{ServerError, false},
		{ClientError, false},
		{Parse, false},
		{Budget, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsFatal(); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

// =============================================================================
// ProbeError Tests
// =============================================================================

func TestProbeError_Error(t *testing.T) {
	err := NewProbeError(Network, "https://example.com", "probe", "connection failed", nil)

	errStr := err.Error()
	if errStr == "" {
		t.Error("Error() should not return empty string")
	}
	if !containsAll(errStr, "network", "probe", "https://example.com", "connection failed") {
		t.Errorf("Error() = %s, should contain relevant info", errStr)
	}
}

func TestProbeError_Error_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewProbeError(Network, "https://example.com", "probe", "connection failed", cause)

	errStr := err.Error()
	if !containsAll(errStr, "underlying error") {
		t.Errorf("Error() = %s, should contain cause", errStr)
	}
}

func TestProbeError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewProbeError(Network, "https://example.com", "probe", "failed", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}
}

func TestProbeError_Is(t *testing.T) {
	err1 := NewProbeError(Network, "https://example.com", "probe", "failed", nil)
	err2 := NewProbeError(Network, "https://other.com", "request", "timeout", nil)
	err3 := NewProbeError(Timeout, "https://example.com", "probe", "timeout", nil)

	if !errors.Is(err1, err2) {
		t.Error("Errors with same type should match")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different types should not match")
	}
}

// =============================================================================
// Error Constructor Tests
// =============================================================================

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("ftp://example.com", "unsupported scheme", nil)

	if err.Type != Validation {
		t.Errorf("Type = %v, want Validation", err.Type)
	}
	if !err.Fatal {
		t.Error("Validation errors should be fatal")
	}
}

func TestNewNetworkError(t *testing.T) {
	err := NewNetworkError("https://example.com", "connect", nil)

	if err.Type != Network {
		t.Errorf("Type = %v, want Network", err.Type)
	}
	if err.Fatal {
		t.Error("Network errors should not be fatal")
	}
}

func TestNewTimeoutError(t *testing.T) {
	err := NewTimeoutError("https://example.com", "probe", nil)

	if err.Type != Timeout {
		t.Errorf("Type = %v, want Timeout", err.Type)
	}
	if err.Fatal {
		t.Error("Timeout errors should not be fatal")
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("https://example.com")

	if err.Type != RateLimit {
		t.Errorf("Type = %v, want RateLimit", err.Type)
	}
	if err.StatusCode != 429 {
		t.Errorf("StatusCode = %d, want 429", err.StatusCode)
	}
}

func TestNewAuthError(t *testing.T) {
	err := NewAuthError("https://example.com", 401, "unauthorized")

	if err.Type != Auth {
		t.Errorf("Type = %v, want Auth", err.Type)
	}
	if err.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", err.StatusCode)
	}
	if err.Fatal {
		t.Error("Auth errors should not be fatal, the run degrades instead")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("https://example.com/missing")

	if err.Type != NotFound {
		t.Errorf("Type = %v, want NotFound", err.Type)
	}
	if err.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", err.StatusCode)
	}
}

func TestNewServerError(t *testing.T) {
	err := NewServerError("https://example.com", 503, "service unavailable")

	if err.Type != ServerError {
		t.Errorf("Type = %v, want ServerError", err.Type)
	}
	if err.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", err.StatusCode)
	}
}

func TestNewClientError(t *testing.T) {
	err := NewClientError("https://example.com", 400, "bad request")

	if err.Type != ClientError {
		t.Errorf("Type = %v, want ClientError", err.Type)
	}
}

func TestNewParseError(t *testing.T) {
	err := NewParseError("https://example.com", "json_parse", nil)

	if err.Type != Parse {
		t.Errorf("Type = %v, want Parse", err.Type)
	}
}

func TestNewBudgetError(t *testing.T) {
	err := NewBudgetError("https://example.com", "differential")

	if err.Type != Budget {
		t.Errorf("Type = %v, want Budget", err.Type)
	}
	if err.Fatal {
		t.Error("Budget errors should not be fatal")
	}
}

func TestNewCancelledError(t *testing.T) {
	err := NewCancelledError("https://example.com", "probe")

	if err.Type != Cancelled {
		t.Errorf("Type = %v, want Cancelled", err.Type)
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize_ProbeError(t *testing.T) {
	original := NewNetworkError("https://example.com", "probe", nil)
	categorized := Categorize(original, "https://example.com")

	if categorized != original {
		t.Error("Should return same ProbeError")
	}
}

func TestCategorize_Nil(t *testing.T) {
	categorized := Categorize(nil, "https://example.com")

	if categorized != nil {
		t.Error("Should return nil for nil error")
	}
}

func TestCategorize_ContextCanceled(t *testing.T) {
	categorized := Categorize(context.Canceled, "https://example.com")

	if categorized.Type != Cancelled {
		t.Errorf("Type = %v, want Cancelled", categorized.Type)
	}
}

func TestCategorize_DeadlineExceeded(t *testing.T) {
	categorized := Categorize(context.DeadlineExceeded, "https://example.com")

	if categorized.Type != Timeout {
		t.Errorf("Type = %v, want Timeout", categorized.Type)
	}
}

func TestCategorize_WrappedContextError(t *testing.T) {
	wrapped := fmt.Errorf("probe failed: %w", context.Canceled)
	categorized := Categorize(wrapped, "https://example.com")

	if categorized.Type != Cancelled {
		t.Errorf("Type = %v, want Cancelled", categorized.Type)
	}
}

func TestCategorize_NetError(t *testing.T) {
	categorized := Categorize(&net.OpError{Op: "dial", Err: errors.New("refused")}, "https://example.com")

	if categorized.Type != Network {
		t.Errorf("Type = %v, want Network", categorized.Type)
	}
}

func TestCategorize_NetTimeout(t *testing.T) {
	categorized := Categorize(&mockNetError{timeout: true}, "https://example.com")

	if categorized.Type != Timeout {
		t.Errorf("Type = %v, want Timeout", categorized.Type)
	}
}

func TestCategorize_Unknown(t *testing.T) {
	err := errors.New("some random error")
	categorized := Categorize(err, "https://example.com")

	if categorized.Type != Unknown {
		t.Errorf("Type = %v, want Unknown", categorized.Type)
	}
}

// =============================================================================
// CategorizeHTTPStatus Tests
// =============================================================================

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType ErrorType
		wantNil  bool
	}{
		{200, Unknown, true},
		{201, Unknown, true},
		{301, Unknown, true},
		{401, Auth, false},
		{403, Auth, false},
		{404, NotFound, false},
		{429, RateLimit, false},
		{400, ClientError, false},
		{422, ClientError, false},
		{500, ServerError, false},
		{502, ServerError, false},
		{503, ServerError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			err := CategorizeHTTPStatus(tt.status, "https://example.com")
			if tt.wantNil {
				if err != nil {
					t.Errorf("CategorizeHTTPStatus(%d) should return nil", tt.status)
				}
				return
			}
			if err == nil {
				t.Errorf("CategorizeHTTPStatus(%d) should not return nil", tt.status)
				return
			}
			if err.Type != tt.wantType {
				t.Errorf("CategorizeHTTPStatus(%d).Type = %v, want %v", tt.status, err.Type, tt.wantType)
			}
		})
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"validation error", NewValidationError("url", "bad url", nil), true},
		{"network error", NewNetworkError("url", "op", nil), false},
		{"timeout error", NewTimeoutError("url", "op", nil), false},
		{"plain error", errors.New("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestIsPartial(t *testing.T) {
	if IsPartial(nil) {
		t.Error("IsPartial(nil) = true, want false")
	}
	if IsPartial(NewValidationError("url", "bad", nil)) {
		t.Error("Validation errors should not be partial")
	}
	if !IsPartial(NewNetworkError("url", "op", nil)) {
		t.Error("Network errors should be partial")
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", NewNetworkError("url", "op", nil), true},
		{"timeout", NewTimeoutError("url", "op", nil), true},
		{"server error", NewServerError("url", 500, "boom"), false},
		{"auth", NewAuthError("url", 401, "unauth"), false},
		{"raw op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Errorf("IsConnectionError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	authErr := NewAuthError("url", 401, "unauthorized")
	networkErr := NewNetworkError("url", "op", nil)

	if !IsAuthError(authErr) {
		t.Error("Should identify auth error")
	}
	if IsAuthError(networkErr) {
		t.Error("Should not identify network error as auth error")
	}
	if IsAuthError(nil) {
		t.Error("Should return false for nil")
	}
}

func TestGetStatusCode(t *testing.T) {
	err := NewServerError("url", 503, "unavailable")

	if code := GetStatusCode(err); code != 503 {
		t.Errorf("GetStatusCode() = %d, want 503", code)
	}
	if code := GetStatusCode(nil); code != 0 {
		t.Errorf("GetStatusCode(nil) = %d, want 0", code)
	}
}

func TestGetErrorType(t *testing.T) {
	err := NewTimeoutError("url", "op", nil)

	if errType := GetErrorType(err); errType != Timeout {
		t.Errorf("GetErrorType() = %v, want Timeout", errType)
	}
	if errType := GetErrorType(nil); errType != Unknown {
		t.Errorf("GetErrorType(nil) = %v, want Unknown", errType)
	}
}

// =============================================================================
// Breaker Tests
// =============================================================================

func TestBreaker_InitialState(t *testing.T) {
	b := NewBreaker(5)

	if !b.Allow() {
		t.Error("New breaker should allow probes")
	}
	if b.Tripped() {
		t.Error("New breaker should not be tripped")
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b := NewBreaker(3)

	b.RecordFailure()
	b.RecordFailure()
	if b.Tripped() {
		t.Error("Breaker tripped before threshold")
	}

	b.RecordFailure()
	if !b.Tripped() {
		t.Error("Breaker should trip at threshold")
	}
	if b.Allow() {
		t.Error("Tripped breaker should not allow probes")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.Tripped() {
		t.Error("Non-consecutive failures should not trip the breaker")
	}
	if got := b.ConsecutiveFailures(); got != 2 {
		t.Errorf("ConsecutiveFailures() = %d, want 2", got)
	}
}

func TestBreaker_StaysTripped(t *testing.T) {
	b := NewBreaker(1)

	b.RecordFailure()
	b.RecordSuccess()

	if !b.Tripped() {
		t.Error("Breaker should stay tripped for the rest of the run")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(1)

	b.RecordFailure()
	b.Reset()

	if b.Tripped() {
		t.Error("Reset breaker should not be tripped")
	}
	if !b.Allow() {
		t.Error("Reset breaker should allow probes")
	}
}

func TestBreaker_DefaultThreshold(t *testing.T) {
	b := NewBreaker(0)

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		b.RecordFailure()
	}
	if b.Tripped() {
		t.Error("Breaker tripped before default threshold")
	}
	b.RecordFailure()
	if !b.Tripped() {
		t.Error("Breaker should trip at default threshold")
	}
}

func TestBreaker_RecordFailureReportsTripOnce(t *testing.T) {
	b := NewBreaker(2)

	if b.RecordFailure() {
		t.Error("RecordFailure() = true before threshold")
	}
	if !b.RecordFailure() {
		t.Error("RecordFailure() = false on the tripping failure")
	}
	if b.RecordFailure() {
		t.Error("RecordFailure() = true after the breaker already tripped")
	}
}

// Helper function
func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsAt(s, substr))
}

func containsAt(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Mock net.Error for testing
type mockNetError struct {
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return "mock net error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

var _ net.Error = (*mockNetError)(nil)
