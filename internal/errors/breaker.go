package errors

import (
	"sync"
)

// DefaultFailureThreshold is the number of consecutive connection failures
// after which probing short-circuits.
const DefaultFailureThreshold = 5

// Breaker trips after a run of consecutive connection failures and stays
// tripped for the rest of the run. It is count-based only: no timers, so
// identical failure sequences always produce identical trip points.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	tripped     bool
}

// NewBreaker creates a breaker that trips after threshold consecutive
// failures. Values below 1 fall back to DefaultFailureThreshold.
func NewBreaker(threshold int) *Breaker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}
	return &Breaker{threshold: threshold}
}

// Allow reports whether the next probe may be sent.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped
}

// RecordSuccess resets the consecutive failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// RecordFailure counts a connection failure and trips the breaker once the
// threshold is reached. It reports true on the call that tripped it.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if !b.tripped && b.consecutive >= b.threshold {
		b.tripped = true
		return true
	}
	return false
}

// Tripped reports whether the breaker has tripped.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

// Reset clears the breaker back to its initial state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.tripped = false
}
