// Package ratelimit provides probe rate limiting.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces probe requests against the target endpoint.
type Limiter struct {
	mu           sync.RWMutex
	limiter      *rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	minDelay     time.Duration
	lastRequest  time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until a request is allowed or context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	// Enforce minimum spacing between probes when configured.
	l.mu.Lock()
	if l.minDelay > 0 {
		elapsed := time.Since(l.lastRequest)
		if !l.lastRequest.IsZero() && elapsed < l.minDelay {
			wait := l.minDelay - elapsed
			l.mu.Unlock()
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			l.mu.Lock()
		}
	}
	l.lastRequest = time.Now()
	l.mu.Unlock()

	return nil
}

// SetMinDelay sets the minimum delay between consecutive probes.
func (l *Limiter) SetMinDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minDelay = delay
}

// Allow checks if a request is allowed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Reserve reserves a token for later use.
func (l *Limiter) Reserve() *rate.Reservation {
	return l.limiter.Reserve()
}

// SetRate updates the rate limit.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	l.limiter.SetBurst(burst)
	l.mu.Lock()
	l.defaultRate = rate.Limit(requestsPerSecond)
	l.defaultBurst = burst
	l.mu.Unlock()
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		Rate:     float64(l.defaultRate),
		Burst:    l.defaultBurst,
		MinDelay: l.minDelay,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	Rate     float64       `json:"rate"`
	Burst    int           `json:"burst"`
	MinDelay time.Duration `json:"min_delay"`
}

// AdaptiveLimiter slows probing when the target pushes back with errors or
// 429s and speeds back up when responses are clean.
type AdaptiveLimiter struct {
	*Limiter
	mu           sync.Mutex
	minRate      float64
	maxRate      float64
	currentRate  float64
	errorCount   int
	successCount int
	windowSize   int
}

// NewAdaptiveLimiter creates a new adaptive rate limiter.
func NewAdaptiveLimiter(minRate, maxRate float64, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		Limiter:     NewLimiter(maxRate, burst),
		minRate:     minRate,
		maxRate:     maxRate,
		currentRate: maxRate,
		windowSize:  20,
	}
}

// RecordSuccess records a successful request.
func (a *AdaptiveLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successCount++
	a.checkAndAdjust()
}

// RecordError records a failed or rate-limited request.
func (a *AdaptiveLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errorCount++
	a.checkAndAdjust()
}

// checkAndAdjust adjusts the rate based on success/error ratio.
func (a *AdaptiveLimiter) checkAndAdjust() {
	total := a.successCount + a.errorCount
	if total < a.windowSize {
		return
	}

	errorRate := float64(a.errorCount) / float64(total)

	if errorRate > 0.1 {
		// Too many errors, slow down
		a.currentRate = a.currentRate * 0.8
		if a.currentRate < a.minRate {
			a.currentRate = a.minRate
		}
	} else if errorRate < 0.01 {
		// Very few errors, speed up
		a.currentRate = a.currentRate * 1.1
		if a.currentRate > a.maxRate {
			a.currentRate = a.maxRate
		}
	}

	a.SetRate(a.currentRate, a.defaultBurst)

	// Reset counters
	a.successCount = 0
	a.errorCount = 0
}

// CurrentRate returns the current rate.
func (a *AdaptiveLimiter) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
