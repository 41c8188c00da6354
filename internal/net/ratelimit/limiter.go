// Package ratelimit provides token-bucket limiting for exchange API
// traffic. Binance meters REST usage in request weights per minute and
// order submissions separately, so the limiter keeps one bucket per
// scope and lets callers reserve multi-token weights.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Scope names one metered budget.
type Scope string

const (
	// ScopeRequest covers general REST request weight.
	ScopeRequest Scope = "request"

	// ScopeOrder covers order placement.
	ScopeOrder Scope = "order"
)

// Limiter hands out tokens per scope using token buckets.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[Scope]*rate.Limiter
	rps     float64
	burst   int
}

// NewLimiter creates a limiter where every scope refills at rps tokens
// per second with the given burst capacity.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[Scope]*rate.Limiter),
		rps:     rps,
		burst:   burst,
	}
}

func (l *Limiter) bucket(scope Scope) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[scope]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[scope]; ok {
		return b
	}
	b = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.buckets[scope] = b
	return b
}

// Wait blocks until one token is available in the scope or ctx is done.
func (l *Limiter) Wait(ctx context.Context, scope Scope) error {
	return l.bucket(scope).Wait(ctx)
}

// WaitN blocks until weight tokens are available in the scope. Weights
// above the burst capacity can never succeed and fail immediately.
func (l *Limiter) WaitN(ctx context.Context, scope Scope, weight int) error {
	if weight > l.burst {
		return fmt.Errorf("ratelimit: weight %d exceeds burst %d", weight, l.burst)
	}
	return l.bucket(scope).WaitN(ctx, weight)
}

// Allow reports whether one token is immediately available without
// consuming wait time.
func (l *Limiter) Allow(scope Scope) bool {
	return l.bucket(scope).Allow()
}

// SetRate updates the refill rate of every existing bucket and of buckets
// created later.
func (l *Limiter) SetRate(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	for _, b := range l.buckets {
		b.SetLimit(rate.Limit(rps))
	}
}
