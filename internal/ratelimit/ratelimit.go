// Package ratelimit provides per-category token buckets for throttling
// tool invocations. Each category (e.g. "browser", "mcp") gets its own
// bucket; consumption is checked before a call is dispatched, so a call
// that exceeds its budget fails immediately with a retry-after hint
// instead of queuing.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Status is a read-only snapshot of one category's bucket, suitable for
// introspection endpoints and logging.
type Status struct {
	Category string  `json:"category"`
	Tokens   float64 `json:"tokens"`
	Capacity int     `json:"capacity"`
}

// Limiter is a token bucket for a single category. Refill is lazy: the
// underlying limiter computes accrued tokens from elapsed wall-clock
// time on each observation, there is no background timer. Safe for
// concurrent use.
type Limiter struct {
	category string
	capacity int
	bucket   *rate.Limiter
}

// NewLimiter creates a bucket holding capacity tokens, refilled evenly
// over the window. A full bucket allows a burst of capacity calls.
func NewLimiter(category string, capacity int, window time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	refill := rate.Limit(float64(capacity) / window.Seconds())
	return &Limiter{
		category: category,
		capacity: capacity,
		bucket:   rate.NewLimiter(refill, capacity),
	}
}

// TryConsume deducts n tokens if at least n are available and reports
// whether it succeeded. A failed attempt does not change the bucket.
func (l *Limiter) TryConsume(n int) bool {
	return l.bucket.AllowN(time.Now(), n)
}

// TimeUntilAvailable returns zero when at least one token is available,
// otherwise the wait needed for one token to accrue. Never negative.
func (l *Limiter) TimeUntilAvailable() time.Duration {
	now := time.Now()
	r := l.bucket.ReserveN(now, 1)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	if d < 0 {
		return 0
	}
	return d
}

// Status returns the current token count and capacity.
func (l *Limiter) Status() Status {
	tokens := l.bucket.TokensAt(time.Now())
	if tokens < 0 {
		tokens = 0
	}
	if max := float64(l.capacity); tokens > max {
		tokens = max
	}
	return Status{
		Category: l.category,
		Tokens:   tokens,
		Capacity: l.capacity,
	}
}

// Registry holds the limiters for all known categories.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Add registers a category bucket. An existing bucket for the same
// category is replaced.
func (r *Registry) Add(category string, capacity int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[category] = NewLimiter(category, capacity, window)
}

// Get returns the limiter for a category, or an error if the category
// is unknown.
func (r *Registry) Get(category string) (*Limiter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[category]
	if !ok {
		return nil, fmt.Errorf("unknown rate limit category %q", category)
	}
	return l, nil
}

// Status returns snapshots for every registered category.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.limiters))
	for _, l := range r.limiters {
		out = append(out, l.Status())
	}
	return out
}
