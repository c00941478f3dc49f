package transport

import (
	"sync"
	"time"
)

// rateLimiter is a per-connection sliding-window message limiter,
// adapted from internal/server/middleware.go's RateLimiter (trimmed to
// the single Allow/Remove operations transport needs — lobby/session
// abuse prevention was never part of the original client_adapter.rs,
// but the teacher's ambient abuse-prevention layer is worth keeping
// regardless of what the raw frame turns out to contain).
type rateLimiter struct {
	maxRequests int
	window      time.Duration

	mu       sync.Mutex
	requests map[string][]time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

func (r *rateLimiter) allow(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	kept := r.requests[connID][:0]
	for _, ts := range r.requests[connID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= r.maxRequests {
		r.requests[connID] = kept
		return false
	}
	r.requests[connID] = append(kept, now)
	return true
}

func (r *rateLimiter) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, connID)
}
