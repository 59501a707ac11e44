// Package ratelimit is a small sliding-window rate limiter keyed by client,
// used on the login endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter allows at most max requests per key within window.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	max      int
}

// NewRateLimiter creates a limiter.
func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		max:      max,
	}
}

// Allow records a request for key and reports whether it is within the
// window limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	valid := rl.requests[key][:0]
	for _, at := range rl.requests[key] {
		if at.After(windowStart) {
			valid = append(valid, at)
		}
	}

	if len(valid) >= rl.max {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

// PruneIdle drops keys with no requests inside the window. Called from the
// owner's housekeeping loop so long-idle clients do not pin memory.
func (rl *RateLimiter) PruneIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	for key, times := range rl.requests {
		idle := true
		for _, at := range times {
			if at.After(windowStart) {
				idle = false
				break
			}
		}
		if idle {
			delete(rl.requests, key)
		}
	}
}
