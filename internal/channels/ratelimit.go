package channels

import (
	"sync"
	"time"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to
	// prevent memory exhaustion from rotating callback sources.
	maxTrackedKeys = 4096

	// rateLimitWindow is the sliding window duration for rate counting.
	rateLimitWindow = 60 * time.Second

	// rateLimitMaxHits is the max callbacks per user within a window.
	// Button mashing past this is dropped silently.
	rateLimitMaxHits = 30
)

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// CallbackRateLimiter bounds per-user interaction-callback rates so a
// stuck client re-firing affordances cannot flood the approval handler.
// Safe for concurrent use.
type CallbackRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

// NewCallbackRateLimiter creates a bounded callback rate limiter.
func NewCallbackRateLimiter() *CallbackRateLimiter {
	return &CallbackRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

// Allow returns true if the key is within rate limits. Automatically
// prunes stale entries and enforces a hard cap on tracked keys.
func (r *CallbackRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if len(r.entries) >= maxTrackedKeys {
		for k, e := range r.entries {
			if now.Sub(e.windowStart) >= rateLimitWindow {
				delete(r.entries, k)
			}
		}
		for len(r.entries) >= maxTrackedKeys {
			for k := range r.entries {
				delete(r.entries, k)
				break
			}
		}
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= rateLimitWindow {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}

	e.count++
	return e.count <= rateLimitMaxHits
}
