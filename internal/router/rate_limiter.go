package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter bounds document-update frequency per connection. Over-limit
// updates are dropped, not queued: the document is whole-state, so the next
// allowed update supersedes anything dropped.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-connection limiter with the given sustained
// rate (events/second) and burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether a connection may apply another update now.
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[connectionID]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[connectionID] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// Forget drops limiter state for a connection. Called on disconnect.
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, connectionID)
}

// Cleanup removes limiter state idle for longer than maxIdle. Run
// periodically so limiters for vanished connections do not accumulate.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for connectionID, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, connectionID)
		}
	}
}
