package utils

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	// Allowed indicates whether the request is allowed
	Allowed bool

	// Limit is the maximum number of requests allowed in the window
	Limit int

	// Remaining is the number of requests remaining in the current window
	Remaining int

	// RetryAfter is the time after which the client should retry (if rate limited)
	RetryAfter time.Duration
}

// RateLimiter provides a simple in-memory sliding window rate limiter.
type RateLimiter struct {
	// requests maps keys to the times of requests made in the window
	requests map[string][]time.Time

	// window defines the time period for limiting
	window time.Duration

	// limit is the maximum number of requests allowed in the window
	limit int

	// mu synchronizes access to the requests map
	mu sync.Mutex

	now func() time.Time
}

// NewRateLimiter creates a new rate limiter with the specified window and limit.
func NewRateLimiter(window time.Duration, limit int) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		limit:    limit,
		now:      time.Now,
	}
}

// Allow checks if a request with the given key is allowed and records it
// when it is.
func (rl *RateLimiter) Allow(key string) bool {
	res, _ := rl.Check(context.Background(), key)
	return res.Allowed
}

// Check records a request for key and reports whether it is within the limit.
func (rl *RateLimiter) Check(_ context.Context, key string) (*LimitResult, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.prune(key, now)

	result := &LimitResult{Limit: rl.limit}
	if len(valid) >= rl.limit {
		result.RetryAfter = valid[0].Add(rl.window).Sub(now)
		return result, nil
	}

	rl.requests[key] = append(valid, now)
	result.Allowed = true
	result.Remaining = rl.limit - len(valid) - 1
	return result, nil
}

// GetRemainingRequests returns the number of remaining requests for the given key.
func (rl *RateLimiter) GetRemainingRequests(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return max(rl.limit-len(rl.prune(key, rl.now())), 0)
}

// Reset forgets the requests of key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.requests, key)
}

// prune drops requests of key outside the window. Callers hold mu.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	requests := rl.requests[key]
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	valid := requests[i:]
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}

// CleanupLoop periodically cleans up expired entries.
// It should be started in a goroutine.
func (rl *RateLimiter) CleanupLoop(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.requests {
		rl.prune(key, now)
	}
}

// DefaultKeyFunc keys requests by client IP.
func DefaultKeyFunc(r *http.Request) string {
	return "ip:" + GetRequestIP(r)
}

// RouteKeyFunc keys requests by client IP and path.
func RouteKeyFunc(r *http.Request) string {
	return "ip:" + GetRequestIP(r) + ":" + r.URL.Path
}
