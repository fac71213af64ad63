package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// Limiter is a rate limit backend, in memory or Redis.
type Limiter interface {
	Check(ctx context.Context, key string) (*utils.LimitResult, error)
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// PrincipalKeyFunc keys authenticated requests by user and the rest by IP.
// It must run after the auth middleware.
func PrincipalKeyFunc(r *http.Request) string {
	if p := rpc.PrincipalFromContext(r.Context()); p != nil && p.UserID != "" {
		return "user:" + p.UserID
	}
	return utils.DefaultKeyFunc(r)
}

// RateLimitMiddleware rejects requests over the limit with a JSON-RPC
// rate limit error.
type RateLimitMiddleware struct {
	limiter Limiter
	keyFunc KeyFunc
	onLimit func(path string)
	logger  *utils.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. onLimit is
// called for every rejected request and may be nil.
func NewRateLimitMiddleware(limiter Limiter, keyFunc KeyFunc, onLimit func(path string), logger *utils.Logger) *RateLimitMiddleware {
	if keyFunc == nil {
		keyFunc = utils.DefaultKeyFunc
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		keyFunc: keyFunc,
		onLimit: onLimit,
		logger:  logger.Named("ratelimit_middleware"),
	}
}

// Limit is the middleware handler.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.keyFunc(r)
		result, err := m.limiter.Check(r.Context(), key)
		if err != nil {
			// Fail open on backend errors.
			m.logger.Error("Rate limit check failed", err, "key", key)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			if m.onLimit != nil {
				m.onLimit(r.URL.Path)
			}
			m.logger.Debug("Rate limit exceeded", "key", key, "path", r.URL.Path)
			rpc.WriteError(w, rpc.NewError(rpc.ErrRateLimitExceeded, "", map[string]any{
				"message":     "Too many requests",
				"retry_after": max(seconds, 1),
			}))
			return
		}

		next.ServeHTTP(w, r)
	})
}
