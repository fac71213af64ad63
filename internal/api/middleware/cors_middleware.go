package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"norelock.dev/rpcsite/internal/utils"
)

var (
	corsMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
	corsHeaders = strings.Join([]string{"Accept", "Authorization", "Content-Type", "X-Request-Id"}, ", ")

	// corsExposed are the headers JSON-RPC clients read from error responses.
	corsExposed = strings.Join([]string{"Retry-After", "WWW-Authenticate", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-Request-Id"}, ", ")
)

// corsMaxAge is how long browsers may cache a preflight answer, in seconds.
const corsMaxAge = 24 * 60 * 60

// CORSMiddleware lets browsers call the JSON-RPC sites from other origins.
type CORSMiddleware struct {
	origins []string
	logger  *utils.Logger
}

// NewCORSMiddleware creates a CORS middleware. An empty list or "*" allows
// every origin; an entry ending in "*" allows origins with that prefix.
func NewCORSMiddleware(allowedOrigins []string, logger *utils.Logger) *CORSMiddleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &CORSMiddleware{
		origins: allowedOrigins,
		logger:  logger.Named("cors_middleware"),
	}
}

// CORS answers preflight requests and decorates responses to allowed origins.
func (m *CORSMiddleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		allowed := m.allows(origin)
		if allowed {
			// Credentials rule out a literal "*", so the origin is echoed.
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposed)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed {
				m.logger.Debug("Rejected CORS preflight", "origin", origin, "path", r.URL.Path)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allows(origin string) bool {
	return lo.SomeBy(m.origins, func(allowed string) bool {
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
			return strings.HasPrefix(origin, prefix)
		}
		return allowed == origin
	})
}
