package rpc

import "context"

type contextKey int

const (
	principalKey contextKey = iota
	transportKey
	baseURLKey
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   string
	Username string
	Roles    []string
}

// WithPrincipal attaches the authenticated caller to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// WithTransport records the transport ("http" or "ws") a request arrived on.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// TransportFromContext returns the transport a request arrived on.
func TransportFromContext(ctx context.Context) string {
	t, _ := ctx.Value(transportKey).(string)
	if t == "" {
		return "http"
	}
	return t
}

// WithBaseURL records the scheme and host the request was addressed to.
func WithBaseURL(ctx context.Context, baseURL string) context.Context {
	return context.WithValue(ctx, baseURLKey, baseURL)
}

// BaseURLFromContext returns the recorded base URL, or "".
func BaseURLFromContext(ctx context.Context) string {
	u, _ := ctx.Value(baseURLKey).(string)
	return u
}
