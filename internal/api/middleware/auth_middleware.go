// Package middleware contains HTTP middleware for the API.
package middleware

import (
	"errors"
	"net/http"

	"norelock.dev/rpcsite/internal/auth"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// AuthMiddleware authenticates requests to a JSON-RPC site. Requests
// without credentials pass through anonymously; methods that need a
// caller are wrapped with rpc.AuthMiddleware and reject them at dispatch.
type AuthMiddleware struct {
	authProvider auth.Provider
	logger       *utils.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(authProvider auth.Provider, logger *utils.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authProvider: authProvider,
		logger:       logger.Named("auth_middleware"),
	}
}

// Authenticate attaches the caller's principal to the request context.
// Invalid credentials are answered with a JSON-RPC authentication error.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.principal(r)
		if err != nil {
			m.reject(w, err)
			return
		}
		if principal != nil {
			r = r.WithContext(rpc.WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth is like Authenticate but also rejects anonymous requests.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.principal(r)
		if err == nil && principal == nil {
			err = auth.ErrMissingCredentials
		}
		if err != nil {
			m.reject(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(rpc.WithPrincipal(r.Context(), principal)))
	})
}

// Authenticator adapts the provider for the WebSocket upgrade.
func (m *AuthMiddleware) Authenticator() rpc.Authenticator {
	return m.principal
}

func (m *AuthMiddleware) principal(r *http.Request) (*rpc.Principal, error) {
	claims, err := m.authProvider.Authenticate(r)
	if errors.Is(err, auth.ErrMissingCredentials) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return PrincipalFromClaims(claims), nil
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, err error) {
	message := "Invalid credentials"
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		message = "Missing credentials"
	case errors.Is(err, auth.ErrExpiredToken):
		message = "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken):
		message = "Invalid token"
	}
	m.logger.Debug("Authentication failed", "error", err)

	w.Header().Set("WWW-Authenticate", m.authProvider.Scheme())
	rpc.WriteError(w, rpc.NewError(rpc.ErrAuthenticationRequired, "", map[string]any{"message": message}))
}

// PrincipalFromClaims converts authenticated claims to the principal seen
// by JSON-RPC methods.
func PrincipalFromClaims(claims *auth.Claims) *rpc.Principal {
	return &rpc.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Roles:    claims.Roles,
	}
}
