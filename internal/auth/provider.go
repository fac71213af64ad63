// Package auth provides authentication and authorization functionality.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingCredentials is returned when a request carries no credentials.
var ErrMissingCredentials = errors.New("missing credentials")

// Provider authenticates HTTP requests.
type Provider interface {
	// Authenticate returns the claims of the caller of r.
	Authenticate(r *http.Request) (*Claims, error)

	// Scheme is the WWW-Authenticate challenge scheme.
	Scheme() string
}

// BaseClaims represents the base claims in a JWT token.
// These are used in the application.
type BaseClaims struct {
	// UserID is the ID of the user.
	UserID string `json:"userId"`

	// Username is the username of the user.
	Username string `json:"username"`

	// Roles contains the user's roles.
	Roles []string `json:"roles"`
}

// Claims represents the authenticated caller.
type Claims struct {
	// BaseClaims embeds the base claims.
	BaseClaims

	// StandardClaims contains the standard JWT claims, empty for basic auth.
	StandardClaims jwt.RegisteredClaims `json:"standardClaims"`
}

// bearerToken extracts a bearer token from the Authorization header, or
// from the token query parameter used by WebSocket clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
