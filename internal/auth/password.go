package auth

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
	"norelock.dev/rpcsite/internal/utils"
)

// Password errors
var (
	ErrHashingPassword = errors.New("failed to hash password")
	ErrInvalidPassword = errors.New("invalid password")
)

// User is a basic auth credential.
type User struct {
	Username     string
	PasswordHash string
	Roles        []string
}

// PasswordProvider authenticates HTTP basic credentials against bcrypt
// hashes.
type PasswordProvider struct {
	users  map[string]User
	logger *utils.Logger
}

// NewPasswordProvider creates a new password provider.
func NewPasswordProvider(users []User, logger *utils.Logger) *PasswordProvider {
	p := &PasswordProvider{
		users:  make(map[string]User, len(users)),
		logger: logger.Named("password_provider"),
	}
	for _, u := range users {
		p.users[u.Username] = u
	}
	return p
}

// HashPassword hashes a password for secure storage.
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", ErrHashingPassword
	}
	return string(hashedBytes), nil
}

// VerifyPassword checks if a password matches a hash.
func (p *PasswordProvider) VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		p.logger.Debug("Password verification failed", "error", err)
		return false
	}
	return true
}

// Authenticate checks the basic credentials of r.
func (p *PasswordProvider) Authenticate(r *http.Request) (*Claims, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrMissingCredentials
	}
	user, exists := p.users[username]
	if !exists || !p.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidPassword
	}
	return &Claims{BaseClaims: BaseClaims{
		UserID:   user.Username,
		Username: user.Username,
		Roles:    user.Roles,
	}}, nil
}

// Scheme returns the basic auth challenge.
func (p *PasswordProvider) Scheme() string {
	return `Basic realm="rpcsite"`
}
