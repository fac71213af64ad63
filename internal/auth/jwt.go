package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"norelock.dev/rpcsite/internal/utils"
)

// JWT errors
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// JWTConfig contains configuration for the JWT provider.
type JWTConfig struct {
	// Secret is the signing key for JWTs.
	Secret string `validate:"required"`

	// Issuer is the issuer of the JWT.
	Issuer string

	// Audience is the audience of the JWT. Empty disables the audience check.
	Audience string

	// AccessTokenDuration is the duration for which access tokens are valid.
	AccessTokenDuration time.Duration `validate:"required"`
}

// JWTClaims extends the standard JWT claims with custom fields.
type JWTClaims struct {
	// BaseClaims embeds the base claims.
	BaseClaims

	// StandardClaims contains the standard JWT claims.
	jwt.RegisteredClaims
}

// JWTProvider authenticates bearer tokens.
type JWTProvider struct {
	config JWTConfig
	parser *jwt.Parser
	logger *utils.Logger
}

// NewJWTProvider creates a new JWT provider.
func NewJWTProvider(config JWTConfig, logger *utils.Logger) (*JWTProvider, error) {
	if err := utils.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid jwt config: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(time.Second),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &JWTProvider{
		config: config,
		parser: jwt.NewParser(opts...),
		logger: logger.Named("jwt_provider"),
	}, nil
}

// GenerateToken creates a new JWT token for a user.
func (p *JWTProvider) GenerateToken(userID, username string, roles []string) (string, error) {
	now := time.Now()

	claims := JWTClaims{
		BaseClaims: BaseClaims{
			UserID:   userID,
			Username: username,
			Roles:    roles,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.AccessTokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if p.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(p.config.Secret))
	if err != nil {
		p.logger.Error("Failed to sign JWT token", err, "userId", userID)
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims. An expired
// token returns its claims along with ErrExpiredToken.
func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	parsed := JWTClaims{}
	token, err := p.parser.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		return []byte(p.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &Claims{
				BaseClaims:     parsed.BaseClaims,
				StandardClaims: parsed.RegisteredClaims,
			}, ErrExpiredToken
		}
		p.logger.Debug("Failed to parse JWT token", "error", err)
		return nil, ErrInvalidToken
	}

	if token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if parsed.UserID == "" {
		parsed.UserID = parsed.Subject
	}

	return &Claims{
		BaseClaims:     parsed.BaseClaims,
		StandardClaims: parsed.RegisteredClaims,
	}, nil
}

// RefreshToken issues a new token with the claims of a valid one.
func (p *JWTProvider) RefreshToken(tokenString string) (string, error) {
	claims, err := p.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return p.GenerateToken(claims.UserID, claims.Username, claims.Roles)
}

// Authenticate validates the bearer token of r.
func (p *JWTProvider) Authenticate(r *http.Request) (*Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, ErrMissingCredentials
	}
	return p.ValidateToken(token)
}

// Scheme returns the bearer challenge.
func (p *JWTProvider) Scheme() string {
	return `Bearer realm="rpcsite"`
}
