package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/utils"
)

func newJWTProvider(t *testing.T, secret string, d time.Duration) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider(JWTConfig{
		Secret:              secret,
		Issuer:              "rpcsite",
		AccessTokenDuration: d,
	}, utils.NewNopLogger())
	require.NoError(t, err)
	return p
}

func TestJWTRoundTrip(t *testing.T) {
	p := newJWTProvider(t, "0123456789abcdef0123456789abcdef", time.Hour)

	token, err := p.GenerateToken("u-1", "lou", []string{"admin"})
	require.NoError(t, err)

	claims, err := p.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "lou", claims.Username)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.Equal(t, "rpcsite", claims.StandardClaims.Issuer)
	assert.NotEmpty(t, claims.StandardClaims.ID)

	r := httptest.NewRequest(http.MethodPost, "/api", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	claims, err = p.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "lou", claims.Username)

	ws := httptest.NewRequest(http.MethodGet, "/api/ws?token="+token, nil)
	claims, err = p.Authenticate(ws)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)

	refreshed, err := p.RefreshToken(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, refreshed)
}

func TestJWTRejects(t *testing.T) {
	p := newJWTProvider(t, "0123456789abcdef0123456789abcdef", time.Hour)
	other := newJWTProvider(t, "fedcba9876543210fedcba9876543210", time.Hour)

	foreign, err := other.GenerateToken("u-1", "lou", nil)
	require.NoError(t, err)
	_, err = p.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = p.Authenticate(httptest.NewRequest(http.MethodPost, "/api", nil))
	assert.ErrorIs(t, err, ErrMissingCredentials)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = p.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	p := newJWTProvider(t, "0123456789abcdef0123456789abcdef", time.Hour)

	claims := JWTClaims{
		BaseClaims: BaseClaims{UserID: "u-1", Username: "lou"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rpcsite",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	got, err := p.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	require.NotNil(t, got)
	assert.Equal(t, "lou", got.Username)
}

func TestNewJWTProviderRequiresSecret(t *testing.T) {
	_, err := NewJWTProvider(JWTConfig{AccessTokenDuration: time.Hour}, utils.NewNopLogger())
	assert.Error(t, err)
}

func TestPasswordProvider(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	p := NewPasswordProvider([]User{{Username: "lou", PasswordHash: hash, Roles: []string{"admin"}}}, utils.NewNopLogger())
	assert.Equal(t, `Basic realm="rpcsite"`, p.Scheme())

	r := httptest.NewRequest(http.MethodPost, "/api", nil)
	r.SetBasicAuth("lou", "s3cret")
	claims, err := p.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "lou", claims.UserID)
	assert.Equal(t, []string{"admin"}, claims.Roles)

	r.SetBasicAuth("lou", "wrong")
	_, err = p.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalidPassword)

	r.SetBasicAuth("eve", "s3cret")
	_, err = p.Authenticate(r)
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = p.Authenticate(httptest.NewRequest(http.MethodPost, "/api", nil))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNewProvider(t *testing.T) {
	cfg := config.CreateDefaultConfig()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.AccessTokenExpiry = time.Hour
	logger := utils.NewNopLogger()

	p, err := NewProvider(config.AuthNone, cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(config.AuthJWT, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &JWTProvider{}, p)

	p, err = NewProvider(config.AuthBasic, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &PasswordProvider{}, p)

	_, err = NewProvider("oauth", cfg, logger)
	assert.Error(t, err)
}
