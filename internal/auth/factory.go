package auth

import (
	"fmt"

	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/utils"
)

// NewProvider builds the provider for an auth mode. AuthNone yields a nil
// provider.
func NewProvider(mode string, cfg *config.Config, logger *utils.Logger) (Provider, error) {
	switch mode {
	case config.AuthNone, "":
		return nil, nil
	case config.AuthJWT:
		p, err := NewJWTProvider(JWTConfig{
			Secret:              cfg.Auth.JWTSecret,
			Issuer:              cfg.Auth.Issuer,
			Audience:            cfg.Auth.Audience,
			AccessTokenDuration: cfg.Auth.AccessTokenExpiry,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.AuthBasic:
		users := make([]User, 0, len(cfg.Auth.Users))
		for _, u := range cfg.Auth.Users {
			users = append(users, User{Username: u.Username, PasswordHash: u.PasswordHash, Roles: u.Roles})
		}
		return NewPasswordProvider(users, logger), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
