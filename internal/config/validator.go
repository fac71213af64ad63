package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zapcore"
	"norelock.dev/rpcsite/internal/utils"
)

// validateStruct runs the validate tags of the configuration.
func validateStruct(config *Config) error {
	err := utils.Validate(config)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s: failed on '%s'", fe.Namespace(), fe.ActualTag()))
	}
	return errors.New(strings.Join(messages, "; "))
}

// ValidateAndFixConfig validates the configuration and fixes any issues
func ValidateAndFixConfig(config *Config) []string {
	var warnings []string

	// Check JWT secret
	if config.UsesAuth(AuthJWT) {
		if config.Auth.JWTSecret == "" {
			warnings = append(warnings, "JWT secret is not set, generating a random one")
			secret, err := generateRandomSecret(32)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Failed to generate JWT secret: %v", err))
			} else {
				config.Auth.JWTSecret = secret
			}
		} else if len(config.Auth.JWTSecret) < 16 {
			warnings = append(warnings, "JWT secret is too short, should be at least 16 characters")
		}
	}

	if config.UsesAuth(AuthBasic) && len(config.Auth.Users) == 0 {
		warnings = append(warnings, "Basic auth is enabled but no users are configured")
	}

	// Check server timeouts
	minTimeout := 1 * time.Second
	maxTimeout := 5 * time.Minute

	if config.Server.ReadTimeout < minTimeout {
		warnings = append(warnings, fmt.Sprintf("Server read timeout is too short (%v), setting to %v", config.Server.ReadTimeout, minTimeout))
		config.Server.ReadTimeout = minTimeout
	} else if config.Server.ReadTimeout > maxTimeout {
		warnings = append(warnings, fmt.Sprintf("Server read timeout is too long (%v), setting to %v", config.Server.ReadTimeout, maxTimeout))
		config.Server.ReadTimeout = maxTimeout
	}

	if config.Server.WriteTimeout < minTimeout {
		warnings = append(warnings, fmt.Sprintf("Server write timeout is too short (%v), setting to %v", config.Server.WriteTimeout, minTimeout))
		config.Server.WriteTimeout = minTimeout
	} else if config.Server.WriteTimeout > maxTimeout {
		warnings = append(warnings, fmt.Sprintf("Server write timeout is too long (%v), setting to %v", config.Server.WriteTimeout, maxTimeout))
		config.Server.WriteTimeout = maxTimeout
	}

	if config.Server.IdleTimeout < minTimeout {
		warnings = append(warnings, fmt.Sprintf("Server idle timeout is too short (%v), setting to %v", config.Server.IdleTimeout, minTimeout))
		config.Server.IdleTimeout = minTimeout
	}

	if config.Server.ShutdownTimeout <= 0 {
		warnings = append(warnings, "Server shutdown timeout is not set, setting to 30s")
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	// Check RPC limits
	if config.RPC.BatchConcurrency < 1 {
		warnings = append(warnings, fmt.Sprintf("Batch concurrency %d is too low, setting to 1", config.RPC.BatchConcurrency))
		config.RPC.BatchConcurrency = 1
	}

	if config.RPC.MaxBodyBytes <= 0 {
		warnings = append(warnings, "Max body size is not set, setting to 1MB")
		config.RPC.MaxBodyBytes = 1 << 20
	}

	// Check rate limiting
	if config.RateLimit.Enabled {
		if config.RateLimit.Limit <= 0 {
			warnings = append(warnings, "Rate limit is enabled with no limit, disabling it")
			config.RateLimit.Enabled = false
		}
		if config.RateLimit.Window <= 0 {
			warnings = append(warnings, "Rate limit window is not set, setting to 1m")
			config.RateLimit.Window = time.Minute
		}
	}

	// Check Redis address
	if config.RateLimit.Enabled && config.RateLimit.Backend == BackendRedis {
		host, port, err := net.SplitHostPort(config.Redis.Addr)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Invalid Redis address: %s", config.Redis.Addr))
		} else {
			if host == "" {
				warnings = append(warnings, fmt.Sprintf("Redis address has empty host: %s", config.Redis.Addr))
			}
			if port == "" {
				warnings = append(warnings, fmt.Sprintf("Redis address has empty port: %s", config.Redis.Addr))
			}
		}
	}

	if config.Metrics.Enabled && config.Metrics.Path == "" {
		warnings = append(warnings, "Metrics path is not set, setting to /metrics")
		config.Metrics.Path = "/metrics"
	}

	// Check logging configuration
	validLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}

	if !validLevels[strings.ToLower(config.Logging.Level)] {
		warnings = append(warnings, fmt.Sprintf("Invalid logging level: %s, setting to 'info'", config.Logging.Level))
		config.Logging.Level = "info"
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[strings.ToLower(config.Logging.Format)] {
		warnings = append(warnings, fmt.Sprintf("Invalid logging format: %s, setting to 'json'", config.Logging.Format))
		config.Logging.Format = "json"
	}

	// Check if output paths exist and are writable
	for _, path := range config.Logging.OutputPaths {
		if path != "stdout" && path != "stderr" {
			dir := filepath.Dir(path)
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				warnings = append(warnings, fmt.Sprintf("Log output directory does not exist: %s", dir))
			} else {
				testFile := filepath.Join(dir, ".test_write")
				if err := os.WriteFile(testFile, []byte{}, 0644); err != nil {
					warnings = append(warnings, fmt.Sprintf("Log output directory is not writable: %s", dir))
				} else {
					os.Remove(testFile)
				}
			}
		}
	}

	return warnings
}

// generateRandomSecret generates a random secret string of the specified length
func generateRandomSecret(length int) (string, error) {
	bytes := make([]byte, length)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}

// GetLogLevel converts a string log level to a zap log level
func GetLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerOptions derives the logger options from the configuration.
func LoggerOptions(config *Config) utils.LoggerOptions {
	return utils.LoggerOptions{
		Development:      config.Environment == "development",
		Level:            GetLogLevel(config.Logging.Level),
		Encoding:         config.Logging.Format,
		OutputPaths:      config.Logging.OutputPaths,
		ErrorOutputPaths: config.Logging.ErrorOutputPaths,
	}
}

// CreateDefaultConfig creates the default configuration
func CreateDefaultConfig() *Config {
	config := &Config{}

	config.Environment = "development"

	config.Server.Port = 5000
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 15 * time.Second
	config.Server.WriteTimeout = 15 * time.Second
	config.Server.IdleTimeout = 60 * time.Second
	config.Server.ShutdownTimeout = 30 * time.Second
	config.Server.AllowedOrigins = []string{"*"}

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.OutputPaths = []string{"stdout"}
	config.Logging.ErrorOutputPaths = []string{"stderr"}

	config.RPC.Validate = true
	config.RPC.Notification = true
	config.RPC.BatchConcurrency = 1
	config.RPC.MaxBodyBytes = 1 << 20
	config.RPC.WebSocket = true
	config.RPC.Sites = []Site{
		{Name: "api", Path: "/api", Title: "rpcsite", Version: "1.0.0"},
		{Name: "petstore", Path: "/api/petstore", Title: "Petstore", Version: "1.0.0"},
	}

	config.Auth.Mode = AuthNone
	config.Auth.Issuer = "rpcsite"
	config.Auth.AccessTokenExpiry = 15 * time.Minute
	config.Auth.RefreshTokenExpiry = 7 * 24 * time.Hour

	config.RateLimit.Backend = BackendMemory
	config.RateLimit.Limit = 100
	config.RateLimit.Window = time.Minute

	config.Redis.Addr = "localhost:6379"
	config.Redis.MaxRetries = 3
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeout = 5 * time.Second
	config.Redis.ReadTimeout = 3 * time.Second
	config.Redis.WriteTimeout = 3 * time.Second

	config.Metrics.Enabled = true
	config.Metrics.Path = "/metrics"

	return config
}
