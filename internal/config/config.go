// Package config provides functionality for loading and accessing application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthNone  = "none"
	AuthJWT   = "jwt"
	AuthBasic = "basic"
)

// Rate limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// SiteServer is a server URL advertised by a site's introspection.
type SiteServer struct {
	Name        string `mapstructure:"name"`
	URL         string `mapstructure:"url" validate:"required,url"`
	Description string `mapstructure:"description"`
}

// Site configures one mounted JSON-RPC endpoint.
type Site struct {
	// Name identifies the site; the first site is the primary one
	Name string `mapstructure:"name" validate:"required"`
	// Path is the URL path the site is mounted at
	Path string `mapstructure:"path" validate:"required,startswith=/"`
	// Title is reported by rpc.describe and rpc.discover
	Title string `mapstructure:"title"`
	// Version is the site's API version
	Version string `mapstructure:"version"`
	// Description is reported by rpc.discover
	Description string `mapstructure:"description"`
	// Servers overrides the server URL derived from the request
	Servers []SiteServer `mapstructure:"servers" validate:"dive"`
	// Auth overrides the global auth mode for this site
	Auth string `mapstructure:"auth" validate:"omitempty,oneof=none jwt basic"`
}

// BasicUser is a credential accepted by basic auth.
type BasicUser struct {
	Username string `mapstructure:"username" validate:"required"`
	// PasswordHash is a bcrypt hash
	PasswordHash string   `mapstructure:"password_hash" validate:"required"`
	Roles        []string `mapstructure:"roles"`
}

// Config represents the application configuration
type Config struct {
	// Environment is the current running environment (development, staging, production)
	Environment string `mapstructure:"environment"`

	// Server configuration
	Server struct {
		// Port is the HTTP server port
		Port int `mapstructure:"port" validate:"min=1,max=65535"`
		// Host is the HTTP server host
		Host string `mapstructure:"host"`
		// ReadTimeout is the maximum duration for reading the entire request
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
		// WriteTimeout is the maximum duration before timing out writes of the response
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		// IdleTimeout is the maximum amount of time to wait for the next request
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
		// ShutdownTimeout bounds graceful shutdown
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		// AllowedOrigins is the list of allowed CORS and WebSocket origins
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	// Logging configuration
	Logging struct {
		// Level is the logging level
		Level string `mapstructure:"level"`
		// Format is the logging format (json or console)
		Format string `mapstructure:"format"`
		// OutputPaths is the list of output paths for logs
		OutputPaths []string `mapstructure:"output_paths"`
		// ErrorOutputPaths is the list of output paths for error logs
		ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	} `mapstructure:"logging"`

	// JSON-RPC configuration
	RPC struct {
		// Debug attaches stack traces to server errors
		Debug bool `mapstructure:"debug"`
		// Validate is the default of per-method parameter type checking
		Validate bool `mapstructure:"validate"`
		// Notification is the default of per-method notification acceptance
		Notification bool `mapstructure:"notification"`
		// BatchConcurrency bounds concurrently dispatched batch elements
		BatchConcurrency int `mapstructure:"batch_concurrency" validate:"min=0,max=1024"`
		// MaxBodyBytes bounds the size of a request payload
		MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`
		// WebSocket mounts a WebSocket endpoint under each site
		WebSocket bool `mapstructure:"websocket"`
		// Sites is the list of mounted endpoints
		Sites []Site `mapstructure:"sites" validate:"min=1,dive"`
	} `mapstructure:"rpc"`

	// Authentication configuration
	Auth struct {
		// Mode is none, jwt or basic
		Mode string `mapstructure:"mode" validate:"oneof=none jwt basic"`
		// JWTSecret is the secret key for signing JWTs
		JWTSecret string `mapstructure:"jwt_secret"`
		// Issuer is the expected token issuer
		Issuer string `mapstructure:"issuer"`
		// Audience is the expected token audience
		Audience string `mapstructure:"audience"`
		// AccessTokenExpiry is the expiry time for access tokens
		AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
		// RefreshTokenExpiry is the expiry time for refresh tokens
		RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
		// Users are the basic auth credentials
		Users []BasicUser `mapstructure:"users" validate:"dive"`
	} `mapstructure:"auth"`

	// Rate limiting configuration
	RateLimit struct {
		// Enabled turns rate limiting on
		Enabled bool `mapstructure:"enabled"`
		// Backend is memory or redis
		Backend string `mapstructure:"backend" validate:"oneof=memory redis"`
		// Limit is the number of requests allowed per window
		Limit int `mapstructure:"limit" validate:"min=0"`
		// Window is the rate limiting window
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"rate_limit"`

	// Redis configuration
	Redis struct {
		// Addr is the Redis server address
		Addr string `mapstructure:"addr"`
		// Username is the Redis username
		Username string `mapstructure:"username"`
		// Password is the Redis password
		Password string `mapstructure:"password"`
		// Database is the Redis database index
		Database int `mapstructure:"database" validate:"min=0"`
		// MaxRetries is the maximum number of retries for Redis operations
		MaxRetries int `mapstructure:"max_retries"`
		// PoolSize is the Redis connection pool size
		PoolSize int `mapstructure:"pool_size"`
		// MinIdleConns is the minimum number of idle connections
		MinIdleConns int `mapstructure:"min_idle_conns"`
		// DialTimeout is the timeout for establishing new connections
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		// ReadTimeout is the timeout for Redis reads
		ReadTimeout time.Duration `mapstructure:"read_timeout"`
		// WriteTimeout is the timeout for Redis writes
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"redis"`

	// Metrics configuration
	Metrics struct {
		// Enabled exposes Prometheus metrics
		Enabled bool `mapstructure:"enabled"`
		// Path is where metrics are served
		Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
	} `mapstructure:"metrics"`
}

// LoadConfig loads the configuration from file and environment variables.
// A .env file in the working directory is loaded first. It looks for a
// configuration file in the following locations:
// 1. Path specified in the CONFIG_FILE environment variable
// 2. ./configs directory
// 3. ../configs directory
// 4. /etc/rpcsite directory
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Configuration file name and type
	v.SetConfigName("app")
	v.SetConfigType("yaml")

	configFile := os.Getenv("CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("/etc/rpcsite")
	}

	// Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		// If the configuration file is not found, use environment variables and defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	if configFile == "" {
		v.SetConfigName(fmt.Sprintf("app.%s", env))
		// Try to merge the environment-specific configuration file
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to merge environment config file: %w", err)
			}
		}
	}

	// Override with environment variables
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Environment = env

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets the default values for the configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	// RPC defaults
	v.SetDefault("rpc.debug", false)
	v.SetDefault("rpc.validate", true)
	v.SetDefault("rpc.notification", true)
	v.SetDefault("rpc.batch_concurrency", 1)
	v.SetDefault("rpc.max_body_bytes", 1<<20)
	v.SetDefault("rpc.websocket", true)
	v.SetDefault("rpc.sites", []map[string]any{
		{"name": "api", "path": "/api", "title": "rpcsite", "version": "1.0.0"},
		{"name": "petstore", "path": "/api/petstore", "title": "Petstore", "version": "1.0.0",
			"description": "A sample API that uses a petstore as an example to demonstrate features in the OpenRPC specification"},
	})

	// Authentication defaults
	v.SetDefault("auth.mode", AuthNone)
	v.SetDefault("auth.issuer", "rpcsite")
	v.SetDefault("auth.access_token_expiry", "15m")
	v.SetDefault("auth.refresh_token_expiry", "168h") // 7 days

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", BackendMemory)
	v.SetDefault("rate_limit.limit", 100)
	v.SetDefault("rate_limit.window", "1m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := validateStruct(config); err != nil {
		return err
	}

	seen := make(map[string]bool, len(config.RPC.Sites))
	for _, site := range config.RPC.Sites {
		if seen[site.Path] {
			return fmt.Errorf("duplicate site path: %s", site.Path)
		}
		seen[site.Path] = true
	}

	if config.UsesAuth(AuthJWT) && config.Auth.JWTSecret == "" && config.Environment == "production" {
		return errors.New("JWT secret must be set")
	}

	if config.RateLimit.Enabled && config.RateLimit.Backend == BackendRedis && config.Redis.Addr == "" {
		return errors.New("redis address must be set for the redis rate limiter")
	}

	return nil
}

// UsesAuth reports whether mode is the global auth mode or the mode of any site.
func (c *Config) UsesAuth(mode string) bool {
	if c.Auth.Mode == mode {
		return true
	}
	for _, site := range c.RPC.Sites {
		if site.Auth == mode {
			return true
		}
	}
	return false
}

// SiteAuth returns the auth mode of site.
func (c *Config) SiteAuth(site Site) string {
	if site.Auth != "" {
		return site.Auth
	}
	if c.Auth.Mode == "" {
		return AuthNone
	}
	return c.Auth.Mode
}

// GetConfigString returns a formatted string with the current configuration
func GetConfigString(config *Config) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Environment: %s\n", config.Environment))
	sb.WriteString(fmt.Sprintf("Server: %s:%d\n", config.Server.Host, config.Server.Port))
	sb.WriteString(fmt.Sprintf("Auth Mode: %s\n", config.Auth.Mode))
	sb.WriteString(fmt.Sprintf("Debug: %t\n", config.RPC.Debug))
	sb.WriteString(fmt.Sprintf("Batch Concurrency: %d\n", config.RPC.BatchConcurrency))
	sb.WriteString("Sites:\n")
	for _, site := range config.RPC.Sites {
		sb.WriteString(fmt.Sprintf("  %s: %s (auth %s)\n", site.Name, site.Path, config.SiteAuth(site)))
	}
	if config.RateLimit.Enabled {
		sb.WriteString(fmt.Sprintf("Rate Limit: %d per %v (%s)\n", config.RateLimit.Limit, config.RateLimit.Window, config.RateLimit.Backend))
	}

	return sb.String()
}

// WriteDefaultConfig writes the default configuration file to dir unless it exists.
func WriteDefaultConfig(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "app.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultConfig := `# rpcsite configuration

server:
  port: 5000
  host: "0.0.0.0"
  read_timeout: "15s"
  write_timeout: "15s"
  idle_timeout: "60s"
  shutdown_timeout: "30s"
  allowed_origins: ["*"]

logging:
  level: "info"
  format: "json"
  output_paths: ["stdout"]
  error_output_paths: ["stderr"]

rpc:
  debug: false
  validate: true
  notification: true
  batch_concurrency: 1
  max_body_bytes: 1048576
  websocket: true
  sites:
    - name: "api"
      path: "/api"
      title: "rpcsite"
      version: "1.0.0"
    - name: "petstore"
      path: "/api/petstore"
      title: "Petstore"
      version: "1.0.0"

auth:
  mode: "none" # none, jwt or basic
  jwt_secret: "" # Must be set in environment or secrets file
  issuer: "rpcsite"
  access_token_expiry: "15m"
  users: []

rate_limit:
  enabled: false
  backend: "memory" # memory or redis
  limit: 100
  window: "1m"

redis:
  addr: "localhost:6379"
  password: ""
  database: 0

metrics:
  enabled: true
  path: "/metrics"
`
	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write default config file: %w", err)
	}
	return nil
}
