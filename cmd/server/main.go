package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"norelock.dev/rpcsite/internal/api"
	appMiddleware "norelock.dev/rpcsite/internal/api/middleware"
	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/db/redis"
	"norelock.dev/rpcsite/internal/rpc/methods"
	"norelock.dev/rpcsite/internal/services/system"
	"norelock.dev/rpcsite/internal/utils"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	writeConfig := flag.String("write-config", "", "write a default app.yaml to `dir` and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.WriteDefaultConfig(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that will be canceled on interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	warnings := config.ValidateAndFixConfig(cfg)

	// Initialize logger
	logger := utils.NewLogger(config.LoggerOptions(cfg))
	utils.SetLogger(logger)
	defer logger.Sync()

	for _, w := range warnings {
		logger.Warn("Configuration fixed", "warning", w)
	}
	logger.Info("Starting rpcsite server", "environment", cfg.Environment, "version", version)
	logger.Debug("Configuration\n" + config.GetConfigString(cfg))

	// Initialize system services
	metrics := system.NewMetricsService(logger)
	healthService := system.NewHealthService(logger, system.HealthServiceConfig{
		Version:     version,
		Environment: cfg.Environment,
	})

	// Initialize Redis client when the rate limiter needs it
	var limiter appMiddleware.Limiter
	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case config.BackendRedis:
			redisClient, err := redis.NewClient(cfg, logger)
			if err != nil {
				logger.Fatal("Failed to connect to Redis", err)
			}
			defer redisClient.Close()

			healthService.AddPinger("redis", redisClient)
			limiter = redis.NewRateLimiter(redisClient, cfg.RateLimit.Limit, cfg.RateLimit.Window)
		default:
			memoryLimiter := utils.NewRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.Limit)
			go memoryLimiter.CleanupLoop(ctx, cfg.RateLimit.Window)
			limiter = memoryLimiter
		}
	}

	// Initialize JSON-RPC sites and register methods
	sites, err := api.NewSites(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create JSON-RPC sites", err)
	}
	if err := methods.RegisterAllMethods(api.SiteByName(sites, "api"), api.SiteByName(sites, "petstore"), logger); err != nil {
		logger.Fatal("Failed to register JSON-RPC methods", err)
	}

	// Initialize API router
	router, err := api.NewRouter(cfg, api.Dependencies{
		Sites:   sites,
		Limiter: limiter,
		Metrics: metrics,
		Health:  healthService,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create router", err)
	}

	// Start health service
	healthService.Start(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
	case err := <-serverErr:
		logger.Error("HTTP server error", err)
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("WebSocket shutdown error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}

	logger.Info("Server shutdown complete")
}
