// Package api provides the HTTP API for the application.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"
	appMiddleware "norelock.dev/rpcsite/internal/api/middleware"
	"norelock.dev/rpcsite/internal/auth"
	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/services/system"
	"norelock.dev/rpcsite/internal/utils"
)

// Dependencies are the services the router mounts.
type Dependencies struct {
	// Sites are the JSON-RPC sites, each mounted at its path.
	Sites []*rpc.Site

	// Limiter rate limits JSON-RPC requests. Nil disables rate limiting.
	Limiter appMiddleware.Limiter

	// Metrics records HTTP metrics and serves them. Optional.
	Metrics *system.MetricsService

	// Health serves /health. Optional.
	Health *system.HealthService
}

// Router is the main HTTP router for the API.
type Router struct {
	*chi.Mux
	logger  *utils.Logger
	sockets []*WebSocketHandler
}

// NewRouter creates a new API router.
func NewRouter(cfg *config.Config, deps Dependencies, logger *utils.Logger) (*Router, error) {
	r := chi.NewRouter()
	apiLogger := logger.Named("api")

	recoveryMiddleware := appMiddleware.NewRecoveryMiddleware(apiLogger)
	loggerMiddleware := appMiddleware.NewLoggerMiddleware(apiLogger)
	corsMiddleware := appMiddleware.NewCORSMiddleware(cfg.Server.AllowedOrigins, apiLogger)

	// Apply global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoveryMiddleware.Recovery)
	r.Use(loggerMiddleware.Logger)
	r.Use(corsMiddleware.CORS)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.Heartbeat("/ping"))

	if deps.Health != nil {
		r.Get("/health", deps.Health.Handler())
	}
	if deps.Metrics != nil && cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, deps.Metrics.Handler())
	}

	router := &Router{Mux: r, logger: apiLogger}

	var limiter *appMiddleware.RateLimitMiddleware
	if deps.Limiter != nil {
		var onLimit func(string)
		if deps.Metrics != nil {
			onLimit = deps.Metrics.IncRateLimited
		}
		limiter = appMiddleware.NewRateLimitMiddleware(deps.Limiter, appMiddleware.PrincipalKeyFunc, onLimit, apiLogger)
	}

	for _, site := range deps.Sites {
		siteCfg, ok := lo.Find(cfg.RPC.Sites, func(s config.Site) bool { return s.Name == site.Name() })
		if !ok {
			return nil, fmt.Errorf("site %q is not configured", site.Name())
		}

		provider, err := auth.NewProvider(cfg.SiteAuth(siteCfg), cfg, apiLogger)
		if err != nil {
			return nil, fmt.Errorf("site %q: %w", site.Name(), err)
		}

		var authMiddleware *appMiddleware.AuthMiddleware
		if provider != nil {
			authMiddleware = appMiddleware.NewAuthMiddleware(provider, apiLogger)
		}

		handler := NewRPCHandler(site, cfg.RPC.MaxBodyBytes, apiLogger)
		r.Group(func(r chi.Router) {
			r.Use(recoveryMiddleware.RecoveryWithHandler(appMiddleware.RPCPanicHandler))
			if authMiddleware != nil {
				r.Use(authMiddleware.Authenticate)
			}
			if limiter != nil {
				r.Use(limiter.Limit)
			}
			r.Post(site.Path(), handler.ServeHTTP)
		})

		if cfg.RPC.WebSocket {
			var authenticate rpc.Authenticator
			if authMiddleware != nil {
				authenticate = authMiddleware.Authenticator()
			}
			ws := NewWebSocketHandler(site, authenticate, cfg.Server.AllowedOrigins, apiLogger)
			r.Get(path.Join(site.Path(), "ws"), ws.ServeHTTP)
			router.sockets = append(router.sockets, ws)
			if deps.Metrics != nil {
				deps.Metrics.RegisterWebSocketGauge(site.Name(), ws.ClientCount)
			}
		}

		apiLogger.Info("Mounted JSON-RPC site",
			"site", site.Name(),
			"path", site.Path(),
			"auth", cfg.SiteAuth(siteCfg),
			"websocket", cfg.RPC.WebSocket,
		)
	}

	return router, nil
}

// Shutdown closes the WebSocket connections of every site.
func (r *Router) Shutdown(ctx context.Context) error {
	var errs []error
	for _, ws := range r.sockets {
		if err := ws.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ http.Handler = (*Router)(nil)
