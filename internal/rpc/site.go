package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"norelock.dev/rpcsite/internal/utils"
)

// Built-in method names.
const (
	MethodNameDescribe = "rpc.describe"
	MethodNameDiscover = "rpc.discover"
)

// ServiceName is reported as the name of every service description.
const ServiceName = "rpcsite"

// Server is one endpoint advertised by introspection.
type Server struct {
	Name        string `json:"name,omitempty" mapstructure:"name"`
	URL         string `json:"url" mapstructure:"url"`
	Summary     string `json:"summary,omitempty" mapstructure:"summary"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// SiteConfig describes one mounted JSON-RPC endpoint.
type SiteConfig struct {
	// Name identifies the site, e.g. "api" or "petstore".
	Name string

	// Path is the URL path the site is mounted at.
	Path string

	Title       string
	Description string
	Version     string
	Servers     []Server

	Defaults   Defaults
	Dispatcher DispatcherOptions
}

// Site is a registry with its dispatcher and built-in introspection methods.
// Methods must be registered before the site serves traffic.
type Site struct {
	config     SiteConfig
	id         uuid.UUID
	registry   *Registry
	errors     *ErrorHandlers
	dispatcher *Dispatcher
	logger     *utils.Logger

	mutex sync.RWMutex
	peers []*Site
}

// NewSite creates a site and registers rpc.describe and rpc.discover.
func NewSite(config SiteConfig, logger *utils.Logger) (*Site, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("site name is required")
	}
	if config.Version == "" {
		config.Version = "1.0.0"
	}

	logger = logger.Named("site").With("site", config.Name)
	registry := NewRegistry(config.Defaults, logger)
	handlers := NewErrorHandlers()

	s := &Site{
		config:     config,
		id:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(config.Name+config.Path)),
		registry:   registry,
		errors:     handlers,
		dispatcher: NewDispatcher(registry, handlers, config.Dispatcher, logger),
		logger:     logger,
	}

	if err := registry.Register(MethodNameDescribe, HandlerFunc(func(ctx context.Context, _ Args) (any, error) {
		return s.Describe(ctx), nil
	}), WithValidate(false), WithNotification(false), WithReturns(Of(KindObject)),
		WithSummary("Describe the service and its methods")); err != nil {
		return nil, err
	}
	if err := registry.Register(MethodNameDiscover, HandlerFunc(func(ctx context.Context, _ Args) (any, error) {
		return s.Discover(ctx), nil
	}), WithValidate(false), WithNotification(false), WithReturns(Of(KindObject)),
		WithSummary("Returns an OpenRPC schema as a description of this service")); err != nil {
		return nil, err
	}

	return s, nil
}

// Name returns the site name.
func (s *Site) Name() string { return s.config.Name }

// Path returns the mount path.
func (s *Site) Path() string { return s.config.Path }

// Config returns the site configuration.
func (s *Site) Config() SiteConfig { return s.config }

// Registry returns the method registry.
func (s *Site) Registry() *Registry { return s.registry }

// Errors returns the error handler registry.
func (s *Site) Errors() *ErrorHandlers { return s.errors }

// Dispatcher returns the dispatcher.
func (s *Site) Dispatcher() *Dispatcher { return s.dispatcher }

// Register registers a method on the site's registry.
func (s *Site) Register(name string, c Callable, opts ...Option) error {
	return s.registry.Register(name, c, opts...)
}

// Wrap returns a registrar applying mw to methods registered through it.
func (s *Site) Wrap(mw Middleware) MethodRegistrar {
	return s.registry.Wrap(mw)
}

// Dispatch processes an HTTP body.
func (s *Site) Dispatch(ctx context.Context, body []byte, contentType string) Result {
	return s.dispatcher.Dispatch(ctx, body, contentType)
}

// Aggregate makes rpc.discover of this site include the methods of peers.
func (s *Site) Aggregate(peers ...*Site) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, p := range peers {
		if p != s {
			s.peers = append(s.peers, p)
		}
	}
}

func (s *Site) aggregated() []*Site {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]*Site(nil), s.peers...)
}
