package system

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"norelock.dev/rpcsite/internal/utils"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusUp indicates the component is healthy.
	StatusUp HealthStatus = "up"
	// StatusDown indicates the component is unhealthy.
	StatusDown HealthStatus = "down"
	// StatusDegraded indicates the component is functioning but with issues.
	StatusDegraded HealthStatus = "degraded"
)

// ComponentHealth represents the health of a system component.
type ComponentHealth struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	Latency     int64        `json:"latency_ms"`
	LastChecked time.Time    `json:"last_checked"`
}

// SystemHealth represents the overall health of the system.
type SystemHealth struct {
	Status      HealthStatus      `json:"status"`
	Components  []ComponentHealth `json:"components"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Uptime      int64             `json:"uptime_seconds"`
	StartTime   time.Time         `json:"start_time"`
	GoVersion   string            `json:"go_version"`
	GoRoutines  int               `json:"go_routines"`
	MemStats    MemoryStats       `json:"memory_stats"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	Alloc     uint64 `json:"alloc_bytes"`
	Sys       uint64 `json:"sys_bytes"`
	NumGC     uint32 `json:"num_gc"`
	HeapAlloc uint64 `json:"heap_alloc_bytes"`
}

// CheckFunc checks one component. A nil error means the component is up.
type CheckFunc func(ctx context.Context) error

// Pinger is anything with a Ping method, e.g. the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService provides health checking functionality.
type HealthService struct {
	logger         *utils.Logger
	startTime      time.Time
	version        string
	environment    string
	checks         map[string]CheckFunc
	componentCache map[string]ComponentHealth
	cacheMutex     sync.RWMutex
	checkInterval  time.Duration
	checkTimeout   time.Duration
}

// HealthServiceConfig contains configuration for the health service.
type HealthServiceConfig struct {
	Version     string
	Environment string
}

// NewHealthService creates a new health service.
func NewHealthService(logger *utils.Logger, config HealthServiceConfig) *HealthService {
	return &HealthService{
		logger:         logger.Named("health_service"),
		startTime:      time.Now(),
		version:        config.Version,
		environment:    config.Environment,
		checks:         make(map[string]CheckFunc),
		componentCache: make(map[string]ComponentHealth),
		checkInterval:  30 * time.Second,
		checkTimeout:   5 * time.Second,
	}
}

// AddCheck registers a component check. It must be called before Start.
func (s *HealthService) AddCheck(name string, check CheckFunc) {
	s.checks[name] = check
}

// AddPinger registers a component checked through its Ping method.
func (s *HealthService) AddPinger(name string, p Pinger) {
	s.AddCheck(name, p.Ping)
}

// Start performs an initial check and then checks periodically until ctx
// is done.
func (s *HealthService) Start(ctx context.Context) {
	s.logger.Info("Starting health service", "components", len(s.checks))

	s.CheckHealth(ctx)

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Stopping health service")
				return
			case <-ticker.C:
				s.CheckHealth(ctx)
			}
		}
	}()
}

// CheckHealth runs every registered check concurrently.
func (s *HealthService) CheckHealth(ctx context.Context) {
	s.logger.Debug("Performing health check")

	var g errgroup.Group
	for name, check := range s.checks {
		name, check := name, check
		g.Go(func() error {
			s.runCheck(ctx, name, check)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *HealthService) runCheck(ctx context.Context, name string, check CheckFunc) {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	err := check(checkCtx)
	latency := time.Since(start).Milliseconds()

	status := StatusUp
	description := name + " is healthy"
	if err != nil {
		status = StatusDown
		description = name + " check failed: " + err.Error()
		s.logger.Error("Health check failed", err, "component", name)
	}

	s.updateComponentHealth(name, status, description, latency)
}

// GetHealth returns the current health status of the system.
func (s *HealthService) GetHealth() SystemHealth {
	s.cacheMutex.RLock()
	components := make([]ComponentHealth, 0, len(s.componentCache))
	for _, component := range s.componentCache {
		components = append(components, component)
	}
	s.cacheMutex.RUnlock()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	status := StatusUp
	for _, component := range components {
		if component.Status == StatusDown {
			status = StatusDown
			break
		} else if component.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemHealth{
		Status:      status,
		Components:  components,
		Version:     s.version,
		Environment: s.environment,
		Uptime:      int64(time.Since(s.startTime).Seconds()),
		StartTime:   s.startTime,
		GoVersion:   runtime.Version(),
		GoRoutines:  runtime.NumGoroutine(),
		MemStats: MemoryStats{
			Alloc:     memStats.Alloc,
			Sys:       memStats.Sys,
			NumGC:     memStats.NumGC,
			HeapAlloc: memStats.HeapAlloc,
		},
	}
}

// Handler serves the system health as JSON, with 503 when a component is down.
func (s *HealthService) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := s.GetHealth()
		status := http.StatusOK
		if health.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, status, health)
	}
}

func (s *HealthService) updateComponentHealth(name string, status HealthStatus, description string, latency int64) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.componentCache[name] = ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		Latency:     latency,
		LastChecked: time.Now(),
	}
}
