// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/users-service/internal/core"
	"github.com/carterperez-dev/templates/users-service/internal/user"
)

const pingTimeout = 2 * time.Second

type UserStats interface {
	Stats(ctx context.Context) (user.Stats, error)
}

// Dependency is an external system the service talks to. Pool is optional
// and reports connection pool counters when the client exposes them.
type Dependency struct {
	Name string
	Ping func(ctx context.Context) error
	Pool func() any
}

type HandlerConfig struct {
	Users        UserStats
	Dependencies []Dependency
	StartedAt    time.Time
}

// Handler serves operator views of the user population and of the
// dependencies backing the credential store.
type Handler struct {
	users     UserStats
	deps      []Dependency
	byName    map[string]Dependency
	startedAt time.Time
}

func NewHandler(cfg HandlerConfig) *Handler {
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	byName := make(map[string]Dependency, len(cfg.Dependencies))
	for _, dep := range cfg.Dependencies {
		byName[dep.Name] = dep
	}

	return &Handler{
		users:     cfg.Users,
		deps:      cfg.Dependencies,
		byName:    byName,
		startedAt: startedAt,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetOverview)
		r.Get("/stats/users", h.GetUserStats)
		r.Get("/stats/dependencies/{name}", h.GetDependency)
		r.Get("/stats/runtime", h.GetRuntimeStats)
	})
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Stats(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, OverviewResponse{
		Users:        users,
		Dependencies: h.probeAll(r.Context()),
		Runtime:      h.runtimeStats(),
	})
}

func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, stats)
}

func (h *Handler) GetDependency(w http.ResponseWriter, r *http.Request) {
	dep, ok := h.byName[chi.URLParam(r, "name")]
	if !ok {
		core.NotFound(w, "dependency")
		return
	}

	core.OK(w, probe(r.Context(), dep))
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.runtimeStats())
}

func (h *Handler) probeAll(ctx context.Context) []DependencyStatus {
	statuses := make([]DependencyStatus, len(h.deps))

	var wg sync.WaitGroup
	for i, dep := range h.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = probe(ctx, dep)
		}()
	}
	wg.Wait()

	return statuses
}

func probe(ctx context.Context, dep Dependency) DependencyStatus {
	status := DependencyStatus{Name: dep.Name}

	if dep.Ping != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		start := time.Now()
		err := dep.Ping(ctx)
		status.Latency = time.Since(start).String()
		status.Healthy = err == nil
		if err != nil {
			status.Error = err.Error()
		}
	}

	if dep.Pool != nil {
		status.Pool = dep.Pool()
	}

	return status
}

func (h *Handler) runtimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

// DatabasePool adapts sql.DBStats into a Dependency pool reporter.
func DatabasePool(stats func() sql.DBStats) func() any {
	return func() any {
		s := stats()
		return DBPoolStats{
			MaxOpenConnections: s.MaxOpenConnections,
			OpenConnections:    s.OpenConnections,
			InUse:              s.InUse,
			Idle:               s.Idle,
			WaitCount:          s.WaitCount,
			WaitDuration:       s.WaitDuration.String(),
			MaxIdleClosed:      s.MaxIdleClosed,
			MaxLifetimeClosed:  s.MaxLifetimeClosed,
		}
	}
}

// RedisPool adapts go-redis pool counters into a Dependency pool reporter.
func RedisPool(stats func() *redis.PoolStats) func() any {
	return func() any {
		s := stats()
		if s == nil {
			return nil
		}
		return RedisPoolStats{
			Hits:       s.Hits,
			Misses:     s.Misses,
			Timeouts:   s.Timeouts,
			TotalConns: s.TotalConns,
			IdleConns:  s.IdleConns,
			StaleConns: s.StaleConns,
		}
	}
}

type OverviewResponse struct {
	Users        user.Stats         `json:"users"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Runtime      RuntimeStats       `json:"runtime"`
}

type DependencyStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
	Pool    any    `json:"pool,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
