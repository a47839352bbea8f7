package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"emis/internal/config"
	"emis/internal/infrastructure"
	"emis/internal/operations"
)

// ClientCounter reports how many WebSocket observers are connected
type ClientCounter interface {
	ClientCount() int
}

// RunLister reports the known study runs
type RunLister interface {
	ListRuns() []*operations.RunState
}

// HealthStatus is the health check response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]string      `json:"services,omitempty"`
	Stats     *SystemStats           `json:"stats,omitempty"`
}

// SystemStats carries operational counters for the stats endpoint
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveRuns       int     `json:"active_runs"`
	CompletedRuns    int     `json:"completed_runs"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// HealthService provides liveness, readiness, and stats checks
type HealthService struct {
	version   string
	paths     *config.Paths
	hub       ClientCounter
	runs      RunLister
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service with injected dependencies
func NewHealthService(version string, paths *config.Paths, hub ClientCounter, runs RunLister, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		version:   version,
		paths:     paths,
		hub:       hub,
		runs:      runs,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// GetHealth returns the overall health status. Degraded means the
// service runs but a dependency is impaired; requests still succeed.
func (s *HealthService) GetHealth(ctx context.Context) *HealthStatus {
	services := map[string]string{
		"cache_dir":   s.checkDir(s.paths.CacheDir),
		"reports_dir": s.checkDir(s.paths.ReportsDir),
	}

	status := "healthy"
	for _, state := range services {
		if state != "healthy" {
			status = "degraded"
			break
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Runtime: map[string]interface{}{
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
		},
		Services: services,
	}
}

// GetReadiness reports whether the service can accept study runs
func (s *HealthService) GetReadiness(ctx context.Context) (bool, map[string]string) {
	checks := map[string]string{
		"cache_dir":   s.checkDir(s.paths.CacheDir),
		"reports_dir": s.checkDir(s.paths.ReportsDir),
	}
	ready := true
	for _, state := range checks {
		if state != "healthy" {
			ready = false
		}
	}
	return ready, checks
}

// GetStats returns operational counters
func (s *HealthService) GetStats(ctx context.Context) *SystemStats {
	stats := &SystemStats{
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}

	if s.hub != nil {
		stats.WebSocketClients = s.hub.ClientCount()
	}
	if s.runs != nil {
		for _, run := range s.runs.ListRuns() {
			if run.IsTerminal() {
				stats.CompletedRuns++
			} else {
				stats.ActiveRuns++
			}
		}
	}
	return stats
}

func (s *HealthService) checkDir(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "unavailable"
	}
	return "healthy"
}
