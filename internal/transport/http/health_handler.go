package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"emis/internal/services"
)

// HealthChecker is the health surface the handler depends on
type HealthChecker interface {
	GetHealth(ctx context.Context) *services.HealthStatus
	GetReadiness(ctx context.Context) (bool, map[string]string)
	GetStats(ctx context.Context) *services.SystemStats
}

// HealthHandler serves liveness, readiness, and stats endpoints
type HealthHandler struct {
	service HealthChecker
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler
func NewHealthHandler(service HealthChecker, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes mounts the health endpoints
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetHealth)
	r.Get("/live", h.GetLiveness)
	r.Get("/ready", h.GetReadiness)
	r.Get("/stats", h.GetStats)
	return r
}

// GetLiveness answers as long as the process serves requests
func (h *HealthHandler) GetLiveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// GetHealth returns the overall health status. Degraded still answers
// 200 so load balancers keep routing; only hard failure flips it.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	health := h.service.GetHealth(r.Context())
	render.JSON(w, r, health)
}

// GetReadiness reports whether the service can accept study runs
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ready, checks := h.service.GetReadiness(r.Context())

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

// GetStats returns operational counters
func (h *HealthHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetStats(r.Context()))
}
