package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/defi-assistant/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports a live size.
type Counter interface {
	Count() int
}

// HealthHandler serves health and runtime statistics.
type HealthHandler struct {
	repo       Pinger
	timeout    time.Duration
	metrics    *metrics.Collector
	sessions   Counter
	rooms      func() int
	cacheLen   func() int
	candidates []string
}

// HealthConfig wires a HealthHandler. Nil fields are reported as disabled.
type HealthConfig struct {
	Repo       Pinger
	Timeout    time.Duration
	Metrics    *metrics.Collector
	Sessions   Counter
	Rooms      func() int
	CacheLen   func() int
	Candidates []string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(cfg HealthConfig) *HealthHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HealthHandler{
		repo:       cfg.Repo,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
		sessions:   cfg.Sessions,
		rooms:      cfg.Rooms,
		cacheLen:   cfg.CacheLen,
		candidates: append([]string(nil), cfg.Candidates...),
	}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	switch {
	case h.repo == nil:
		checks["database"] = "disabled"
	case h.repo.Ping(ctx) != nil:
		slog.Error("Health check failed", "check", "database")
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	default:
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// Stats returns pipeline metrics and hub occupancy.
func (h *HealthHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{
		"candidates": h.candidates,
	}
	if h.metrics != nil {
		out["metrics"] = h.metrics.Snapshot()
	}
	if h.sessions != nil {
		out["sessions"] = h.sessions.Count()
	}
	if h.rooms != nil {
		out["rooms"] = h.rooms()
	}
	if h.cacheLen != nil {
		out["cacheEntries"] = h.cacheLen()
	}
	JSON(w, http.StatusOK, out)
}

// RegisterRoutes registers the health and stats routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/stats", h.Stats)
}
