package api

import (
	"context"
	"net/http"

	"github.com/opschat/opschat/internal/log"
)

// readinessProber reports whether the cache backend is reachable.
type readinessProber interface {
	Connected(ctx context.Context) bool
}

// healthChecker probes the model backend.
type healthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	cache  readinessProber
	model  healthChecker
	logger log.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(cache readinessProber, model healthChecker, logger log.Logger) *HealthHandler {
	return &HealthHandler{cache: cache, model: model, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 while the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness reports per-dependency status. The cache being down degrades
// but does not fail readiness (the system runs without it); an unreachable
// model backend does, since it is the cascade's primary fallback.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"cache": "ok", "model": "ok"}
	code := http.StatusOK

	if h.cache == nil || !h.cache.Connected(r.Context()) {
		status["cache"] = "unavailable"
	}

	if h.model == nil {
		status["model"] = "not configured"
		code = http.StatusServiceUnavailable
	} else if err := h.model.Health(r.Context()); err != nil {
		h.logger.Warn("model readiness check failed", "error", err)
		status["model"] = "unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, status)
}
