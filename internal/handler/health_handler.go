package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"cleansight/pkg/logger"
)

// HealthCheck pings one dependency
type HealthCheck = func(ctx context.Context) error

// HealthHandler handles health check requests
type HealthHandler struct {
	checks  map[string]HealthCheck
	version string
	logger  *logger.Logger
}

// NewHealthHandler creates a health handler; checks may be empty in memory mode
func NewHealthHandler(checks map[string]HealthCheck, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		logger:  log.Named("health"),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Service      string            `json:"service"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Service:   "cleansight",
	}
	status := http.StatusOK

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		response.Dependencies = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			response.Dependencies[name] = "down"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Dependencies[name] = "up"
	}

	respondJSON(w, status, response, h.logger)
}
