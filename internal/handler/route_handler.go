package handler

import (
	"net/http"
	"strings"

	"cleansight/internal/domain"
	"cleansight/internal/guard"
	"cleansight/internal/middleware"
	"cleansight/pkg/errors"
	"cleansight/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// RouteHandler exposes guard decisions and page descriptors to the SPA
type RouteHandler struct {
	logger *logger.Logger
}

func NewRouteHandler(log *logger.Logger) *RouteHandler {
	return &RouteHandler{logger: log.Named("route_handler")}
}

// ResolveResponse is the guard decision for one path
type ResolveResponse struct {
	Success  bool           `json:"success"`
	Path     string         `json:"path"`
	Decision guard.Decision `json:"decision"`
}

// Resolve handles GET /api/routes/resolve?path=
func (h *RouteHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, "/") {
		writeError(w, r, errors.NewValidationError("path must start with /", map[string]interface{}{"path": path}), h.logger)
		return
	}
	snap, ok := middleware.SnapshotFrom(r.Context())
	if !ok {
		writeError(w, r, errors.NewInternalError("Session not loaded", nil), h.logger)
		return
	}

	d := guard.Resolve(path, guard.View{Loading: snap.Loading, User: snap.User})
	respondJSON(w, http.StatusOK, ResolveResponse{Success: true, Path: path, Decision: d}, h.logger)
}

// PageResponse describes a page the guard let through
type PageResponse struct {
	Page        string        `json:"page"`
	Path        string        `json:"path"`
	RequireAuth bool          `json:"require_auth"`
	Roles       []domain.Role `json:"roles,omitempty"`
	User        *domain.User  `json:"user,omitempty"`
}

// Page serves the descriptor for a route in the table. Mount behind PageGuard.
func (h *RouteHandler) Page(route domain.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, _ := middleware.SnapshotFrom(r.Context())
		respondJSON(w, http.StatusOK, PageResponse{
			Page:        route.Name,
			Path:        route.Path,
			RequireAuth: route.RequireAuth,
			Roles:       route.Roles,
			User:        snap.User,
		}, h.logger)
	}
}

// MountPages registers every route in the table on r
func (h *RouteHandler) MountPages(r chi.Router) {
	for _, route := range domain.Routes() {
		r.Get(route.Path, h.Page(route))
	}
}

// NotFound is the fallback for unknown paths
func (h *RouteHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errors.NewNotFoundError("Page not found"), h.logger)
}
