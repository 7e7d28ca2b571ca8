package api

import (
	"context"
	"net/http"

	"github.com/opschat/opschat/internal/log"
)

// cacheAdmin exposes administrative cache invalidation. Consumer-defined;
// the orchestrator satisfies it.
type cacheAdmin interface {
	InvalidateCache(ctx context.Context, pattern string) int
}

// AdminHandler handles administrative endpoints.
type AdminHandler struct {
	admin  cacheAdmin
	logger log.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(admin cacheAdmin, logger log.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// RegisterRoutes registers admin routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /api/cache", h.invalidate)
}

// invalidate removes cached entries matching the pattern query parameter.
func (h *AdminHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PATTERN", "pattern query parameter is required")
		return
	}

	removed := h.admin.InvalidateCache(r.Context(), pattern)
	h.logger.Info("cache invalidated", "pattern", pattern, "removed", removed)

	writeJSON(w, http.StatusOK, map[string]any{
		"pattern": pattern,
		"removed": removed,
	})
}
