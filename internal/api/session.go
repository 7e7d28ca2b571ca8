package api

import (
	"context"
	"net/http"

	"github.com/opschat/opschat/internal/log"
	"github.com/opschat/opschat/internal/session"
)

// sessionReader exposes read-only session access. Consumer-defined; the
// orchestrator satisfies it.
type sessionReader interface {
	Session(ctx context.Context, id string) *session.Session
	SessionStats(ctx context.Context, id string) session.Stats
}

// SessionHandler handles session introspection endpoints.
type SessionHandler struct {
	sessions sessionReader
	logger   log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(sessions sessionReader, logger log.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("GET /api/sessions/{id}/stats", h.stats)
}

// get returns the full session record. Unknown ids yield a freshly created
// session; lazily creating on first reference is the session contract.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SESSION_ID", "session id is required")
		return
	}

	writeJSON(w, http.StatusOK, h.sessions.Session(r.Context(), id))
}

// stats returns the derived session summary.
func (h *SessionHandler) stats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_SESSION_ID", "session id is required")
		return
	}

	writeJSON(w, http.StatusOK, h.sessions.SessionStats(r.Context(), id))
}
