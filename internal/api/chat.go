package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opschat/opschat/internal/log"
)

// MaxMessageLength bounds inbound chat messages.
const MaxMessageLength = 4000

// chatService routes one message to a response. Consumer-defined; the
// orchestrator satisfies it.
type chatService interface {
	HandleMessage(ctx context.Context, message, sessionID string) string
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	svc    chatService
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc chatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the chat request body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ChatResponse is the chat response body.
type ChatResponse struct {
	Response  string    `json:"response"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// handleChat routes one message through the orchestrator.
//
// Backend failures still produce HTTP 200 with a formatted chat body: a
// user-visible failure is a normal chat response, never an HTTP-layer
// abort, so conversational continuity is preserved during outages.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "MISSING_MESSAGE", "message is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "MESSAGE_TOO_LONG", "message exceeds 4000 characters")
		return
	}

	// A fresh conversation gets a generated id the client keeps for
	// follow-ups.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	response := h.svc.HandleMessage(r.Context(), req.Message, req.SessionID)

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:  response,
		SessionID: req.SessionID,
		Timestamp: time.Now().UTC(),
	})
}
