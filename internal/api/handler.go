//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/help"
	"github.com/NikhilMore1/AI-AGENT/internal/relay"
	"github.com/NikhilMore1/AI-AGENT/internal/store"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize is the maximum allowed request body. 4MB: chat
// attachments arrive as descriptors, not payloads, but saved transcripts
// can be large.
const maxRequestBodySize = 4 << 20

// fallbackReply is returned whenever the completion provider fails or
// produces no usable text. The completeChat surface never fails outright.
const fallbackReply = "⚠️ No valid response from Gemini."

// Completer is the chat completion gateway contract. Implemented by the
// Gemini client.
type Completer interface {
	Complete(ctx context.Context, message, attachment string) (string, error)
}

// Handler serves the request/response surface: chat completion, help
// request operations, and transcript persistence.
type Handler struct {
	repo      store.Repository
	queue     *help.Queue
	router    *help.Router
	registry  *relay.Registry
	completer Completer

	completionTimeout time.Duration
}

// NewHandler creates a new Handler with its dependencies.
func NewHandler(repo store.Repository, queue *help.Queue, router *help.Router, registry *relay.Registry, completer Completer, completionTimeout time.Duration) *Handler {
	return &Handler{
		repo:              repo,
		queue:             queue,
		router:            router,
		registry:          registry,
		completer:         completer,
		completionTimeout: completionTimeout,
	}
}

// RegisterRoutes mounts the API endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.handleCompleteChat)

		r.Post("/help-requests", h.handleCreateHelpRequest)
		r.Get("/help-requests", h.handleListPendingHelpRequests)
		r.Get("/help-requests/audit", h.handleListHelpRequestAudit)
		r.Post("/help-requests/{id}/resolve", h.handleResolveHelpRequest)

		r.Post("/chats", h.handleSaveChat)
		r.Get("/chats", h.handleListChats)
		r.Get("/chats/{id}", h.handleGetChat)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
