//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
	"github.com/NikhilMore1/AI-AGENT/internal/help"
	"github.com/NikhilMore1/AI-AGENT/internal/relay"
	"github.com/go-chi/chi/v5"
)

// escalationHint is sent to the originating session when its question is
// escalated. Advisory only.
const escalationHint = "Your question was sent to a human supervisor. You'll be notified here when it is answered."

type createHelpRequestBody struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

type helpRequestView struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	CreatedAt string `json:"created_at"`
}

func helpRequestToView(req *domain.HelpRequest) helpRequestView {
	return helpRequestView{
		ID:        req.ID,
		SessionID: req.SessionID,
		Question:  req.Question,
		CreatedAt: req.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// handleCreateHelpRequest records an escalation and fans it out to
// supervisor observers.
func (h *Handler) handleCreateHelpRequest(w http.ResponseWriter, r *http.Request) {
	var body createHelpRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.SessionID == "" {
		Error(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		Error(w, http.StatusBadRequest, "question is required")
		return
	}

	req := h.queue.Create(body.SessionID, body.Question)
	h.router.NotifyNewRequest(req)

	// Advisory hint back to the session that raised the question.
	if s := h.registry.Lookup(body.SessionID); s != nil {
		if err := s.Send(relay.HintEvent(escalationHint)); err != nil {
			slog.Debug("Failed to send escalation hint", "session_id", body.SessionID, "error", err)
		}
	}

	JSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (h *Handler) handleListPendingHelpRequests(w http.ResponseWriter, _ *http.Request) {
	pending := h.queue.ListPending()

	views := make([]helpRequestView, 0, len(pending))
	for _, req := range pending {
		views = append(views, helpRequestToView(req))
	}
	JSON(w, http.StatusOK, views)
}

type resolveHelpRequestBody struct {
	Answer string `json:"answer"`
}

type resolveHelpRequestResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// handleResolveHelpRequest transitions a request to resolved and routes the
// answer to the owning session. The state transition succeeds even if that
// session is gone; the answer is retained for replay on reconnect.
func (h *Handler) handleResolveHelpRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body resolveHelpRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Answer) == "" {
		Error(w, http.StatusBadRequest, "answer is required")
		return
	}

	req, err := h.queue.Resolve(id, body.Answer)
	switch {
	case errors.Is(err, help.ErrNotFound):
		JSON(w, http.StatusNotFound, resolveHelpRequestResponse{OK: false, Error: "not_found"})
		return
	case errors.Is(err, help.ErrAlreadyResolved):
		JSON(w, http.StatusConflict, resolveHelpRequestResponse{OK: false, Error: "already_resolved"})
		return
	case err != nil:
		slog.Error("Failed to resolve help request", "request_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to resolve help request")
		return
	}

	h.router.NotifyResolved(req)

	JSON(w, http.StatusOK, resolveHelpRequestResponse{OK: true})
}

// handleListHelpRequestAudit exposes the persisted audit trail, resolved
// requests included.
func (h *Handler) handleListHelpRequestAudit(w http.ResponseWriter, r *http.Request) {
	requests, err := h.repo.ListHelpRequests(r.Context())
	if err != nil {
		slog.Error("Failed to list help request audit", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list help requests")
		return
	}

	type auditView struct {
		helpRequestView
		Status     string `json:"status"`
		Answer     string `json:"answer,omitempty"`
		Delivered  bool   `json:"delivered"`
		ResolvedAt string `json:"resolved_at,omitempty"`
	}

	views := make([]auditView, 0, len(requests))
	for _, req := range requests {
		v := auditView{
			helpRequestView: helpRequestToView(req),
			Status:          string(req.Status),
			Answer:          req.Answer,
			Delivered:       req.Delivered,
		}
		if !req.ResolvedAt.IsZero() {
			v.ResolvedAt = req.ResolvedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}
	JSON(w, http.StatusOK, views)
}
