//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
	"github.com/go-chi/chi/v5"
)

type completeChatRequest struct {
	Message    string `json:"message"`
	Attachment string `json:"attachment,omitempty"`
}

type completeChatResponse struct {
	Reply string `json:"reply"`
}

// handleCompleteChat delegates to the completion gateway. Provider failures
// degrade to a fixed fallback reply; the caller always gets a 200 with a
// string, never an error. Escalation to a supervisor is a separate,
// explicit call and is never inferred from the reply text here.
func (h *Handler) handleCompleteChat(w http.ResponseWriter, r *http.Request) {
	var req completeChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.Attachment == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := r.Context()
	if h.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.completionTimeout)
		defer cancel()
	}

	reply, err := h.completer.Complete(ctx, req.Message, req.Attachment)
	if err != nil || reply == "" {
		if err != nil {
			slog.Warn("Completion provider failed, using fallback", "error", err)
		}
		reply = fallbackReply
	}

	JSON(w, http.StatusOK, completeChatResponse{Reply: reply})
}

type saveChatRequest struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Messages []domain.Message `json:"messages"`
}

func (h *Handler) handleSaveChat(w http.ResponseWriter, r *http.Request) {
	var req saveChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chat := &domain.Chat{
		ID:       req.ID,
		Title:    req.Title,
		Messages: req.Messages,
	}
	if err := h.repo.SaveChat(r.Context(), chat); err != nil {
		slog.Error("Failed to save chat", "chat_id", req.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save chat")
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.ListChats(r.Context())
	if err != nil {
		slog.Error("Failed to list chats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if summaries == nil {
		summaries = []domain.ChatSummary{}
	}
	JSON(w, http.StatusOK, summaries)
}

type chatResponse struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Messages []domain.Message `json:"messages"`
}

func (h *Handler) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	chat, err := h.repo.GetChat(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get chat", "chat_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get chat")
		return
	}
	if chat == nil {
		Error(w, http.StatusNotFound, "chat not found")
		return
	}

	JSON(w, http.StatusOK, chatResponse{ID: chat.ID, Title: chat.Title, Messages: chat.Messages})
}
