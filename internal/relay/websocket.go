package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// LifecycleHook receives session open/close notifications. The broadcast
// router uses it to track supervisor observers and replay undelivered
// resolutions on reconnect.
type LifecycleHook interface {
	SessionConnected(s *Session)
	SessionClosed(s *Session)
}

// Handler serves the duplex channel endpoint: it upgrades the HTTP request,
// registers the session, and runs the inbound read loop.
type Handler struct {
	registry *Registry
	analyzer FrameAnalyzer
	hook     LifecycleHook

	frameInterval   time.Duration
	analyzerTimeout time.Duration

	allowedOrigin string
	isDev         bool
}

// NewHandler creates a websocket handler.
func NewHandler(registry *Registry, analyzer FrameAnalyzer, frameInterval, analyzerTimeout time.Duration, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		registry:        registry,
		analyzer:        analyzer,
		frameInterval:   frameInterval,
		analyzerTimeout: analyzerTimeout,
		allowedOrigin:   allowedOrigin,
		isDev:           isDev,
	}
}

// SetLifecycleHook wires the broadcast router into session lifecycle.
func (h *Handler) SetLifecycleHook(hook LifecycleHook) {
	h.hook = hook
}

// ServeHTTP implements http.Handler for the websocket upgrade.
//
// Query parameters: "session" supplies the opaque session id (one is
// generated when absent); "role=supervisor" registers the connection as a
// supervisor observer instead of a regular client session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	role := RoleClient
	if r.URL.Query().Get("role") == string(RoleSupervisor) {
		role = RoleSupervisor
	}
	slog.Info("WebSocket connection request", "session_id", sessionID, "role", role, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}

	sess, err := h.registry.Register(sessionID, role, ws)
	if err != nil {
		slog.Warn("Session registration rejected", "session_id", sessionID, "error", err)
		h.writeJSON(ws, Event{Type: EventError, Error: "duplicate_session"})
		_ = ws.Close(websocket.StatusPolicyViolation, "duplicate session")
		return
	}
	defer h.registry.Deregister(sessionID, sess)

	if h.hook != nil {
		h.hook.SessionConnected(sess)
		defer h.hook.SessionClosed(sess)
	}

	ingest := NewIngest(sess, h.analyzer, h.frameInterval, h.analyzerTimeout)
	ingest.Start(r.Context())
	defer ingest.Stop()

	h.readLoop(r.Context(), ws, sess, ingest)
	slog.Info("Session ended", "session_id", sessionID, "frames_forwarded", ingest.Forwarded(), "frames_dropped", ingest.Dropped())
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess *Session, ingest *Ingest) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sess.ID)
			} else {
				slog.Warn("WebSocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			slog.Debug("Malformed event ignored", "session_id", sess.ID, "error", err)
			continue
		}

		switch ev.Type {
		case EventFrame:
			if ev.ImageB64 == "" {
				continue
			}
			if !ingest.Offer(ev.ImageB64) {
				slog.Debug("Frame rejected, pipeline stopped", "session_id", sess.ID)
			}
		case EventPing:
			if err := sess.Send(Event{Type: EventPong}); err != nil {
				slog.Debug("Failed to send pong", "session_id", sess.ID, "error", err)
			}
		default:
			slog.Debug("Unknown event type ignored", "session_id", sess.ID, "event_type", ev.Type)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) writeJSON(ws *websocket.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("Failed to write rejection message", "error", err)
	}
}
