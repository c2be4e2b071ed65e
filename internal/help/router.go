package help

import (
	"log/slog"
	"sync"

	"github.com/NikhilMore1/AI-AGENT/internal/domain"
	"github.com/NikhilMore1/AI-AGENT/internal/relay"
)

// Router delivers queue-state transitions to the right audience: new
// requests fan out to all supervisor observers, resolutions go to the one
// session that raised the request. Delivery to observers is best-effort
// with no persistence of missed notifications; a supervisor that connects
// late catches up via the pending listing.
type Router struct {
	registry *relay.Registry
	queue    *Queue

	mu        sync.RWMutex
	observers map[string]*relay.Session
}

// NewRouter creates a router over the given registry and queue.
func NewRouter(registry *relay.Registry, queue *Queue) *Router {
	return &Router{
		registry:  registry,
		queue:     queue,
		observers: make(map[string]*relay.Session),
	}
}

// SessionConnected implements relay.LifecycleHook. Supervisor sessions join
// the observer set; client sessions get any resolved-but-undelivered
// answers replayed onto the fresh channel.
func (rt *Router) SessionConnected(s *relay.Session) {
	if s.Role == relay.RoleSupervisor {
		rt.mu.Lock()
		rt.observers[s.ID] = s
		rt.mu.Unlock()
		slog.Info("Supervisor observer added", "session_id", s.ID)
		return
	}
	rt.replayUndelivered(s)
}

// SessionClosed implements relay.LifecycleHook.
func (rt *Router) SessionClosed(s *relay.Session) {
	if s.Role != relay.RoleSupervisor {
		return
	}
	rt.mu.Lock()
	if current, ok := rt.observers[s.ID]; ok && current == s {
		delete(rt.observers, s.ID)
	}
	rt.mu.Unlock()
	slog.Info("Supervisor observer removed", "session_id", s.ID)
}

// NotifyNewRequest fans a pending request out to all supervisor observers.
func (rt *Router) NotifyNewRequest(req *domain.HelpRequest) {
	ev := relay.NewHelpRequestEvent(req)

	rt.mu.RLock()
	observers := make([]*relay.Session, 0, len(rt.observers))
	for _, s := range rt.observers {
		observers = append(observers, s)
	}
	rt.mu.RUnlock()

	for _, s := range observers {
		if err := s.Send(ev); err != nil {
			slog.Debug("Failed to notify observer", "session_id", s.ID, "request_id", req.ID, "error", err)
		}
	}
}

// NotifyResolved delivers the answer to the request's owning session. The
// handle is looked up at delivery time, so a session that reconnected with
// the same id receives the event on its current channel. Delivery is
// claimed on the request before the send and handed back if the enqueue
// fails, so a dropped event stays replayable and a resolve racing the
// owner's reconnect replay yields one delivery, not two. Returns true if
// the event was delivered (here or by a concurrent replay); false means
// the answer stays recorded on the request for replay on reconnect.
func (rt *Router) NotifyResolved(req *domain.HelpRequest) bool {
	s := rt.registry.Lookup(req.SessionID)
	if s == nil {
		slog.Info("Resolution target not connected, answer retained", "request_id", req.ID, "session_id", req.SessionID)
		return false
	}
	if !rt.queue.ClaimDelivery(req.ID) {
		return true
	}
	if err := s.Send(relay.HelpResolvedEvent(req)); err != nil {
		rt.queue.ReleaseDelivery(req.ID)
		slog.Warn("Failed to deliver resolution, answer retained", "request_id", req.ID, "session_id", req.SessionID, "error", err)
		return false
	}
	return true
}

// ObserverCount returns the number of connected supervisor observers.
func (rt *Router) ObserverCount() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.observers)
}

func (rt *Router) replayUndelivered(s *relay.Session) {
	for _, req := range rt.queue.UndeliveredFor(s.ID) {
		if !rt.queue.ClaimDelivery(req.ID) {
			continue
		}
		if err := s.Send(relay.HelpResolvedEvent(req)); err != nil {
			rt.queue.ReleaseDelivery(req.ID)
			slog.Warn("Failed to replay resolution", "request_id", req.ID, "session_id", s.ID, "error", err)
			continue
		}
		slog.Info("Replayed undelivered resolution", "request_id", req.ID, "session_id", s.ID)
	}
}
