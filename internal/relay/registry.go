package relay

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDuplicateSession is returned by Register when the session id already
// has a live channel. Registration is rejected rather than replacing the
// existing handle, so two connections can never race for one session.
var ErrDuplicateSession = errors.New("session already registered")

// Registry is the process-wide table of live sessions. It is the only
// component that mutates the session -> handle mapping; everything else
// reaches sessions through Lookup.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	sendBuffer int
}

// NewRegistry creates an empty session registry. sendBuffer sizes each
// session's outbound event buffer.
func NewRegistry(sendBuffer int) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		sendBuffer: sendBuffer,
	}
}

// Register creates a session handle for the connection and records it under
// the given id. Fails with ErrDuplicateSession if the id is already live.
func (r *Registry) Register(sessionID string, role Role, conn Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, ErrDuplicateSession
	}

	s := newSession(sessionID, role, conn, r.sendBuffer)
	r.sessions[sessionID] = s
	slog.Info("Session registered", "session_id", sessionID, "role", role)
	return s, nil
}

// Lookup returns the live handle for a session id, or nil if none is
// registered. The lookup happens at call time: a session that reconnected
// with the same id yields its current handle, not a stale one.
func (r *Registry) Lookup(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// Deregister removes and closes the session's handle. Only the exact handle
// passed in is removed, so a stale deregister after a reconnect cannot
// evict the new channel. Idempotent.
func (r *Registry) Deregister(sessionID string, s *Session) {
	r.mu.Lock()
	current, exists := r.sessions[sessionID]
	if exists && current == s {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if exists && current == s {
		s.Close()
		slog.Info("Session deregistered", "session_id", sessionID)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
