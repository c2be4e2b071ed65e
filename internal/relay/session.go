// Package relay implements the real-time session relay: the per-client
// duplex channel, the session registry, and the screen-frame ingest
// pipeline.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single outbound websocket write.
const writeTimeout = 10 * time.Second

var (
	// ErrSessionClosed is returned by Send after a session's channel has
	// been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned by Send when the outbound buffer is
	// full and the event was dropped. Callers that must not lose the event
	// treat it as a failed delivery.
	ErrSendBufferFull = errors.New("session send buffer full")
)

// Role distinguishes end-user sessions from supervisor observers.
type Role string

const (
	// RoleClient is a regular end-user session.
	RoleClient Role = "client"
	// RoleSupervisor is a human supervisor observing the help queue.
	RoleSupervisor Role = "supervisor"
)

// Conn is the subset of the websocket connection the session handle needs.
// Satisfied by *websocket.Conn.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Session is the handle for one live duplex channel. The registry owns the
// session -> handle mapping; the handle owns the connection's outbound
// direction. All sends go through a single writer goroutine so outbound
// events are delivered in the order they were enqueued.
type Session struct {
	ID        string
	Role      Role
	CreatedAt time.Time

	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(id string, role Role, conn Conn, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	s := &Session{
		ID:        id,
		Role:      role,
		CreatedAt: time.Now(),
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Send enqueues an event for delivery over the duplex channel. It never
// blocks: if the session is closed it returns ErrSessionClosed, and if the
// outbound buffer is full the event is dropped and ErrSendBufferFull is
// returned so the caller can decide whether the loss matters.
func (s *Session) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		slog.Warn("Session send buffer full, dropping event", "session_id", s.ID, "event_type", ev.Type)
		return ErrSendBufferFull
	}
}

// Done is closed when the session's channel is closed. The frame ingest
// loop bound to this session watches it to stop accepting frames.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close terminates the writer goroutine and closes the underlying
// connection. Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(websocket.StatusNormalClosure, "session closed"); err != nil {
			slog.Debug("Failed to close websocket", "session_id", s.ID, "error", err)
		}
	})
}

func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := s.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				select {
				case <-s.done:
					// Connection closing, write errors are expected.
				default:
					slog.Debug("WebSocket write error", "session_id", s.ID, "error", err)
				}
			}
		case <-s.done:
			return
		}
	}
}
