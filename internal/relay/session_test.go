package relay

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// stalledConn blocks writes until release is closed, keeping the writer
// goroutine busy so the outbound buffer fills.
type stalledConn struct {
	fakeConn
	release chan struct{}
}

func (c *stalledConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	<-c.release
	return c.fakeConn.Write(ctx, typ, p)
}

func TestSession_SendDeliversInOrder(t *testing.T) {
	conn := &fakeConn{}
	s := newSession("s1", RoleClient, conn, 16)
	defer s.Close()

	const n = 10
	for i := 0; i < n; i++ {
		if err := s.Send(HintEvent("hint-" + strconv.Itoa(i))); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	events := waitForEvents(t, conn, n)
	for i := 0; i < n; i++ {
		want := "hint-" + strconv.Itoa(i)
		if events[i].Hint != want {
			t.Errorf("Event %d: expected hint %q, got %q", i, want, events[i].Hint)
		}
	}
}

func TestSession_SendBufferFullSurfacesError(t *testing.T) {
	conn := &stalledConn{release: make(chan struct{})}
	s := newSession("s1", RoleClient, conn, 1)
	defer s.Close()
	defer close(conn.release)

	// With the writer stalled, at most one event is in flight and one is
	// buffered; the next Send must report the drop.
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err = s.Send(HintEvent("pressure")); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("Expected ErrSendBufferFull under buffer pressure, got %v", err)
	}
}

func TestSession_SendAfterClose(t *testing.T) {
	s := newSession("s1", RoleClient, &fakeConn{}, 16)
	s.Close()

	if err := s.Send(HintEvent("late")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if !s.Closed() {
		t.Error("Expected session to report closed")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	conn := &fakeConn{}
	s := newSession("s1", RoleClient, conn, 16)

	s.Close()
	s.Close()

	if !conn.isClosed() {
		t.Error("Expected connection closed")
	}
}
