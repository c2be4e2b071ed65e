package help

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/NikhilMore1/AI-AGENT/internal/relay"
	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	c.writes = append(c.writes, buf)
	return nil
}

func (c *fakeConn) Close(_ websocket.StatusCode, _ string) error { return nil }

// stalledConn blocks writes until release is closed so the session's
// outbound buffer fills up.
type stalledConn struct {
	fakeConn
	release chan struct{}
}

func (c *stalledConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	<-c.release
	return c.fakeConn.Write(ctx, typ, p)
}

func (c *fakeConn) events(t *testing.T) []relay.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]relay.Event, 0, len(c.writes))
	for _, raw := range c.writes {
		var ev relay.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("Failed to decode event %q: %v", raw, err)
		}
		events = append(events, ev)
	}
	return events
}

func waitForEvents(t *testing.T, c *fakeConn, n int) []relay.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := c.events(t); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d events, got %d", n, len(c.events(t)))
	return nil
}

func TestRouter_NotifyResolvedDeliversToOwner(t *testing.T) {
	registry := relay.NewRegistry(16)
	queue := NewQueue(nil)
	router := NewRouter(registry, queue)

	ownerConn := &fakeConn{}
	owner, err := registry.Register("s1", relay.RoleClient, ownerConn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer registry.Deregister("s1", owner)

	bystanderConn := &fakeConn{}
	bystander, err := registry.Register("s2", relay.RoleClient, bystanderConn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer registry.Deregister("s2", bystander)

	req := queue.Create("s1", "What is the refund policy?")
	resolved, err := queue.Resolve(req.ID, "30-day refund")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !router.NotifyResolved(resolved) {
		t.Fatal("Expected delivery to succeed")
	}

	events := waitForEvents(t, ownerConn, 1)
	if events[0].Type != relay.EventHelpResolved {
		t.Errorf("Expected help_resolved event, got %q", events[0].Type)
	}
	if events[0].Answer != "30-day refund" {
		t.Errorf("Expected answer in event, got %q", events[0].Answer)
	}
	if len(events) != 1 {
		t.Errorf("Expected exactly one delivery, got %d", len(events))
	}

	if got := bystanderConn.events(t); len(got) != 0 {
		t.Errorf("Bystander session must not receive resolutions, got %v", got)
	}

	if missed := queue.UndeliveredFor("s1"); len(missed) != 0 {
		t.Errorf("Expected request marked delivered, got undelivered %v", missed)
	}
}

func TestRouter_NotifyResolvedSessionGone(t *testing.T) {
	registry := relay.NewRegistry(16)
	queue := NewQueue(nil)
	router := NewRouter(registry, queue)

	req := queue.Create("s1", "question")
	resolved, err := queue.Resolve(req.ID, "answer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if router.NotifyResolved(resolved) {
		t.Error("Expected delivery to fail for unregistered session")
	}

	missed := queue.UndeliveredFor("s1")
	if len(missed) != 1 || missed[0].Answer != "answer" {
		t.Fatalf("Expected answer retained for replay, got %v", missed)
	}
}

func TestRouter_NotifyResolvedBufferPressureRetainsAnswer(t *testing.T) {
	registry := relay.NewRegistry(1)
	queue := NewQueue(nil)
	router := NewRouter(registry, queue)

	conn := &stalledConn{release: make(chan struct{})}
	sess, err := registry.Register("s1", relay.RoleClient, conn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer registry.Deregister("s1", sess)

	// Fill the outbound buffer while the writer is stalled.
	fillDeadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(fillDeadline) {
		if sess.Send(relay.HintEvent("pressure")) != nil {
			break
		}
	}

	req := queue.Create("s1", "question")
	resolved, err := queue.Resolve(req.ID, "answer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if router.NotifyResolved(resolved) {
		t.Error("Expected delivery to fail when the event is dropped")
	}
	missed := queue.UndeliveredFor("s1")
	if len(missed) != 1 || missed[0].ID != req.ID {
		t.Fatalf("Expected dropped answer retained for replay, got %v", missed)
	}

	// Once the channel drains, a reconnect replays the answer.
	close(conn.release)
	registry.Deregister("s1", sess)

	conn2 := &fakeConn{}
	sess2, err := registry.Register("s1", relay.RoleClient, conn2)
	if err != nil {
		t.Fatalf("Re-register failed: %v", err)
	}
	defer registry.Deregister("s1", sess2)

	router.SessionConnected(sess2)

	events := waitForEvents(t, conn2, 1)
	if events[0].Type != relay.EventHelpResolved || events[0].Answer != "answer" {
		t.Fatalf("Expected replayed resolution, got %+v", events[0])
	}
	if missed := queue.UndeliveredFor("s1"); len(missed) != 0 {
		t.Errorf("Expected request delivered after replay, got undelivered %v", missed)
	}
}

func TestRouter_FanOutToObservers(t *testing.T) {
	registry := relay.NewRegistry(16)
	queue := NewQueue(nil)
	router := NewRouter(registry, queue)

	sup1Conn, sup2Conn := &fakeConn{}, &fakeConn{}
	sup1, _ := registry.Register("sup1", relay.RoleSupervisor, sup1Conn)
	sup2, _ := registry.Register("sup2", relay.RoleSupervisor, sup2Conn)
	defer registry.Deregister("sup1", sup1)
	defer registry.Deregister("sup2", sup2)

	clientConn := &fakeConn{}
	client, _ := registry.Register("s1", relay.RoleClient, clientConn)
	defer registry.Deregister("s1", client)

	router.SessionConnected(sup1)
	router.SessionConnected(sup2)
	router.SessionConnected(client)

	if got := router.ObserverCount(); got != 2 {
		t.Fatalf("Expected 2 observers, got %d", got)
	}

	req := queue.Create("s1", "What is the refund policy?")
	router.NotifyNewRequest(req)

	for _, conn := range []*fakeConn{sup1Conn, sup2Conn} {
		events := waitForEvents(t, conn, 1)
		if events[0].Type != relay.EventNewHelpRequest {
			t.Errorf("Expected new_help_request event, got %q", events[0].Type)
		}
		if events[0].Question != "What is the refund policy?" {
			t.Errorf("Expected question in event, got %q", events[0].Question)
		}
	}
	if got := clientConn.events(t); len(got) != 0 {
		t.Errorf("Client session must not receive fan-out, got %v", got)
	}

	router.SessionClosed(sup1)
	if got := router.ObserverCount(); got != 1 {
		t.Errorf("Expected 1 observer after close, got %d", got)
	}
}

func TestRouter_ReplaysUndeliveredOnReconnect(t *testing.T) {
	registry := relay.NewRegistry(16)
	queue := NewQueue(nil)
	router := NewRouter(registry, queue)

	req := queue.Create("s1", "question")
	resolved, err := queue.Resolve(req.ID, "answer")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	router.NotifyResolved(resolved) // session gone, retained

	conn := &fakeConn{}
	sess, err := registry.Register("s1", relay.RoleClient, conn)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer registry.Deregister("s1", sess)

	router.SessionConnected(sess)

	events := waitForEvents(t, conn, 1)
	if events[0].Type != relay.EventHelpResolved || events[0].Answer != "answer" {
		t.Fatalf("Expected replayed resolution, got %+v", events[0])
	}

	// A second reconnect replays nothing.
	registry.Deregister("s1", sess)
	conn2 := &fakeConn{}
	sess2, err := registry.Register("s1", relay.RoleClient, conn2)
	if err != nil {
		t.Fatalf("Re-register failed: %v", err)
	}
	defer registry.Deregister("s1", sess2)

	router.SessionConnected(sess2)
	time.Sleep(50 * time.Millisecond)
	if got := conn2.events(t); len(got) != 0 {
		t.Errorf("Expected no replay after delivery, got %v", got)
	}
}
