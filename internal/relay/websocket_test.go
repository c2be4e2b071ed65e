package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dialSession(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/?" + query

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to decode event %q: %v", data, err)
	}
	return ev
}

func sendEvent(t *testing.T, ws *websocket.Conn, ev Event) {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}

func TestWebSocket_FrameBurstYieldsOneAnalysis(t *testing.T) {
	registry := NewRegistry(16)
	analyzer := &fakeAnalyzer{}
	handler := NewHandler(registry, analyzer, 50*time.Millisecond, time.Second, "", true)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ws := dialSession(t, srv, "session=S1")
	defer ws.Close(websocket.StatusNormalClosure, "done")

	// Two frames within a fraction of the interval.
	sendEvent(t, ws, Event{Type: EventFrame, ImageB64: "AAAA"})
	sendEvent(t, ws, Event{Type: EventFrame, ImageB64: "BBBB"})

	ev := readEvent(t, ws)
	if ev.Type != EventAnalysis {
		t.Fatalf("Expected analysis event, got %+v", ev)
	}
	if ev.Analysis != "analysis of BBBB" {
		t.Errorf("Expected most recent frame analyzed, got %q", ev.Analysis)
	}

	time.Sleep(60 * time.Millisecond)
	if got := len(analyzer.seen()); got != 1 {
		t.Errorf("Expected exactly 1 analyzer invocation, got %d", got)
	}
}

func TestWebSocket_DuplicateSessionRejected(t *testing.T) {
	registry := NewRegistry(16)
	handler := NewHandler(registry, &fakeAnalyzer{}, 50*time.Millisecond, time.Second, "", true)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	first := dialSession(t, srv, "session=S1")
	defer first.Close(websocket.StatusNormalClosure, "done")

	// Give the first connection time to register.
	deadline := time.Now().Add(time.Second)
	for registry.Lookup("S1") == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Lookup("S1") == nil {
		t.Fatal("First session never registered")
	}

	second := dialSession(t, srv, "session=S1")
	defer second.Close(websocket.StatusNormalClosure, "done")

	ev := readEvent(t, second)
	if ev.Type != EventError || ev.Error != "duplicate_session" {
		t.Errorf("Expected duplicate_session error event, got %+v", ev)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	registry := NewRegistry(16)
	handler := NewHandler(registry, &fakeAnalyzer{}, 50*time.Millisecond, time.Second, "", true)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ws := dialSession(t, srv, "session=S1")
	defer ws.Close(websocket.StatusNormalClosure, "done")

	sendEvent(t, ws, Event{Type: EventPing})

	ev := readEvent(t, ws)
	if ev.Type != EventPong {
		t.Errorf("Expected pong, got %+v", ev)
	}
}

func TestWebSocket_DeregisterOnClose(t *testing.T) {
	registry := NewRegistry(16)
	handler := NewHandler(registry, &fakeAnalyzer{}, 50*time.Millisecond, time.Second, "", true)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ws := dialSession(t, srv, "session=S1")

	deadline := time.Now().Add(time.Second)
	for registry.Lookup("S1") == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Lookup("S1") == nil {
		t.Fatal("Session never registered")
	}

	if err := ws.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for registry.Lookup("S1") != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if registry.Lookup("S1") != nil {
		t.Error("Expected session deregistered after close")
	}
}
