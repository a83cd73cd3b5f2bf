// Package testhelpers provides shared utilities for integration tests: a
// running relay instance, WebSocket dialing, and event-frame assertions.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/server"
)

// Event is the decoded wire frame used by tests on both directions.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StartRelay boots a hub plus HTTP server for one test, with origins opened
// up and rate limits relaxed. Everything is torn down via t.Cleanup.
func StartRelay(t *testing.T) *httptest.Server {
	t.Helper()

	server.SetConfig(&server.Config{
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 4096,
		RateLimit: server.RateLimitConfig{
			Burst:          1000,
			RefillInterval: time.Second,
		},
	})

	hub := server.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
		server.SetConfig(nil)
	})
	return ts
}

// WebSocketURL converts a test server's base URL into its ws:// endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the relay with an accepted Origin
// header and registers cleanup.
func Dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	header := http.Header{"Origin": {ts.URL}}
	conn, resp, err := websocket.DefaultDialer.Dial(WebSocketURL(ts), header)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadEvent reads the next event frame from the connection, failing the test
// if nothing arrives within the deadline.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read event frame: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(frame, &evt); err != nil {
		t.Fatalf("failed to decode event frame %q: %v", frame, err)
	}
	return evt
}

// ExpectEvent reads the next frame and asserts its event name, returning the
// decoded payload.
func ExpectEvent(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()

	evt := ReadEvent(t, conn)
	if evt.Event != want {
		t.Fatalf("expected event %q, got %q (payload %s)", want, evt.Event, evt.Data)
	}
	return evt.Data
}

// SendEvent writes one event frame to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	frame, err := json.Marshal(Event{Event: event, Data: mustMarshal(t, data)})
	if err != nil {
		t.Fatalf("failed to marshal event frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("failed to write event frame: %v", err)
	}
}

func mustMarshal(t *testing.T, data any) json.RawMessage {
	t.Helper()

	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return raw
}
