package integration

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/server"
	"chatrelay/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	req := require.New(t)
	ts := testhelpers.StartRelay(t)

	for _, path := range []string{"/health", "/"} {
		resp, err := http.Get(ts.URL + path)
		req.NoError(err)
		body, err := io.ReadAll(resp.Body)
		req.NoError(err)
		req.NoError(resp.Body.Close())
		req.Equal(http.StatusOK, resp.StatusCode)
		req.Equal("ok", string(body))
	}
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	req := require.New(t)
	ts := testhelpers.StartRelay(t)

	resp, err := http.Post(ts.URL+"/ws", "application/json", nil)
	req.NoError(err)
	req.NoError(resp.Body.Close())
	req.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDisallowedOriginIsBlocked(t *testing.T) {
	req := require.New(t)

	server.SetConfig(&server.Config{AllowedOrigins: []string{"http://allowed.example"}})
	t.Cleanup(func() { server.SetConfig(nil) })

	hub := server.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	header := http.Header{"Origin": {"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts), header)
	if conn != nil {
		_ = conn.Close()
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	req.Error(err)

	// No Origin header at all is also rejected.
	conn, resp, err = websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts), nil)
	if conn != nil {
		_ = conn.Close()
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	req.Error(err)
}

func TestGracefulShutdownWithActiveClient(t *testing.T) {
	req := require.New(t)

	server.SetConfig(&server.Config{AllowedOrigins: []string{"*"}})
	t.Cleanup(func() { server.SetConfig(nil) })

	hub := server.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(ts.Close)

	conn := testhelpers.Dial(t, ts)
	testhelpers.ExpectEvent(t, conn, "connected")
	testhelpers.SendEvent(t, conn, "join", map[string]string{"room": "lobby"})
	testhelpers.ExpectEvent(t, conn, "joined")

	req.NoError(hub.Shutdown(3 * time.Second))
}
