// Package server exposes HTTP handlers, including WebSocket upgrades, the
// health check, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler returns the upgrade handler for the given hub. It upgrades
// the HTTP connection, creates a Client with a fresh connection id, and hands
// it to the hub, which launches the pump goroutines and acknowledges the
// connection.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		hub.register <- client
	}
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "ok")
}

// TestPageHandler serves an HTML page for poking the relay by hand: connect,
// join a room, send messages, and watch the event stream.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
            font-size: 12px;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>Relay Test</h1>
    <div>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="roomInput" placeholder="Room name" value="lobby">
        <button onclick="send('join', {room: roomInput.value})">Join</button>
        <button onclick="send('leave', {room: roomInput.value})">Leave</button>
        <button onclick="send('get_participants', {room: roomInput.value})">Participants</button>
    </div>
    <div>
        <input type="text" id="nameInput" placeholder="Display name">
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>
    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const roomInput = document.getElementById('roomInput');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const connectButton = document.getElementById('connectButton');

        function log(text) {
            const el = document.createElement('div');
            el.textContent = text;
            eventsDiv.appendChild(el);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function send(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                log('not connected');
                return;
            }
            const frame = JSON.stringify({event: event, data: data});
            ws.send(frame);
            log('>> ' + frame);
        }

        function sendMessage() {
            send('message', {
                room: roomInput.value,
                message: messageInput.value,
                username: nameInput.value || undefined
            });
            messageInput.value = '';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => { log('connected'); connectButton.textContent = 'Disconnect'; };
            ws.onmessage = (e) => log('<< ' + e.data);
            ws.onclose = () => { log('connection closed'); connectButton.textContent = 'Connect'; ws = null; };
            ws.onerror = (e) => log('connection error');
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("error writing HTML response", "error", err)
	}
}
