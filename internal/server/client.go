// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents one WebSocket connection in the relay. The id is assigned
// at upgrade time and is the connection's identity everywhere in the core:
// membership entries, presence events, and server-stamped message metadata.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	logger         *slog.Logger
}

// NewClient creates a Client for the given WebSocket connection, assigning it
// a fresh connection id. The send channel is buffered to absorb fan-out
// bursts without blocking the emitting goroutine.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		closed:         false,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
		logger:         hub.logger,
	}
}

// ID returns the connection id assigned at creation.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.logger.Error("error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.logger.Error("error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs the error by category and returns true if the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn("inbound frame exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Info("client disconnected", "sid", c.id, "addr", c.addr, "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Info("client connection closed", "sid", c.id, "addr", c.addr, "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn("unexpected websocket error", "addr", c.addr, "error", err)
		return true
	}

	c.logger.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit returns true if the inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("rate limit exceeded, discarding frame",
			"sid", c.id, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		// During hub shutdown the run loop is gone; skip the handoff instead
		// of blocking on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.logger.Error("error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.hub.dispatch(c, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleOutbound(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return c.writeCloseMessage()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected
// failures.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error("error closing connection in writePump", "error", err)
		}
	}
}

// handleOutbound writes one outbound frame and returns false if the
// connection should be closed.
func (c *Client) handleOutbound(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Error("error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeFrame(message)
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error("error writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

// writeFrame writes one event frame. Unlike a raw chat stream, envelope
// frames are never coalesced: each outbound event is its own WebSocket
// message so clients can decode them independently.
func (c *Client) writeFrame(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error("error writing frame", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// handlePing sends a ping to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.logger.Error("error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Error("error writing ping message", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
