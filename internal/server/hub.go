// Package server coordinates connection registration, event dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Hub is the connection registry: it tracks live clients by their assigned
// connection id, acknowledges new connections, and on disconnect drives the
// membership cleanup cascade. It implements Emitter for the presence notifier
// and the message router.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	dispatcher *Dispatcher
	membership *Membership
	logger     *slog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub with an empty membership table, ready to manage
// WebSocket connections once Run is started.
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		membership: NewMembership(),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.dispatcher = NewDispatcher(h.membership, h, logger)
	return h
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Membership exposes the hub's membership table for read-side inspection.
func (h *Hub) Membership() *Membership {
	return h.membership
}

// Emit marshals one outbound event and queues it on the target connection's
// send channel. Delivery is fire-and-forget: an unknown connection is
// skipped, and a connection whose send buffer is full gets its socket closed
// so its pumps unwind and the disconnect cascade reclaims its memberships.
// A slow recipient therefore never stalls fan-out to the rest of a room.
func (h *Hub) Emit(connID, event string, payload any) {
	frame, err := json.Marshal(outboundEnvelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal outbound event", "event", event, "error", err)
		return
	}

	if h.safeSend(connID, frame) {
		return
	}

	h.mutex.RLock()
	client, exists := h.clients[connID]
	h.mutex.RUnlock()
	if exists && client.conn != nil {
		h.logger.Warn("send buffer full, closing connection", "sid", connID, "event", event)
		_ = client.conn.Close()
	}
}

func (h *Hub) safeSend(connID string, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// out from under us by a concurrent unregister.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, exists := h.clients[connID]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine as it
// runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("client registered", "sid", client.id, "addr", client.addr, "total", clientCount)

			// Queue the ack before the pumps start so it is always the first
			// frame the client sees.
			h.dispatcher.Connected(client.id)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(client.send)
				h.logger.Info("client unregistered", "sid", client.id, "addr", client.addr, "total", clientCount)

				// Cascade after the registry entry is gone so no presence
				// event can be routed back to the departing connection.
				h.dispatcher.Disconnected(client.id)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// dispatch routes one inbound frame from a client's read pump.
func (h *Hub) dispatch(client *Client, raw []byte) {
	h.dispatcher.Dispatch(client.id, raw)
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Error("error closing client connection", "addr", client.addr, "error", err)
				}
			}
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
