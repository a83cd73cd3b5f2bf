// Package server maps inbound event envelopes onto core operations and their
// error outcomes onto error events back to the caller.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
)

// Dispatcher routes decoded envelopes to the membership table, the presence
// notifier, and the message router. It owns no transport concerns; the hub
// feeds it connection ids and raw frames.
type Dispatcher struct {
	membership *Membership
	presence   *Presence
	router     *Router
	emit       Emitter
	logger     *slog.Logger
}

// NewDispatcher wires a dispatcher around a membership table and an emitter.
func NewDispatcher(membership *Membership, emit Emitter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		membership: membership,
		presence:   NewPresence(emit, logger),
		router:     NewRouter(membership, emit, logger),
		emit:       emit,
		logger:     logger,
	}
}

// Connected acknowledges a freshly registered connection with its assigned id.
func (d *Dispatcher) Connected(connID string) {
	d.emit.Emit(connID, EventConnected, ConnectedPayload{
		Message: "Connected to server",
		SID:     connID,
		Status:  statusSuccess,
	})
}

// Disconnected runs the cleanup cascade for a closed connection: remove it
// from every room it belonged to and notify the remaining members. Safe to
// call for connections with no memberships and idempotent versus a racing
// explicit leave.
func (d *Dispatcher) Disconnected(connID string) {
	departures := d.membership.LeaveAll(connID)
	d.presence.Disconnected(connID, departures)
}

// Dispatch decodes one inbound frame and routes it to the matching handler.
// Handler panics are recovered, logged, and surfaced as a generic error event
// so one malformed request can never take down the connection or the process.
func (d *Dispatcher) Dispatch(connID string, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered from panic in event handler", "sid", connID, "panic", r)
			d.emit.Emit(connID, EventError, ErrorPayload{Message: "failed to process event"})
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		d.emitError(connID, ErrInvalidFormat)
		return
	}

	switch env.Event {
	case EventJoin:
		d.handleJoin(connID, env.Data)
	case EventLeave:
		d.handleLeave(connID, env.Data)
	case EventMessage:
		d.handleMessage(connID, env.Data)
	case EventGetParticipants:
		d.handleGetParticipants(connID, env.Data)
	case EventTestMessage:
		d.handleTestMessage(connID, env.Data)
	default:
		d.logger.Warn("unknown event", "sid", connID, "event", env.Event)
		d.emitError(connID, ErrInvalidFormat)
	}
}

func (d *Dispatcher) handleJoin(connID string, data json.RawMessage) {
	var req JoinRequest
	if err := decodePayload(data, &req); err != nil {
		d.emitError(connID, err)
		return
	}

	res, err := d.membership.Join(connID, req.Room)
	if err != nil {
		d.emitError(connID, err)
		return
	}
	d.presence.Joined(connID, res)
}

func (d *Dispatcher) handleLeave(connID string, data json.RawMessage) {
	var req LeaveRequest
	if err := decodePayload(data, &req); err != nil {
		d.emitError(connID, err)
		return
	}

	res, err := d.membership.Leave(connID, req.Room)
	if err != nil {
		d.emitError(connID, err)
		return
	}
	d.presence.Left(connID, res)
}

func (d *Dispatcher) handleMessage(connID string, data json.RawMessage) {
	var req MessageRequest
	if err := decodePayload(data, &req); err != nil {
		d.emitError(connID, err)
		return
	}

	if err := d.router.SendMessage(connID, req); err != nil {
		d.emitError(connID, err)
	}
}

func (d *Dispatcher) handleGetParticipants(connID string, data json.RawMessage) {
	var req ParticipantsRequest
	if err := decodePayload(data, &req); err != nil {
		d.emitError(connID, err)
		return
	}

	if err := d.router.Participants(connID, req); err != nil {
		d.emitError(connID, err)
	}
}

// handleTestMessage echoes the payload back to the caller. Kept as a
// debugging aid for connection verification.
func (d *Dispatcher) handleTestMessage(connID string, data json.RawMessage) {
	d.logger.Debug("test message received", "sid", connID)
	d.emit.Emit(connID, EventTestResponse, TestResponsePayload{
		Message:      "Test message received",
		OriginalData: data,
		SID:          connID,
		Status:       statusSuccess,
	})
}

// emitError reports a recoverable per-request failure to the caller only.
// Unrecognized errors are masked behind a generic message.
func (d *Dispatcher) emitError(connID string, err error) {
	msg := "failed to process event"
	switch {
	case errors.Is(err, ErrInvalidRoom),
		errors.Is(err, ErrMissingRoom),
		errors.Is(err, ErrNotMember),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrInvalidFormat):
		msg = err.Error()
	default:
		d.logger.Error("unexpected error handling event", "sid", connID, "error", err)
	}
	d.logger.Warn("request rejected", "sid", connID, "reason", msg)
	d.emit.Emit(connID, EventError, ErrorPayload{Message: msg})
}
