// Package server routes chat messages: validation pipeline, membership gate,
// and room fan-out with server-stamped metadata.
package server

import (
	"log/slog"
	"strings"

	"github.com/samber/lo"
)

// Router validates and broadcasts chat messages, and answers participant
// queries. It holds no state of its own; the membership table is the source
// of truth for recipient sets.
type Router struct {
	membership *Membership
	emit       Emitter
	logger     *slog.Logger
}

// NewRouter returns a message router backed by the given membership table.
func NewRouter(membership *Membership, emit Emitter, logger *slog.Logger) *Router {
	return &Router{membership: membership, emit: emit, logger: logger}
}

// SendMessage validates req and broadcasts the resulting chat message to
// every current member of the room, including the sender (clients render
// their own messages from the echo, not locally). The membership gate and the
// recipient snapshot come from a single read of the table, so a message is
// never fanned out against a stale member list.
func (rt *Router) SendMessage(senderID string, req MessageRequest) error {
	room := strings.TrimSpace(req.Room)
	if room == "" {
		return ErrMissingRoom
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return ErrEmptyMessage
	}

	members := rt.membership.MembersOf(room)
	if !lo.Contains(members, senderID) {
		return ErrNotMember
	}

	payload := MessagePayload{
		Room:      room,
		Message:   text,
		Username:  req.Username,
		Sender:    senderID,
		Timestamp: eventTimestamp(),
	}
	for _, member := range members {
		rt.emit.Emit(member, EventMessage, payload)
	}

	rt.logger.Debug("message broadcast", "room", room, "sender", senderID, "recipients", len(members))
	return nil
}

// Participants answers a get_participants request to the requester only. An
// unknown room yields an empty list and a zero count, not an error.
func (rt *Router) Participants(connID string, req ParticipantsRequest) error {
	room := strings.TrimSpace(req.Room)
	if room == "" {
		return ErrMissingRoom
	}

	members := rt.membership.MembersOf(room)
	rt.emit.Emit(connID, EventParticipantsList, ParticipantsPayload{
		Room:         room,
		Participants: members,
		Count:        len(members),
		Timestamp:    eventTimestamp(),
	})
	return nil
}
