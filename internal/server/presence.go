// Package server translates membership transitions into the presence events
// delivered to affected connections.
package server

import "log/slog"

// Emitter delivers one outbound event to one connection. The hub implements
// it over live WebSocket clients; tests substitute a recorder.
type Emitter interface {
	Emit(connID, event string, payload any)
}

// Presence derives join/leave notifications from membership-table results.
// The acting connection always gets a confirmation; the rest of the room gets
// a user_joined/user_left notification that excludes the actor.
type Presence struct {
	emit   Emitter
	logger *slog.Logger
}

// NewPresence returns a presence notifier emitting through emit.
func NewPresence(emit Emitter, logger *slog.Logger) *Presence {
	return &Presence{emit: emit, logger: logger}
}

// Joined confirms a join to the acting connection and, for first-time joins
// only, notifies the other members. A rejoin re-emits the confirmation with
// the current participant list but never re-notifies the room.
func (p *Presence) Joined(connID string, res JoinResult) {
	ts := eventTimestamp()

	p.emit.Emit(connID, EventJoined, PresencePayload{
		Room:         res.Room,
		SID:          connID,
		Status:       statusSuccess,
		Timestamp:    ts,
		Participants: res.Participants,
	})

	if res.Rejoined {
		return
	}

	notification := PresencePayload{
		Room:         res.Room,
		SID:          connID,
		Timestamp:    ts,
		Participants: res.Participants,
	}
	for _, member := range res.Participants {
		if member == connID {
			continue
		}
		p.emit.Emit(member, EventUserJoined, notification)
	}
	p.logger.Info("client joined room", "sid", connID, "room", res.Room, "participants", len(res.Participants))
}

// Left confirms an explicit leave to the acting connection and notifies the
// remaining members.
func (p *Presence) Left(connID string, res LeaveResult) {
	ts := eventTimestamp()

	p.emit.Emit(connID, EventLeft, PresencePayload{
		Room:         res.Room,
		SID:          connID,
		Status:       statusSuccess,
		Timestamp:    ts,
		Participants: res.Participants,
	})

	p.notifyRemaining(connID, res, ts)
	p.logger.Info("client left room", "sid", connID, "room", res.Room)
}

// Disconnected runs the notification half of the disconnect cascade: every
// room the connection belonged to gets a user_left, and no confirmation is
// sent to the now-gone connection.
func (p *Presence) Disconnected(connID string, departures []LeaveResult) {
	for _, res := range departures {
		p.notifyRemaining(connID, res, eventTimestamp())
	}
	if len(departures) > 0 {
		p.logger.Info("disconnect cascade complete", "sid", connID, "rooms", len(departures))
	}
}

func (p *Presence) notifyRemaining(connID string, res LeaveResult, ts string) {
	notification := PresencePayload{
		Room:         res.Room,
		SID:          connID,
		Timestamp:    ts,
		Participants: res.Participants,
	}
	for _, member := range res.Participants {
		p.emit.Emit(member, EventUserLeft, notification)
	}
}
