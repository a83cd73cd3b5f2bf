// Package server defines the typed event envelopes exchanged over the wire
// and the boundary validation applied to inbound payloads before they reach
// core logic.
package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Inbound event names accepted from clients.
const (
	EventJoin            = "join"
	EventLeave           = "leave"
	EventMessage         = "message"
	EventGetParticipants = "get_participants"
	EventTestMessage     = "test_message"
)

// Outbound event names emitted to clients.
const (
	EventConnected        = "connected"
	EventJoined           = "joined"
	EventUserJoined       = "user_joined"
	EventLeft             = "left"
	EventUserLeft         = "user_left"
	EventParticipantsList = "participants_list"
	EventError            = "error"
	EventTestResponse     = "test_response"
)

const statusSuccess = "success"

var validate = validator.New()

// Envelope is the wire frame for every inbound event: a name plus a
// type-specific payload decoded lazily by the dispatcher.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outboundEnvelope mirrors Envelope for emission; Data is marshalled eagerly.
type outboundEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// JoinRequest asks to join a room. Room validation (trim, length) is owned by
// the membership table so that empty and oversized names share one error.
type JoinRequest struct {
	Room string `json:"room"`
}

// LeaveRequest asks to leave a room the connection previously joined.
type LeaveRequest struct {
	Room string `json:"room" validate:"required"`
}

// MessageRequest carries a chat message for a room. The username is
// client-supplied display data and is passed through verbatim; the sender id
// is always server-stamped.
type MessageRequest struct {
	Room     string `json:"room" validate:"required"`
	Message  string `json:"message" validate:"required"`
	Username string `json:"username,omitempty"`
}

// ParticipantsRequest asks for the current participant list of a room.
type ParticipantsRequest struct {
	Room string `json:"room" validate:"required"`
}

// ConnectedPayload acknowledges a new connection with its assigned id.
type ConnectedPayload struct {
	Message string `json:"message"`
	SID     string `json:"sid"`
	Status  string `json:"status"`
}

// PresencePayload is shared by joined/left confirmations and the
// user_joined/user_left room notifications. Status is set only on
// confirmations sent back to the acting connection.
type PresencePayload struct {
	Room         string   `json:"room"`
	SID          string   `json:"sid"`
	Status       string   `json:"status,omitempty"`
	Timestamp    string   `json:"timestamp"`
	Participants []string `json:"participants"`
}

// MessagePayload is the broadcast form of a chat message. Sender and
// Timestamp are server-authoritative.
type MessagePayload struct {
	Room      string `json:"room"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}

// ParticipantsPayload answers a get_participants request.
type ParticipantsPayload struct {
	Room         string   `json:"room"`
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
	Timestamp    string   `json:"timestamp"`
}

// ErrorPayload reports a per-request failure back to the caller only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TestResponsePayload echoes a test_message back to the caller.
type TestResponsePayload struct {
	Message      string          `json:"message"`
	OriginalData json.RawMessage `json:"original_data"`
	SID          string          `json:"sid"`
	Status       string          `json:"status"`
}

// decodePayload unmarshals an inbound payload into req and applies its
// validate tags, translating failures into the error taxonomy: a broken or
// mistyped payload is InvalidFormat, a missing room is MissingRoom, and a
// missing message body is EmptyMessage.
func decodePayload(data json.RawMessage, req any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, req); err != nil {
		return ErrInvalidFormat
	}
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			switch fieldErrs[0].Field() {
			case "Room":
				return ErrMissingRoom
			case "Message":
				return ErrEmptyMessage
			}
		}
		return ErrInvalidFormat
	}
	return nil
}

// eventTimestamp returns the server-authoritative timestamp stamped on
// outbound events: UTC, RFC 3339. One operation stamps once so every
// recipient of a broadcast sees the identical value.
func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
