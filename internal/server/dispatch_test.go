package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *recordingEmitter) {
	t.Helper()
	rec := &recordingEmitter{}
	return NewDispatcher(NewMembership(), rec, testLogger()), rec
}

func requireErrorEvent(t *testing.T, rec *recordingEmitter, connID, wantMsg string) {
	t.Helper()
	errs := rec.byEvent(EventError)
	require.Len(t, errs, 1)
	require.Equal(t, connID, errs[0].ConnID)
	require.Equal(t, wantMsg, errs[0].Payload.(ErrorPayload).Message)
}

func TestDispatcher_Connected(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Connected("c1")

	acks := rec.byEvent(EventConnected)
	req.Len(acks, 1)
	req.Equal("c1", acks[0].ConnID)
	payload := acks[0].Payload.(ConnectedPayload)
	req.Equal("c1", payload.SID)
	req.Equal(statusSuccess, payload.Status)
	req.NotEmpty(payload.Message)
}

func TestDispatcher_JoinThenMessage(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"join","data":{"room":"lobby"}}`))
	req.Len(rec.byEvent(EventJoined), 1)
	req.True(d.membership.IsMember("c1", "lobby"))
	rec.reset()

	d.Dispatch("c1", []byte(`{"event":"message","data":{"room":"lobby","message":"hi","username":"alice"}}`))

	broadcasts := rec.byEvent(EventMessage)
	req.Len(broadcasts, 1)
	payload := broadcasts[0].Payload.(MessagePayload)
	req.Equal("hi", payload.Message)
	req.Equal("c1", payload.Sender)
	req.Equal("alice", payload.Username)
	req.Empty(rec.byEvent(EventError))
}

func TestDispatcher_MalformedFrame(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`not json at all`))

	requireErrorEvent(t, rec, "c1", ErrInvalidFormat.Error())
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"teleport","data":{}}`))

	requireErrorEvent(t, rec, "c1", ErrInvalidFormat.Error())
}

func TestDispatcher_Join_InvalidRoom(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"join","data":{"room":"   "}}`))

	requireErrorEvent(t, rec, "c1", ErrInvalidRoom.Error())
	require.Empty(t, rec.byEvent(EventJoined))
}

func TestDispatcher_Join_MalformedPayload(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"join","data":{"room":42}}`))

	requireErrorEvent(t, rec, "c1", ErrInvalidFormat.Error())
}

func TestDispatcher_Leave_NotMember(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"leave","data":{"room":"lobby"}}`))

	requireErrorEvent(t, rec, "c1", ErrNotMember.Error())
}

func TestDispatcher_Leave_MissingRoom(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"leave","data":{}}`))

	requireErrorEvent(t, rec, "c1", ErrMissingRoom.Error())
}

func TestDispatcher_Message_MissingRoom(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"message","data":{"message":"hi"}}`))

	requireErrorEvent(t, rec, "c1", ErrMissingRoom.Error())
}

func TestDispatcher_Message_Empty(t *testing.T) {
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"message","data":{"room":"lobby"}}`))

	requireErrorEvent(t, rec, "c1", ErrEmptyMessage.Error())
}

func TestDispatcher_Message_BeforeJoin(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"message","data":{"room":"lobby","message":"hi"}}`))

	requireErrorEvent(t, rec, "c1", ErrNotMember.Error())
	req.Empty(rec.byEvent(EventMessage))
}

func TestDispatcher_GetParticipants_UnknownRoom(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"get_participants","data":{"room":"nowhere"}}`))

	answers := rec.byEvent(EventParticipantsList)
	req.Len(answers, 1)
	payload := answers[0].Payload.(ParticipantsPayload)
	req.Empty(payload.Participants)
	req.Zero(payload.Count)
	req.Empty(rec.byEvent(EventError))
}

func TestDispatcher_TestMessageEcho(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	original := json.RawMessage(`{"message":"ping","extra":1}`)
	d.Dispatch("c1", []byte(`{"event":"test_message","data":`+string(original)+`}`))

	responses := rec.byEvent(EventTestResponse)
	req.Len(responses, 1)
	req.Equal("c1", responses[0].ConnID)
	payload := responses[0].Payload.(TestResponsePayload)
	req.JSONEq(string(original), string(payload.OriginalData))
	req.Equal(statusSuccess, payload.Status)
}

func TestDispatcher_DisconnectCascade(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Dispatch("leaver", []byte(`{"event":"join","data":{"room":"alpha"}}`))
	d.Dispatch("leaver", []byte(`{"event":"join","data":{"room":"beta"}}`))
	d.Dispatch("stayerA", []byte(`{"event":"join","data":{"room":"alpha"}}`))
	d.Dispatch("stayerB", []byte(`{"event":"join","data":{"room":"beta"}}`))
	rec.reset()

	d.Disconnected("leaver")

	req.Empty(d.membership.Rooms("leaver"))

	// Exactly one user_left per room, each to the remaining member, none back
	// to the disconnected connection.
	notified := rec.byEvent(EventUserLeft)
	req.Len(notified, 2)
	req.Equal("stayerA", notified[0].ConnID)
	req.Equal("alpha", notified[0].Payload.(PresencePayload).Room)
	req.Equal("stayerB", notified[1].ConnID)
	req.Equal("beta", notified[1].Payload.(PresencePayload).Room)
	req.Empty(rec.forConn("leaver"))

	// Idempotent: nothing fires the second time.
	rec.reset()
	d.Disconnected("leaver")
	req.Empty(rec.all())
}

func TestDispatcher_RejoinDoesNotRenotify(t *testing.T) {
	req := require.New(t)
	d, rec := newTestDispatcher(t)

	d.Dispatch("c1", []byte(`{"event":"join","data":{"room":"lobby"}}`))
	d.Dispatch("c2", []byte(`{"event":"join","data":{"room":"lobby"}}`))
	rec.reset()

	d.Dispatch("c2", []byte(`{"event":"join","data":{"room":"lobby"}}`))

	joined := rec.byEvent(EventJoined)
	req.Len(joined, 1)
	req.Equal("c2", joined[0].ConnID)
	req.Equal([]string{"c1", "c2"}, joined[0].Payload.(PresencePayload).Participants)
	req.Empty(rec.byEvent(EventUserJoined))
}
