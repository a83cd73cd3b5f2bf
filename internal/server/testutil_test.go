package server

import (
	"io"
	"log/slog"
	"sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedEvent struct {
	ConnID  string
	Event   string
	Payload any
}

// recordingEmitter captures emitted events for assertions instead of writing
// them to live connections.
type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) Emit(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{ConnID: connID, Event: event, Payload: payload})
}

func (r *recordingEmitter) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *recordingEmitter) byEvent(event string) []recordedEvent {
	var matched []recordedEvent
	for _, e := range r.all() {
		if e.Event == event {
			matched = append(matched, e)
		}
	}
	return matched
}

func (r *recordingEmitter) forConn(connID string) []recordedEvent {
	var matched []recordedEvent
	for _, e := range r.all() {
		if e.ConnID == connID {
			matched = append(matched, e)
		}
	}
	return matched
}

func (r *recordingEmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
