// Package server defines the per-request error taxonomy shared by the
// membership table, the message router, and the event dispatcher.
package server

import "errors"

// These errors are local and recoverable: they are reported back to the
// originating connection as an error event and never affect other
// connections' state.
var (
	ErrInvalidRoom   = errors.New("room name must be between 1 and 100 characters")
	ErrMissingRoom   = errors.New("room name is required")
	ErrNotMember     = errors.New("you must join the room before performing this action")
	ErrEmptyMessage  = errors.New("message cannot be empty")
	ErrInvalidFormat = errors.New("invalid message format")
)
