// Package server implements the room-based messaging relay: connection
// lifecycle, room membership tracking, presence notifications, and message
// fan-out over WebSocket.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients, the membership table, presence, routing, and dispatch to
// keep the codebase maintainable and testable as the project grows.
package server
