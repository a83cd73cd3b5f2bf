// Package server implements the room membership table, the single piece of
// shared mutable state in the relay. Rooms exist implicitly: an entry is
// created when the first member joins and reaped when the last member leaves.
package server

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"
)

// maxRoomNameLength bounds user-chosen room names, measured in characters
// after trimming.
const maxRoomNameLength = 100

type memberSet map[string]struct{}

// Membership is the bidirectional connection-room index. Both views mutate
// under the same lock so they can never drift apart: a connection appears in
// a room's member set exactly when that room appears in the connection's
// room set.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[string]memberSet // room name -> member connection ids
	byConn map[string]memberSet // connection id -> joined room names
}

// NewMembership returns an empty membership table.
func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[string]memberSet),
		byConn: make(map[string]memberSet),
	}
}

// JoinResult describes the outcome of a join: the canonical (trimmed) room
// name, the participant set including the joiner, and whether the connection
// was already a member.
type JoinResult struct {
	Room         string
	Participants []string
	Rejoined     bool
}

// LeaveResult describes the outcome of a leave: the canonical room name and
// the participants remaining after removal.
type LeaveResult struct {
	Room         string
	Participants []string
}

// Join adds connID to the named room. Joining a room the connection is
// already in is idempotent: state is untouched and Rejoined is set so the
// caller can suppress the room-wide notification. Room names are trimmed and
// must be 1-100 characters.
func (m *Membership) Join(connID, room string) (JoinResult, error) {
	name := strings.TrimSpace(room)
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLength {
		return JoinResult{}, ErrInvalidRoom
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	members, exists := m.rooms[name]
	if exists {
		if _, already := members[connID]; already {
			return JoinResult{Room: name, Participants: snapshot(members), Rejoined: true}, nil
		}
	} else {
		members = make(memberSet)
		m.rooms[name] = members
	}
	members[connID] = struct{}{}

	joined, ok := m.byConn[connID]
	if !ok {
		joined = make(memberSet)
		m.byConn[connID] = joined
	}
	joined[name] = struct{}{}

	return JoinResult{Room: name, Participants: snapshot(members)}, nil
}

// Leave removes connID from the named room, reaping the room entry if it
// becomes empty and the reverse-index entry if the connection belongs to no
// further rooms. Returns ErrNotMember if the connection is not currently a
// member.
func (m *Membership) Leave(connID, room string) (LeaveResult, error) {
	name := strings.TrimSpace(room)

	m.mu.Lock()
	defer m.mu.Unlock()

	remaining, err := m.removeLocked(connID, name)
	if err != nil {
		return LeaveResult{}, err
	}
	return LeaveResult{Room: name, Participants: remaining}, nil
}

// LeaveAll removes connID from every room it belongs to and returns one
// LeaveResult per departed room, sorted by room name. Safe to call for a
// connection with no memberships; a second invocation racing an in-flight
// leave is a no-op for rooms already departed.
func (m *Membership) LeaveAll(connID string) []LeaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined, ok := m.byConn[connID]
	if !ok {
		return nil
	}

	rooms := snapshot(joined)
	results := make([]LeaveResult, 0, len(rooms))
	for _, name := range rooms {
		remaining, err := m.removeLocked(connID, name)
		if err != nil {
			continue
		}
		results = append(results, LeaveResult{Room: name, Participants: remaining})
	}
	return results
}

// removeLocked deletes connID from one room and applies the reap rules for
// both views. Callers must hold the write lock.
func (m *Membership) removeLocked(connID, room string) ([]string, error) {
	members, ok := m.rooms[room]
	if !ok {
		return nil, ErrNotMember
	}
	if _, isMember := members[connID]; !isMember {
		return nil, ErrNotMember
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}

	if joined, ok := m.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}

	return snapshot(members), nil
}

// MembersOf returns the sorted participant ids of a room. Unknown rooms yield
// an empty slice, never an error. The returned slice is a consistent snapshot
// taken under the read lock.
func (m *Membership) MembersOf(room string) []string {
	name := strings.TrimSpace(room)

	m.mu.RLock()
	defer m.mu.RUnlock()

	return snapshot(m.rooms[name])
}

// Rooms returns the sorted room names connID currently belongs to.
func (m *Membership) Rooms(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return snapshot(m.byConn[connID])
}

// IsMember reports whether connID currently belongs to the named room.
func (m *Membership) IsMember(connID, room string) bool {
	name := strings.TrimSpace(room)

	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.rooms[name]
	if !ok {
		return false
	}
	_, isMember := members[connID]
	return isMember
}

// snapshot copies a set into a sorted slice so repeated snapshots of the same
// membership are byte-identical on the wire.
func snapshot(set memberSet) []string {
	keys := lo.Keys(set)
	sort.Strings(keys)
	return keys
}
