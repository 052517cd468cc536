package domain

import (
	"regexp"
	"time"
)

// Room ids: 2-20 chars, letters, digits and dashes.
var roomIDRe = regexp.MustCompile(`^[A-Za-z0-9-]{2,20}$`)

func ValidRoomID(id string) bool { return roomIDRe.MatchString(id) }

// Room is a named channel with a member set and a bounded message log.
// Rooms are never deleted. Not safe for concurrent use on its own; all
// mutations happen inside the gateway's serialized handlers.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time

	members  map[string]struct{} // session ids
	log      []Message
	capacity int
}

func NewRoom(id, name string, capacity int) *Room {
	if name == "" {
		name = id
	}
	if capacity <= 0 {
		capacity = 1000
	}
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		members:   make(map[string]struct{}),
		capacity:  capacity,
	}
}

func (r *Room) AddMember(sessionID string)    { r.members[sessionID] = struct{}{} }
func (r *Room) RemoveMember(sessionID string) { delete(r.members, sessionID) }

func (r *Room) HasMember(sessionID string) bool {
	_, ok := r.members[sessionID]
	return ok
}

func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) UserCount() int    { return len(r.members) }
func (r *Room) MessageCount() int { return len(r.log) }

// Append adds a message to the log, evicting the oldest entry once the log
// is at capacity.
func (r *Room) Append(msg Message) {
	if len(r.log) >= r.capacity {
		r.log = r.log[1:]
	}
	r.log = append(r.log, msg)
}

// Tail returns a copy of the most recent n log entries, oldest first.
// n <= 0 means the whole log.
func (r *Room) Tail(n int) []Message {
	if n <= 0 || n > len(r.log) {
		n = len(r.log)
	}
	out := make([]Message, n)
	copy(out, r.log[len(r.log)-n:])
	return out
}

// Slice returns up to limit log entries starting at offset, oldest first.
func (r *Room) Slice(limit, offset int) []Message {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.log) {
		return nil
	}
	rest := r.log[offset:]
	if limit <= 0 || limit > len(rest) {
		limit = len(rest)
	}
	out := make([]Message, limit)
	copy(out, rest[:limit])
	return out
}

func (r *Room) Clear() { r.log = nil }
