// Package registry owns all session and room state. It is an explicitly
// constructed object passed into the gateway; there are no package globals,
// so tests can run independent instances side by side.
//
// The registry does no locking of its own: every call happens inside the
// gateway's serialized dispatch, and notifications are emitted synchronously
// within the same call, so recipients always observe a consistent snapshot.
package registry

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

type member struct {
	sess *domain.Session
	sink wire.Sink
}

type Registry struct {
	sessions map[string]*member // session id -> member
	byUser   map[string]string  // user id -> session id
	rooms    map[string]*domain.Room

	logCapacity int // bounded room log, FIFO eviction
	historyTail int // snapshot size sent on join
}

func New(logCapacity, historyTail int) *Registry {
	if logCapacity <= 0 {
		logCapacity = 1000
	}
	if historyTail <= 0 {
		historyTail = 50
	}
	return &Registry{
		sessions:    make(map[string]*member),
		byUser:      make(map[string]string),
		rooms:       make(map[string]*domain.Room),
		logCapacity: logCapacity,
		historyTail: historyTail,
	}
}

// Connect registers a new session with no room. A client may present a stable
// userID to resume its identity across reconnects; presenting one that is
// still bound to an older session evicts that session first. The new session
// receives welcome and the current room directory.
func (r *Registry) Connect(sink wire.Sink, userID, userName string) *domain.Session {
	if userID != "" {
		if oldID, ok := r.byUser[userID]; ok {
			if old, ok := r.sessions[oldID]; ok {
				slog.Info("rebinding identity, evicting stale session",
					"user", userID, "old_session", oldID)
				r.Disconnect(old.sess)
			}
		}
	}
	if userID == "" {
		userID = "user-" + shortID()
	}
	if userName == "" {
		userName = "User-" + strings.TrimPrefix(userID, "user-")
	}

	sess := &domain.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserName:    userName,
		ConnectedAt: time.Now(),
	}
	r.sessions[sess.ID] = &member{sess: sess, sink: sink}
	r.byUser[userID] = sess.ID

	_ = sink.Send(wire.Envelope{Type: wire.TypeWelcome, Payload: wire.WelcomePayload{
		SessionID: sess.ID,
		User:      userOf(sess),
	}})
	_ = sink.Send(wire.Envelope{Type: wire.TypeRoomList, Payload: wire.RoomListPayload{
		Rooms: r.Directory(),
	}})

	return sess
}

// Disconnect performs an implicit leave and removes the session entirely.
func (r *Registry) Disconnect(sess *domain.Session) {
	if sess.InRoom() {
		if err := r.Leave(sess, ""); err != nil {
			slog.Debug("leave on disconnect failed", "session", sess.ID, "err", err)
		}
	}
	delete(r.sessions, sess.ID)
	if r.byUser[sess.UserID] == sess.ID {
		delete(r.byUser, sess.UserID)
	}
}

// Join moves a session into a room. Leaving the previous room (with its
// notifications) happens strictly before any join notification. The joiner
// gets a bounded tail of the room's log; the room's other members get
// user_joined; everyone gets the updated directory.
func (r *Registry) Join(sess *domain.Session, roomID string) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if sess.InRoom() {
		if sess.RoomID == roomID {
			return nil // already there
		}
		if err := r.Leave(sess, ""); err != nil {
			return err
		}
	}

	room.AddMember(sess.ID)
	sess.RoomID = roomID

	r.sendTo(sess.ID, wire.Envelope{Type: wire.TypeMessageHistory, Payload: wire.MessageHistoryPayload{
		RoomID:   roomID,
		Messages: room.Tail(r.historyTail),
	}})
	r.BroadcastRoom(roomID, sess.ID, wire.Envelope{Type: wire.TypeUserJoined, Payload: wire.PresencePayload{
		User:      userOf(sess),
		RoomID:    roomID,
		UserCount: room.UserCount(),
	}})
	r.broadcastDirectory()

	return nil
}

// Leave removes a session from a room (its current one when roomID is empty).
func (r *Registry) Leave(sess *domain.Session, roomID string) error {
	if roomID == "" {
		roomID = sess.RoomID
	}
	if roomID == "" {
		return domain.ErrNotInRoom
	}
	room, ok := r.rooms[roomID]
	if !ok || !room.HasMember(sess.ID) {
		return domain.ErrNotInRoom
	}

	room.RemoveMember(sess.ID)
	if sess.RoomID == roomID {
		sess.RoomID = ""
	}

	r.BroadcastRoom(roomID, "", wire.Envelope{Type: wire.TypeUserLeft, Payload: wire.PresencePayload{
		User:      userOf(sess),
		RoomID:    roomID,
		UserCount: room.UserCount(),
	}})
	r.broadcastDirectory()

	return nil
}

// CreateRoom registers an empty room and broadcasts the updated directory.
// creator may be nil (HTTP surface, startup seeding); a connected creator is
// additionally notified with the created record.
func (r *Registry) CreateRoom(creator *domain.Session, roomID, name string) (*domain.Room, error) {
	if !domain.ValidRoomID(roomID) {
		return nil, domain.ErrInvalidRoomID
	}
	if _, ok := r.rooms[roomID]; ok {
		return nil, domain.ErrDuplicateRoom
	}

	room := domain.NewRoom(roomID, name, r.logCapacity)
	r.rooms[roomID] = room

	r.broadcastDirectory()
	if creator != nil {
		r.sendTo(creator.ID, wire.Envelope{Type: wire.TypeRoomCreated, Payload: wire.RoomCreatedPayload{
			Room: summaryOf(room),
		}})
	}

	return room, nil
}

func (r *Registry) Room(roomID string) (*domain.Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) Session(sessionID string) (*domain.Session, bool) {
	m, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return m.sess, true
}

// FindByUserID resolves a stable user identity to its live session.
func (r *Registry) FindByUserID(userID string) (*domain.Session, bool) {
	sid, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return r.Session(sid)
}

// Directory is the aggregate per-room summary, oldest room first.
func (r *Registry) Directory() []wire.RoomSummary {
	rooms := lo.Values(r.rooms)
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return lo.Map(rooms, func(room *domain.Room, _ int) wire.RoomSummary {
		return summaryOf(room)
	})
}

// RoomUsers lists the identities of a room's current members.
func (r *Registry) RoomUsers(roomID string) ([]wire.User, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	users := make([]wire.User, 0, room.UserCount())
	for _, sid := range room.MemberIDs() {
		if m, ok := r.sessions[sid]; ok {
			users = append(users, userOf(m.sess))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *Registry) SessionCount() int { return len(r.sessions) }
func (r *Registry) RoomCount() int    { return len(r.rooms) }

func (r *Registry) TotalMessages() int {
	return lo.SumBy(lo.Values(r.rooms), func(room *domain.Room) int {
		return room.MessageCount()
	})
}

func (r *Registry) HistoryTail() int { return r.historyTail }

// BroadcastRoom sends to every member of a room, skipping exceptSessionID
// when non-empty. Delivery is best effort; a slow or dead sink only affects
// its own session.
func (r *Registry) BroadcastRoom(roomID, exceptSessionID string, env wire.Envelope) {
	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, sid := range room.MemberIDs() {
		if sid == exceptSessionID {
			continue
		}
		r.sendTo(sid, env)
	}
}

// BroadcastAll sends to every connected session, skipping exceptSessionID
// when non-empty.
func (r *Registry) BroadcastAll(exceptSessionID string, env wire.Envelope) {
	for sid := range r.sessions {
		if sid == exceptSessionID {
			continue
		}
		r.sendTo(sid, env)
	}
}

// SendTo delivers one envelope to one session.
func (r *Registry) SendTo(sessionID string, env wire.Envelope) error {
	m, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrTargetNotFound
	}
	return m.sink.Send(env)
}

func (r *Registry) sendTo(sessionID string, env wire.Envelope) {
	if m, ok := r.sessions[sessionID]; ok {
		if err := m.sink.Send(env); err != nil {
			slog.Debug("send failed", "session", sessionID, "type", env.Type, "err", err)
		}
	}
}

func (r *Registry) broadcastDirectory() {
	r.BroadcastAll("", wire.Envelope{Type: wire.TypeRoomList, Payload: wire.RoomListPayload{
		Rooms: r.Directory(),
	}})
}

func userOf(sess *domain.Session) wire.User {
	return wire.User{ID: sess.UserID, Name: sess.UserName}
}

func summaryOf(room *domain.Room) wire.RoomSummary {
	return wire.RoomSummary{
		ID:           room.ID,
		Name:         room.Name,
		UserCount:    room.UserCount(),
		MessageCount: room.MessageCount(),
		CreatedAt:    room.CreatedAt.UnixMilli(),
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}
