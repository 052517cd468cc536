package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/registry"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

// Gateway is the single entry point into the registry and relays. One mutex
// serializes every wire event and every HTTP mutation: a handler runs to
// completion, broadcasts included, before the next event starts, so no
// registry state needs locking of its own.
type Gateway struct {
	mu   sync.Mutex
	reg  *registry.Registry
	chat *ChatRelay
	sig  *SignalRelay

	startedAt       time.Time
	messagesRelayed int64
	signalsRelayed  int64
}

func NewGateway(reg *registry.Registry) *Gateway {
	return &Gateway{
		reg:       reg,
		chat:      NewChatRelay(reg),
		sig:       NewSignalRelay(reg),
		startedAt: time.Now(),
	}
}

// Connect registers a new session bound to the given sink.
func (g *Gateway) Connect(sink wire.Sink, userID, userName string) *domain.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.Connect(sink, userID, userName)
}

func (g *Gateway) Disconnect(sess *domain.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reg.Disconnect(sess)
}

// Dispatch handles one client event to completion. Failures go back to the
// originating session only, as an error event; a panic in a handler is
// recovered and the event dropped, never taking the process down.
func (g *Gateway) Dispatch(sess *domain.Session, env wire.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("event handler panic", "session", sess.ID, "type", env.Type, "panic", rec)
		}
	}()

	if err := g.handle(sess, env); err != nil {
		slog.Warn("event rejected",
			"session", sess.ID, "user", sess.UserID, "type", env.Type, "err", err)
		g.sendError(sess, err)
	}
}

func (g *Gateway) handle(sess *domain.Session, env wire.Envelope) error {
	switch env.Type {
	case wire.TypeJoinRoom:
		var p wire.JoinRoomPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return err
		}
		return g.reg.Join(sess, p.RoomID)

	case wire.TypeLeaveRoom:
		var p wire.LeaveRoomPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return err
		}
		return g.reg.Leave(sess, p.RoomID)

	case wire.TypeCreateRoom:
		var p wire.CreateRoomPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return err
		}
		_, err := g.reg.CreateRoom(sess, p.RoomID, p.RoomName)
		return err

	case wire.TypeChatMessage:
		var p wire.ChatSendPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return err
		}
		if _, err := g.chat.Send(sess, p.Text, p.Tag); err != nil {
			return err
		}
		g.messagesRelayed++
		return nil

	case wire.TypeClearChat:
		return g.chat.ClearHistory(sess)

	case wire.TypeGetRooms:
		return g.reg.SendTo(sess.ID, wire.Envelope{Type: wire.TypeRoomList, Payload: wire.RoomListPayload{
			Rooms: g.reg.Directory(),
		}})

	case wire.TypeGetRoomUsers:
		var p wire.JoinRoomPayload
		if err := wire.Decode(env.Payload, &p); err != nil {
			return err
		}
		roomID := p.RoomID
		if roomID == "" {
			roomID = sess.RoomID
		}
		if roomID == "" {
			return domain.ErrNotInRoom
		}
		users, err := g.reg.RoomUsers(roomID)
		if err != nil {
			return err
		}
		return g.reg.SendTo(sess.ID, wire.Envelope{Type: wire.TypeRoomUsers, Payload: wire.RoomUsersPayload{
			RoomID:    roomID,
			Users:     users,
			UserCount: len(users),
		}})

	default:
		if wire.IsSignal(env.Type) {
			payload, _ := env.Payload.(map[string]any)
			if payload == nil {
				payload = map[string]any{}
			}
			if err := g.sig.Relay(sess, env.Type, payload); err != nil {
				// A vanished target is routine during call teardown.
				if errors.Is(err, domain.ErrTargetNotFound) {
					slog.Info("signal target gone", "type", env.Type, "from", sess.UserID)
				}
				return err
			}
			g.signalsRelayed++
			return nil
		}
		return errors.New("unknown event type: " + env.Type)
	}
}

func (g *Gateway) sendError(sess *domain.Session, err error) {
	if sendErr := g.reg.SendTo(sess.ID, wire.Envelope{
		Type:    wire.TypeError,
		Payload: wire.ErrorPayload{Message: err.Error()},
	}); sendErr != nil {
		slog.Debug("error event not delivered", "session", sess.ID, "err", sendErr)
	}
}

// --- hooks for the HTTP surface; same serialization as wire events ---

type Stats struct {
	Sessions        int   `json:"sessions"`
	Rooms           int   `json:"rooms"`
	Messages        int   `json:"messages"`
	MessagesRelayed int64 `json:"messagesRelayed"`
	SignalsRelayed  int64 `json:"signalsRelayed"`
	UptimeSeconds   int64 `json:"uptimeSeconds"`
}

func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Sessions:        g.reg.SessionCount(),
		Rooms:           g.reg.RoomCount(),
		Messages:        g.reg.TotalMessages(),
		MessagesRelayed: g.messagesRelayed,
		SignalsRelayed:  g.signalsRelayed,
		UptimeSeconds:   int64(time.Since(g.startedAt).Seconds()),
	}
}

func (g *Gateway) StartedAt() time.Time { return g.startedAt }

func (g *Gateway) Directory() []wire.RoomSummary {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reg.Directory()
}

func (g *Gateway) RoomSummary(roomID string) (wire.RoomSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.reg.Room(roomID)
	if !ok {
		return wire.RoomSummary{}, domain.ErrRoomNotFound
	}
	return wire.RoomSummary{
		ID:           room.ID,
		Name:         room.Name,
		UserCount:    room.UserCount(),
		MessageCount: room.MessageCount(),
		CreatedAt:    room.CreatedAt.UnixMilli(),
	}, nil
}

// CreateRoom is the HTTP write path; broadcasts reach connected sessions the
// same way a wire create_room does.
func (g *Gateway) CreateRoom(roomID, name string) (wire.RoomSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, err := g.reg.CreateRoom(nil, roomID, name)
	if err != nil {
		return wire.RoomSummary{}, err
	}
	return wire.RoomSummary{
		ID:        room.ID,
		Name:      room.Name,
		CreatedAt: room.CreatedAt.UnixMilli(),
	}, nil
}

func (g *Gateway) RoomMessages(roomID string, limit, offset int) ([]domain.Message, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.reg.Room(roomID)
	if !ok {
		return nil, 0, domain.ErrRoomNotFound
	}
	return room.Slice(limit, offset), room.MessageCount(), nil
}

func (g *Gateway) ClearRoom(roomID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chat.ClearRoom(roomID)
}

// SeedRooms registers the rooms listed in config at startup. Invalid ids are
// logged and skipped so one bad entry does not block boot.
func (g *Gateway) SeedRooms(rooms map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, name := range rooms {
		if _, err := g.reg.CreateRoom(nil, id, name); err != nil {
			slog.Warn("seed room skipped", "room", id, "err", err)
		}
	}
}
