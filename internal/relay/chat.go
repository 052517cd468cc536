package relay

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/registry"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

// ChatRelay validates and broadcasts chat messages within a room.
type ChatRelay struct {
	reg *registry.Registry
	seq atomic.Int64 // disambiguates ids minted in the same millisecond
}

func NewChatRelay(reg *registry.Registry) *ChatRelay {
	return &ChatRelay{reg: reg}
}

// Send assigns a canonical id and timestamp, appends to the room log and
// broadcasts the message to every current member, sender included. The
// sender's correlation tag rides along so its client can reconcile the echo
// against the provisional copy instead of waiting for a separate ack.
func (c *ChatRelay) Send(sess *domain.Session, text, tag string) (domain.Message, error) {
	if !sess.InRoom() {
		return domain.Message{}, domain.ErrNotInRoom
	}
	room, ok := c.reg.Room(sess.RoomID)
	if !ok {
		return domain.Message{}, domain.ErrRoomNotFound
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	now := time.Now()
	msg := domain.Message{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), c.seq.Add(1)),
		Text:      text,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		RoomID:    room.ID,
		Timestamp: now.UnixMilli(),
	}
	room.Append(msg)

	c.reg.BroadcastRoom(room.ID, "", wire.Envelope{
		Type:    wire.TypeChatMessage,
		Payload: wire.ChatBroadcastPayload{Message: msg, Tag: tag},
	})

	return msg, nil
}

// ClearHistory empties the log of the session's current room only.
func (c *ChatRelay) ClearHistory(sess *domain.Session) error {
	if !sess.InRoom() {
		return domain.ErrNotInRoom
	}
	return c.ClearRoom(sess.RoomID)
}

// ClearRoom empties one room's log and notifies that room's members
// exclusively. Also the write path behind DELETE /rooms/{id}/messages.
func (c *ChatRelay) ClearRoom(roomID string) error {
	room, ok := c.reg.Room(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Clear()
	c.reg.BroadcastRoom(roomID, "", wire.Envelope{Type: wire.TypeChatCleared})
	return nil
}
