// Package wire defines the JSON envelopes exchanged over the websocket.
// Both the server transport and the client connection manager speak it.
package wire

import (
	"encoding/json"

	"github.com/cwrk-planet/relay-service/internal/domain"
)

// Client -> server events.
const (
	TypeJoinRoom     = "join_room"
	TypeLeaveRoom    = "leave_room"
	TypeCreateRoom   = "create_room"
	TypeChatMessage  = "chat_message" // both directions
	TypeClearChat    = "clear_chat"
	TypeGetRooms     = "get_rooms"
	TypeGetRoomUsers = "get_room_users"
)

// Signaling events, forwarded verbatim with sender identity attached.
// The relay never looks inside the payload beyond routing metadata.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeInitiateCall = "initiate_call"
	TypeAcceptCall   = "accept_call"
	TypeRejectCall   = "reject_call"
	TypeEndCall      = "end_call"
)

// Server -> client events.
const (
	TypeWelcome        = "welcome"
	TypeRoomList       = "room_list"
	TypeMessageHistory = "message_history"
	TypeChatCleared    = "chat_cleared"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeRoomCreated    = "room_created"
	TypeRoomUsers      = "room_users"
	TypeError          = "error"
)

// TargetAll addresses a signaling envelope to every other session.
const TargetAll = "all"

func IsSignal(typ string) bool {
	switch typ {
	case TypeOffer, TypeAnswer, TypeICECandidate,
		TypeInitiateCall, TypeAcceptCall, TypeRejectCall, TypeEndCall:
		return true
	}
	return false
}

type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Decode re-marshals an envelope payload into a typed struct. Payloads arrive
// as map[string]any after json.Unmarshal of the whole envelope.
func Decode(payload any, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId,omitempty"` // empty means current room
}

type CreateRoomPayload struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName,omitempty"`
}

// ChatSendPayload carries an outgoing chat message. Tag is a client-generated
// correlation token; the relay echoes it back inside the broadcast so the
// sender can match the canonical message to its provisional copy.
type ChatSendPayload struct {
	Text string `json:"text"`
	Tag  string `json:"tag,omitempty"`
}

type ChatBroadcastPayload struct {
	Message domain.Message `json:"message"`
	Tag     string         `json:"tag,omitempty"`
}

type RoomSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UserCount    int    `json:"userCount"`
	MessageCount int    `json:"messageCount"`
	CreatedAt    int64  `json:"createdAt"`
}

type RoomListPayload struct {
	Rooms []RoomSummary `json:"rooms"`
}

type MessageHistoryPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
}

// PresencePayload backs both user_joined and user_left.
type PresencePayload struct {
	User      User   `json:"user"`
	RoomID    string `json:"roomId"`
	UserCount int    `json:"userCount"`
}

type RoomCreatedPayload struct {
	Room RoomSummary `json:"room"`
}

type RoomUsersPayload struct {
	RoomID    string `json:"roomId"`
	Users     []User `json:"users"`
	UserCount int    `json:"userCount"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Sink delivers envelopes to one connected session. The websocket transport
// implements it on the server; tests substitute recorders.
type Sink interface {
	Send(env Envelope) error
}
