package http

import (
	"github.com/cwrk-planet/relay-service/internal/domain"
	"github.com/cwrk-planet/relay-service/internal/wire"
)

type CreateRoomRequest struct {
	RoomID   string `json:"roomId" validate:"required,roomid"`
	RoomName string `json:"roomName" validate:"max=100"`
}

type RoomsListResponse struct {
	Rooms []wire.RoomSummary `json:"rooms"`
}

type MessagesResponse struct {
	RoomID   string           `json:"roomId"`
	Total    int              `json:"total"`
	Messages []domain.Message `json:"messages"`
}

type HealthResponse struct {
	Status    string   `json:"status"`
	Service   string   `json:"service"`
	Timestamp string   `json:"timestamp"`
	Features  []string `json:"features"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
