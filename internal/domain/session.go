package domain

import "time"

// Session is one live connection. ID changes on every connect; UserID is the
// stable application identity a client can present again after a reconnect.
type Session struct {
	ID          string
	UserID      string
	UserName    string
	RoomID      string // empty while not in a room
	ConnectedAt time.Time
}

func (s *Session) InRoom() bool { return s.RoomID != "" }
