package domain

// Message is an immutable, server-assigned chat entry.
// Timestamp is epoch milliseconds everywhere on the wire.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}
