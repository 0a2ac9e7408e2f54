package proto

import "time"

// Outbound frame types.
const (
	TypeNewMessage = "NewMessage"
	TypeUserJoined = "UserJoined"
	TypeUserLeft   = "UserLeft"
	TypeHistory    = "History"
	TypeError      = "Error"
)

// NewMessage is a chat message broadcast to a room.
type NewMessage struct {
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// UserJoined notifies that a user joined the room.
type UserJoined struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// UserLeft notifies that a user left the room.
type UserLeft struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// History carries past messages, oldest-first.
type History struct {
	Type     string       `json:"type"`
	Messages []NewMessage `json:"messages"`
}

// Error describes a rejected request. The connection stays open.
type Error struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

// Frame decodes any outbound frame; which fields are set depends on Type.
type Frame struct {
	Type      string       `json:"type"`
	Username  string       `json:"username,omitempty"`
	Content   string       `json:"content,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Seq       int64        `json:"seq,omitempty"`
	Messages  []NewMessage `json:"messages,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Code      string       `json:"code,omitempty"`
}
