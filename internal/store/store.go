package store

import (
	"context"
	"time"
)

// Message represents a persisted chat message.
type Message struct {
	ID        string
	Room      string
	Seq       int64
	ClientID  string
	Username  string
	Body      string
	CreatedAt time.Time
}

// MessageStore defines durable message persistence operations.
// Query methods return messages oldest-first (newest last).
type MessageStore interface {
	// Insert appends one message to the room log.
	Insert(ctx context.Context, msg *Message) error

	// QueryRecent returns up to limit most recent messages of the room.
	QueryRecent(ctx context.Context, room string, limit int) ([]*Message, error)

	// QueryPage returns page (1-based) of the room log counting back from the newest message.
	QueryPage(ctx context.Context, room string, page, pageSize int) ([]*Message, error)

	// CountMessages returns the number of persisted messages in the room.
	CountMessages(ctx context.Context, room string) (int64, error)

	// Close releases the underlying connections.
	Close() error
}

// PageOffset converts a 1-based page number into a row offset.
func PageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// Reverse flips a newest-first result set into oldest-first order in place.
func Reverse(msgs []*Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
