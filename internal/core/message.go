package core

import (
	"time"

	"github.com/vovakirdan/roomchat/internal/store"
)

// ChatMessage is the domain model for a chat message. Immutable once created.
type ChatMessage struct {
	ID        string
	Room      string
	ClientID  string
	Username  string
	Body      string
	CreatedAt time.Time
	Seq       int64
}

func toStoreMessage(m ChatMessage) *store.Message {
	return &store.Message{
		ID:        m.ID,
		Room:      m.Room,
		Seq:       m.Seq,
		ClientID:  m.ClientID,
		Username:  m.Username,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func fromStoreMessages(rows []*store.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		out = append(out, ChatMessage{
			ID:        r.ID,
			Room:      r.Room,
			ClientID:  r.ClientID,
			Username:  r.Username,
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
			Seq:       r.Seq,
		})
	}
	return out
}
