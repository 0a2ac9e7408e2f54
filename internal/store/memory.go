package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps room logs in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]*Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]*Message)}
}

// Insert appends a copy of msg to the room log.
func (s *MemoryStore) Insert(_ context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("insert message: nil message")
	}
	cp := *msg

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[msg.Room] = append(s.rooms[msg.Room], &cp)
	return nil
}

// QueryRecent returns up to limit newest messages, oldest-first.
func (s *MemoryStore) QueryRecent(_ context.Context, room string, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.rooms[room]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	return copyMessages(log[len(log)-limit:]), nil
}

// QueryPage returns one page counting back from the newest message.
func (s *MemoryStore) QueryPage(_ context.Context, room string, page, pageSize int) ([]*Message, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("query page: invalid page size %d", pageSize)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.rooms[room]
	end := len(log) - PageOffset(page, pageSize)
	if end <= 0 {
		return []*Message{}, nil
	}
	start := max(end-pageSize, 0)
	return copyMessages(log[start:end]), nil
}

// CountMessages returns the size of the room log.
func (s *MemoryStore) CountMessages(_ context.Context, room string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rooms[room])), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func copyMessages(src []*Message) []*Message {
	out := make([]*Message, 0, len(src))
	for _, m := range src {
		cp := *m
		out = append(out, &cp)
	}
	return out
}
