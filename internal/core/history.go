package core

import "github.com/gammazero/deque"

// DefaultCacheSize is the number of recent messages kept in memory per room.
const DefaultCacheSize = 50

// HistoryCache is a bounded FIFO of a room's most recent messages.
// It is not safe for concurrent use; the owning room's lock guards it.
type HistoryCache struct {
	capacity int
	buf      deque.Deque[ChatMessage]
	warm     bool
}

// NewHistoryCache creates an empty, cold cache holding at most capacity messages.
func NewHistoryCache(capacity int) *HistoryCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &HistoryCache{capacity: capacity}
}

// Append inserts msg at the tail and evicts the oldest entry past capacity.
func (h *HistoryCache) Append(msg ChatMessage) {
	h.buf.PushBack(msg)
	for h.buf.Len() > h.capacity {
		h.buf.PopFront()
	}
	h.warm = true
}

// Seed replaces the contents with msgs (oldest-first), keeping the newest entries.
func (h *HistoryCache) Seed(msgs []ChatMessage) {
	h.buf.Clear()
	if len(msgs) > h.capacity {
		msgs = msgs[len(msgs)-h.capacity:]
	}
	for _, m := range msgs {
		h.buf.PushBack(m)
	}
	h.warm = true
}

// Snapshot returns a copy of all cached messages, oldest-first.
func (h *HistoryCache) Snapshot() []ChatMessage {
	out := make([]ChatMessage, h.buf.Len())
	for i := range out {
		out[i] = h.buf.At(i)
	}
	return out
}

// Warm reports whether the cache has been seeded or appended to.
func (h *HistoryCache) Warm() bool {
	return h.warm
}

// Len returns the number of cached messages.
func (h *HistoryCache) Len() int {
	return h.buf.Len()
}

// Capacity returns the maximum number of cached messages.
func (h *HistoryCache) Capacity() int {
	return h.capacity
}
