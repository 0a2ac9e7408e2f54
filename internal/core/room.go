package core

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// MaxRoomNameLength bounds the room name taken from the request path.
const MaxRoomNameLength = 64

// Room groups clients subscribed to the same broadcast domain.
// mu linearizes every join, send and leave in the room.
type Room struct {
	Name string

	mu      sync.Mutex
	members map[string]*Client
	cache   *HistoryCache
	seq     int64
	retired bool

	// loadMu serializes seeding; loaded flips once the seq base is known.
	loadMu sync.Mutex
	loaded atomic.Bool
}

// NewRoom constructs a room with no members and a cold cache.
func NewRoom(name string, cacheSize int) *Room {
	return &Room{
		Name:    name,
		members: make(map[string]*Client),
		cache:   NewHistoryCache(cacheSize),
	}
}

// broadcast enqueues ev for every member except the one with id except.
// Returns how many members had a full queue. Caller holds r.mu.
func (r *Room) broadcast(ev *Event, except string) int {
	dropped := 0
	for id, client := range r.members {
		if id == except {
			continue
		}
		if !client.Deliver(ev) {
			dropped++
		}
	}
	return dropped
}

// MemberCount returns the current number of members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// HasMember reports whether clientID is in the room.
func (r *Room) HasMember(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[clientID]
	return ok
}

// CacheSnapshot returns the cached history and whether the cache is warm.
func (r *Room) CacheSnapshot() ([]ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Snapshot(), r.cache.Warm()
}

// ValidateRoomName checks a room name taken from the request path.
func ValidateRoomName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return ValidationError("room name is required")
	case utf8.RuneCountInString(name) > MaxRoomNameLength:
		return ValidationError("room name exceeds %d characters", MaxRoomNameLength)
	case strings.ContainsAny(name, "/\\") || strings.ContainsFunc(name, isControl):
		return ValidationError("room name contains invalid characters")
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
