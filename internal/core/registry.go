package core

import (
	"slices"
	"strings"
	"sync"
)

// RoomInfo is a point-in-time view of a live room.
type RoomInfo struct {
	Name    string
	Members int
	Cached  int
	LastSeq int64
}

// Registry maps room names to live rooms. Rooms are created on demand and
// removed as soon as their last member leaves.
//
// Lock order is room.mu before Registry.mu; GetOrCreate and Get take only the
// registry lock, so lookups never wait on a busy room.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	cacheSize int
}

// NewRegistry creates an empty registry whose rooms cache cacheSize messages.
func NewRegistry(cacheSize int) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		cacheSize: cacheSize,
	}
}

// GetOrCreate returns the live room called name, inserting an empty one if absent.
func (r *Registry) GetOrCreate(name string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[name]; ok {
		return room
	}
	room := NewRoom(name, r.cacheSize)
	r.rooms[name] = room
	return room
}

// Get returns the live room called name.
func (r *Registry) Get(name string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	return room, ok
}

// RemoveIfEmpty drops room from the registry iff it has no members and is still
// the registered instance for its name. The caller must hold room.mu.
// A removed room is retired: joiners that locked it late must look it up again.
func (r *Registry) RemoveIfEmpty(room *Room) bool {
	if len(room.members) > 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room.retired = true
	if current, ok := r.rooms[room.Name]; ok && current == room {
		delete(r.rooms, room.Name)
	}
	return true
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Snapshot lists live rooms sorted by name.
func (r *Registry) Snapshot() []RoomInfo {
	r.mu.Lock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		if !room.retired {
			infos = append(infos, RoomInfo{
				Name:    room.Name,
				Members: len(room.members),
				Cached:  room.cache.Len(),
				LastSeq: room.seq,
			})
		}
		room.mu.Unlock()
	}

	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}
