package core

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
	"github.com/vovakirdan/roomchat/internal/utils"
)

// MaxHistoryLimit caps how many messages a single history request may return.
const MaxHistoryLimit = 1000

// Options tunes the hub. Zero values fall back to defaults.
type Options struct {
	CacheSize         int
	MaxUsernameLength int
	MaxMessageLength  int
	PersistQueueSize  int
	PersistRetries    int
	PersistTimeout    time.Duration
	OnPersistFailure  PersistFailureFunc
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		CacheSize:         DefaultCacheSize,
		MaxUsernameLength: 32,
		MaxMessageLength:  4000,
		PersistQueueSize:  1024,
		PersistRetries:    2,
		PersistTimeout:    3 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CacheSize <= 0 {
		o.CacheSize = d.CacheSize
	}
	if o.MaxUsernameLength <= 0 {
		o.MaxUsernameLength = d.MaxUsernameLength
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.PersistQueueSize <= 0 {
		o.PersistQueueSize = d.PersistQueueSize
	}
	if o.PersistRetries < 0 {
		o.PersistRetries = 0
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = d.PersistTimeout
	}
	return o
}

// JoinResult is returned to a client that joined a room.
type JoinResult struct {
	Room    string
	History []ChatMessage
	Members int
}

// Hub owns all room state. Every mutation goes through its methods and runs
// under the affected room's lock; different rooms never contend.
type Hub struct {
	registry  *Registry
	store     store.MessageStore
	persister *persister
	opts      Options
	log       *zerolog.Logger

	// clientID -> room, guards the one-room-per-client rule
	clientsMu sync.Mutex
	clients   map[string]string
}

// NewHub creates a hub. A nil store disables persistence and store-backed history.
func NewHub(st store.MessageStore, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts = opts.withDefaults()

	h := &Hub{
		registry: NewRegistry(opts.CacheSize),
		store:    st,
		opts:     opts,
		log:      logger,
		clients:  make(map[string]string),
	}
	if st != nil {
		h.persister = newPersister(st, opts, logger)
	}
	return h
}

// Run processes durable writes until ctx is done, then flushes pending ones.
func (h *Hub) Run(ctx context.Context) {
	if h.persister == nil {
		<-ctx.Done()
		return
	}
	h.persister.run(ctx)
}

// Registry exposes the room registry for inspection.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Rooms lists live rooms.
func (h *Hub) Rooms() []RoomInfo {
	return h.registry.Snapshot()
}

// Join adds client to roomName, creating the room if needed. Other members get
// a UserJoined event; the joiner gets the cached history.
func (h *Hub) Join(ctx context.Context, roomName string, client *Client) (JoinResult, error) {
	if err := ValidateRoomName(roomName); err != nil {
		return JoinResult{}, err
	}
	if current, ok := h.reserve(client.ID, roomName); !ok {
		h.log.Error().Str("client_id", client.ID).Str("room", roomName).Str("current_room", current).
			Msg("client joined twice")
		return JoinResult{}, alreadyMemberError(client.ID, current)
	}

	for {
		room := h.registry.GetOrCreate(roomName)
		if err := h.warm(ctx, room); err != nil {
			h.log.Warn().Err(err).Str("room", roomName).Msg("room history not loaded")
		}

		room.mu.Lock()
		if room.retired {
			// Lost a race with the last leave; the next lookup creates a fresh room.
			room.mu.Unlock()
			continue
		}
		room.members[client.ID] = client
		history := room.cache.Snapshot()
		members := len(room.members)
		room.broadcast(&Event{Kind: EventUserJoined, Room: roomName, User: client.Name()}, client.ID)
		room.mu.Unlock()

		h.log.Info().Str("client_id", client.ID).Str("room", roomName).Int("members", members).Msg("client joined")
		return JoinResult{Room: roomName, History: history, Members: members}, nil
	}
}

// SetUsername records the display name for a member. Repeating it is harmless.
func (h *Hub) SetUsername(clientID, roomName, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError("username must not be empty")
	}
	if utf8.RuneCountInString(name) > h.opts.MaxUsernameLength {
		return ValidationError("username exceeds %d characters", h.opts.MaxUsernameLength)
	}

	room, ok := h.registry.Get(roomName)
	if !ok {
		return notMemberError(roomName)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	client, ok := room.members[clientID]
	if !ok {
		return notMemberError(roomName)
	}
	old := client.Name()
	client.setName(name)

	if old != name {
		h.log.Info().Str("client_id", clientID).Str("room", roomName).Str("username", name).Msg("username set")
	}
	return nil
}

// SendMessage assigns the next room seq to body and broadcasts it to every
// member, sender included. The durable write happens asynchronously.
func (h *Hub) SendMessage(roomName, clientID, body string) (ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return ChatMessage{}, ValidationError("message must not be empty")
	}
	if utf8.RuneCountInString(body) > h.opts.MaxMessageLength {
		return ChatMessage{}, ValidationError("message exceeds %d characters", h.opts.MaxMessageLength)
	}

	room, ok := h.registry.Get(roomName)
	if !ok {
		return ChatMessage{}, notMemberError(roomName)
	}

	if !room.loaded.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
		err := h.warm(ctx, room)
		cancel()
		if err != nil {
			h.log.Error().Err(err).Str("room", roomName).Msg("seq base unknown, message rejected")
			return ChatMessage{}, err
		}
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	client, ok := room.members[clientID]
	if !ok {
		return ChatMessage{}, notMemberError(roomName)
	}
	if !client.Identified() {
		return ChatMessage{}, unidentifiedError()
	}

	room.seq++
	msg := ChatMessage{
		ID:        utils.NewMessageID(),
		Room:      roomName,
		ClientID:  clientID,
		Username:  client.Name(),
		Body:      body,
		CreatedAt: time.Now().UTC(),
		Seq:       room.seq,
	}
	room.cache.Append(msg)
	if h.persister != nil {
		h.persister.enqueue(msg)
	}

	if dropped := room.broadcast(&Event{Kind: EventNewMessage, Room: roomName, User: msg.Username, Message: msg}, ""); dropped > 0 {
		h.log.Warn().Str("room", roomName).Int64("seq", msg.Seq).Int("dropped", dropped).Msg("slow consumers skipped")
	}
	return msg, nil
}

// Leave removes clientID from roomName and deletes the room once empty.
// Calling it again for the same client is a no-op.
func (h *Hub) Leave(roomName, clientID string) {
	defer h.release(clientID, roomName)

	room, ok := h.registry.Get(roomName)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	client, ok := room.members[clientID]
	if !ok {
		return
	}
	delete(room.members, clientID)
	room.broadcast(&Event{Kind: EventUserLeft, Room: roomName, User: client.Name()}, "")

	removed := h.registry.RemoveIfEmpty(room)
	h.log.Info().Str("client_id", clientID).Str("room", roomName).Bool("room_removed", removed).Msg("client left")
}

// LoadHistory returns up to limit most recent messages, oldest-first. A warm
// cache that already holds limit messages answers without touching the store;
// otherwise store rows are merged with the cache, cache entries winning.
func (h *Hub) LoadHistory(ctx context.Context, roomName string, limit int) ([]ChatMessage, error) {
	if err := ValidateRoomName(roomName); err != nil {
		return nil, err
	}
	limit = ClampHistoryLimit(limit, h.opts.CacheSize)

	var (
		cached []ChatMessage
		warm   bool
	)
	if room, ok := h.registry.Get(roomName); ok {
		cached, warm = room.CacheSnapshot()
	}

	if warm && len(cached) >= limit {
		return tail(cached, limit), nil
	}
	if h.store == nil {
		return tail(cached, limit), nil
	}

	rows, err := h.store.QueryRecent(ctx, roomName, limit)
	if err != nil {
		perr := persistenceError(err)
		if len(cached) > 0 {
			h.log.Warn().Err(perr.Err).Str("room", roomName).Msg("history from cache only")
			return tail(cached, limit), nil
		}
		h.log.Error().Err(perr.Err).Str("room", roomName).Msg("load history")
		return nil, perr
	}

	return tail(mergeHistory(fromStoreMessages(rows), cached), limit), nil
}

// ClampHistoryLimit maps a requested count into [1, MaxHistoryLimit]; zero or
// negative selects def.
func ClampHistoryLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	return min(max(limit, 1), MaxHistoryLimit)
}

// warm seeds a fresh room from the store outside the room lock. Until it
// succeeds the room's seq base is unknown, so a failed seed is retried by the
// next join or send instead of being marked done.
func (h *Hub) warm(ctx context.Context, room *Room) error {
	if room.loaded.Load() {
		return nil
	}
	room.loadMu.Lock()
	defer room.loadMu.Unlock()
	if room.loaded.Load() {
		return nil
	}

	var (
		msgs []ChatMessage
		base int64
	)
	if h.store != nil {
		// Writes from a previous instance of this room may still be queued.
		// Read the mark before the store so a write landing in between is seen.
		base = h.persister.highWater(room.Name)
		rows, err := h.store.QueryRecent(ctx, room.Name, h.opts.CacheSize)
		if err != nil {
			return persistenceError(err)
		}
		msgs = fromStoreMessages(rows)
		if n := len(msgs); n > 0 {
			base = max(base, msgs[n-1].Seq)
		}
	}

	room.mu.Lock()
	room.cache.Seed(msgs)
	room.seq = max(room.seq, base)
	room.mu.Unlock()

	room.loaded.Store(true)
	return nil
}

func (h *Hub) reserve(clientID, roomName string) (string, bool) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if current, ok := h.clients[clientID]; ok {
		return current, false
	}
	h.clients[clientID] = roomName
	return roomName, true
}

func (h *Hub) release(clientID, roomName string) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if h.clients[clientID] == roomName {
		delete(h.clients, clientID)
	}
}

// mergeHistory unions store rows and cached messages by seq, oldest-first.
func mergeHistory(stored, cached []ChatMessage) []ChatMessage {
	bySeq := make(map[int64]ChatMessage, len(stored)+len(cached))
	for _, m := range stored {
		bySeq[m.Seq] = m
	}
	for _, m := range cached {
		bySeq[m.Seq] = m
	}

	merged := make([]ChatMessage, 0, len(bySeq))
	for _, m := range bySeq {
		merged = append(merged, m)
	}
	slices.SortFunc(merged, func(a, b ChatMessage) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return merged
}

func tail(msgs []ChatMessage, n int) []ChatMessage {
	if len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}
