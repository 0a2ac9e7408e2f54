package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage notifies clients about a chat message in a room.
	EventNewMessage EventKind = iota
	// EventUserJoined notifies clients about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving a room.
	EventUserLeft
	// EventHistory delivers message history to a client.
	EventHistory
	// EventError notifies clients about a domain error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "NewMessage"
	case EventUserJoined:
		return "UserJoined"
	case EventUserLeft:
		return "UserLeft"
	case EventHistory:
		return "History"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is sent to clients to describe what happened in a room.
// Presence events (joined/left) are never persisted.
type Event struct {
	Kind     EventKind
	Room     string
	User     string
	Message  ChatMessage
	Messages []ChatMessage // For EventHistory
	Error    *CoreError
}
