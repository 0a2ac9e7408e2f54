package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Inbound JSON message types.
const (
	InboundTypeSetUsername = "SetUsername"
	InboundTypeMessage     = "Message"
	InboundTypeHistory     = "History"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownType  = errors.New("unknown message type")
	ErrHistoryCount = errors.New("history count must be a positive number")
)

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandNone is a blank frame; it is ignored.
	CommandNone CommandKind = iota
	// CommandChat sends a chat message to the room.
	CommandChat
	// CommandSetUsername sets or changes the display name.
	CommandSetUsername
	// CommandHistory requests past messages.
	CommandHistory
)

// Command is a parsed inbound frame.
type Command struct {
	Kind     CommandKind
	Username string
	Content  string
	// Limit is the requested history size; zero selects the server default.
	Limit int
}

// Inbound is the JSON form of a client frame.
type Inbound struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ParseInbound decodes a client frame. Frames starting with '{' are JSON;
// anything else is a text line: "/user <name>", "/history [n]" or chat.
func ParseInbound(data []byte) (Command, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Command{Kind: CommandNone}, nil
	}
	if strings.HasPrefix(text, "{") {
		return parseJSON([]byte(text))
	}
	return parseText(text)
}

func parseText(text string) (Command, error) {
	switch {
	case text == "/user" || strings.HasPrefix(text, "/user "):
		return Command{Kind: CommandSetUsername, Username: strings.TrimSpace(strings.TrimPrefix(text, "/user"))}, nil
	case text == "/history":
		return Command{Kind: CommandHistory}, nil
	case strings.HasPrefix(text, "/history "):
		arg := strings.TrimSpace(strings.TrimPrefix(text, "/history"))
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Command{}, fmt.Errorf("%w: %q", ErrHistoryCount, arg)
		}
		return Command{Kind: CommandHistory, Limit: n}, nil
	default:
		return Command{Kind: CommandChat, Content: text}, nil
	}
}

func parseJSON(data []byte) (Command, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch in.Type {
	case InboundTypeSetUsername:
		return Command{Kind: CommandSetUsername, Username: strings.TrimSpace(in.Username)}, nil
	case InboundTypeMessage:
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return Command{Kind: CommandNone}, nil
		}
		return Command{Kind: CommandChat, Content: content}, nil
	case InboundTypeHistory:
		if in.Limit < 0 {
			return Command{}, fmt.Errorf("%w: %d", ErrHistoryCount, in.Limit)
		}
		return Command{Kind: CommandHistory, Limit: in.Limit}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}
