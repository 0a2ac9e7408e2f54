package http

import "sync/atomic"

// SessionState is a websocket session lifecycle stage.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAwaitingUsername
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingUsername:
		return "awaiting_username"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sessionState is advanced only forward; Closed is terminal.
type sessionState struct {
	v atomic.Int32
}

func (s *sessionState) load() SessionState {
	return SessionState(s.v.Load())
}

// advance moves to next if it is later than the current state.
func (s *sessionState) advance(next SessionState) bool {
	for {
		cur := s.v.Load()
		if SessionState(cur) >= next {
			return false
		}
		if s.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}
