package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeValidation    = "validation_error"
	ErrCodeUnidentified  = "unidentified_client"
	ErrCodeAlreadyMember = "already_member"
	ErrCodeNotMember     = "not_member"
	ErrCodeTransport     = "transport_error"
	ErrCodePersistence   = "persistence_error"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrUnidentifiedClient = errors.New("username not set")
	ErrAlreadyMember      = errors.New("client already in a room")
	ErrNotMember          = errors.New("client not in room")
	ErrTransport          = errors.New("transport error")
	ErrPersistence        = errors.New("persistence error")
)

// CoreError wraps a code and human-readable message.
// Err is the sentinel it matches with errors.Is.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// AsCoreError extracts a *CoreError from err, if any.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ValidationError builds a client-facing validation failure.
func ValidationError(format string, args ...any) *CoreError {
	return &CoreError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

func unidentifiedError() *CoreError {
	return &CoreError{
		Code:    ErrCodeUnidentified,
		Message: "set a username with /user <name> before sending messages",
		Err:     ErrUnidentifiedClient,
	}
}

func alreadyMemberError(clientID, room string) *CoreError {
	return &CoreError{
		Code:    ErrCodeAlreadyMember,
		Message: fmt.Sprintf("client %s is already in room %q", clientID, room),
		Err:     ErrAlreadyMember,
	}
}

func notMemberError(room string) *CoreError {
	return &CoreError{
		Code:    ErrCodeNotMember,
		Message: fmt.Sprintf("not a member of room %q", room),
		Err:     ErrNotMember,
	}
}

func persistenceError(err error) *CoreError {
	return &CoreError{
		Code:    ErrCodePersistence,
		Message: "message history is unavailable",
		Err:     fmt.Errorf("%w: %w", ErrPersistence, err),
	}
}
