package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewClientID returns a random 128-bit connection identifier.
func NewClientID() string {
	return uuid.NewString()
}

// NewMessageID returns a lexicographically sortable message identifier.
func NewMessageID() string {
	return ulid.Make().String()
}
