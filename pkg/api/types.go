package api

import (
	"errors"
	"time"
)

// ErrStateNotFound is returned by state stores for unknown connection ids.
var ErrStateNotFound = errors.New("state not found")

// State is the part of a logical connection that outlives a transport:
// the delivery cursor and the group set the server last reported.
type State struct {
	ConnectionID string    `json:"connection_id"`
	MessageID    *int64    `json:"message_id,omitempty"`
	Groups       []string  `json:"groups"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Cursor returns the message id and whether it has been set.
func (s State) Cursor() (int64, bool) {
	if s.MessageID == nil {
		return 0, false
	}
	return *s.MessageID, true
}
