package common

import (
	"github.com/google/uuid"
)

// NewEventID generates a unique event ID with the "evt_" prefix
// Format: evt_<uuid>
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewLockToken generates an opaque lease token for the lock provider
func NewLockToken() string {
	return "lck_" + uuid.New().String()
}
