package common

import (
	"github.com/google/uuid"
)

// NewClientID generates a unique client instance ID with the "cli_" prefix.
// Format: cli_<uuid>
func NewClientID() string {
	return "cli_" + uuid.New().String()
}

// NewTriggerID generates a trigger ID with the "trg_" prefix.
// Used by tests and the local runner when simulating coordinator triggers.
func NewTriggerID() string {
	return "trg_" + uuid.New().String()
}
