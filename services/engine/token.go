package engine

import (
	"time"

	"github.com/google/uuid"
)

// Token is a session credential issued to one machine. The kiosk
// attaches its value to every action until it expires.
type Token struct {
	ID        uuid.UUID
	MachineID string
	Value     string
	ExpiresAt time.Time
}
