package events

import (
	"context"
	"time"

	"github.com/pborman/uuid"
)

// Type enumerates the audit event kinds the engine records.
type Type string

const (
	TypeRegistered      Type = "registered"
	TypeOnline          Type = "online"
	TypeOffline         Type = "offline"
	TypeScheduleOn      Type = "schedule_on"
	TypeScheduleOff     Type = "schedule_off"
	TypeOverrideSet     Type = "override_set"
	TypeOverrideCleared Type = "override_cleared"
	TypeScheduleToggled Type = "schedule_toggled"
	TypeCommandSuccess  Type = "command_success"
	TypeCommandFailed   Type = "command_failed"
)

// Event is one append-only audit record. Events are never mutated or
// deleted by the engine; retention is an operational concern.
type Event struct {
	ID        string
	TankID    string
	Type      Type
	Source    string
	Detail    string
	CreatedAt time.Time
}

// Recorder appends audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NewID generates a random event id.
func NewID() string {
	return "evt-" + uuid.New()
}
