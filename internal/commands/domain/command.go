package commands

import "time"

// Type is the closed set of commands a tank node understands.
type Type string

const (
	TypeLightOn  Type = "light_on"
	TypeLightOff Type = "light_off"
	TypeFeedNow  Type = "feed_now"
)

// ParseType validates a wire value against the closed command set.
func ParseType(value string) (Type, error) {
	switch Type(value) {
	case TypeLightOn, TypeLightOff, TypeFeedNow:
		return Type(value), nil
	}
	return "", ErrUnknownCommandType
}

// Source records who asked for a command.
type Source string

const (
	SourceScheduled Source = "scheduled"
	SourceManual    Source = "manual"
	SourceAdmin     Source = "admin"
)

// Status is the delivery state of a command.
//
// pending -> dispatched -> acked_success (terminal), or on a failed ack
// back to pending while retries remain, else failed (terminal).
type Status string

const (
	StatusPending      Status = "pending"
	StatusDispatched   Status = "dispatched"
	StatusAckedSuccess Status = "acked_success"
	StatusFailed       Status = "failed"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusAckedSuccess || s == StatusFailed
}

// Command is one dispatch attempt lineage for a tank.
type Command struct {
	ID           string
	TankID       string
	Type         Type
	Params       map[string]string
	Source       Source
	Status       Status
	RetryCount   int
	MaxRetries   int
	CreatedAt    time.Time
	DispatchedAt time.Time
	AckedAt      time.Time
	Error        string
}
