package commands

import "errors"

var (
	// ErrCommandNotFound is returned when a command id is unknown.
	ErrCommandNotFound = errors.New("commands: command not found")
	// ErrUnknownCommandType is returned for payloads outside the closed set.
	ErrUnknownCommandType = errors.New("commands: unknown command type")
	// ErrNotDispatched is returned for a stale or duplicate acknowledgment.
	ErrNotDispatched = errors.New("commands: command not dispatched")
	// ErrNotCommandOwner is returned when a tank acks a command it does not own.
	ErrNotCommandOwner = errors.New("commands: command owned by another tank")
)
