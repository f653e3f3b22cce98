package commands

import (
	"context"
	"time"
)

// Repository is the persistence contract for commands. Every status
// transition is a compare-and-swap: the update only applies while the row
// is still in the expected prior status, and the bool result reports
// whether this caller won. Lookup methods return (nil, nil) on no match.
type Repository interface {
	Create(ctx context.Context, cmd *Command) error
	GetByID(ctx context.Context, id string) (*Command, error)

	// OldestPending returns the FIFO head (by created_at) of the tank's
	// pending commands.
	OldestPending(ctx context.Context, tankID string) (*Command, error)

	// Dispatched returns the tank's in-flight command, if any. Single-flight
	// delivery means there is at most one.
	Dispatched(ctx context.Context, tankID string) (*Command, error)

	// MarkDispatched moves pending -> dispatched.
	MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkAckedSuccess moves dispatched -> acked_success.
	MarkAckedSuccess(ctx context.Context, id string, at time.Time) (bool, error)

	// Requeue moves dispatched -> pending after a failed attempt, storing
	// the new retry count and the failure reason.
	Requeue(ctx context.Context, id string, retryCount int, reason string) (bool, error)

	// MarkFailed moves dispatched -> failed (terminal) once retries are
	// exhausted.
	MarkFailed(ctx context.Context, id string, retryCount int, at time.Time, reason string) (bool, error)

	// ListDispatchedBefore returns commands dispatched earlier than the
	// cutoff, for the delivery timeout sweep.
	ListDispatchedBefore(ctx context.Context, cutoff time.Time) ([]Command, error)

	// ListByTankAndTime lists a tank's commands in [from, to) ordered by
	// created_at.
	ListByTankAndTime(ctx context.Context, tankID string, from, to time.Time) ([]Command, error)
}
