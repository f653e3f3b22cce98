package schedule

import (
	"context"
	"time"
)

// Repository is the persistence contract for schedule settings.
type Repository interface {
	Get(ctx context.Context, tankID string) (*Settings, error)
	Save(ctx context.Context, settings *Settings) error
	ListEnabled(ctx context.Context) ([]Settings, error)

	SetEnabled(ctx context.Context, tankID string, enabled bool, at time.Time) error
	SetOverride(ctx context.Context, tankID string, state OverrideState, at time.Time) error

	// ClearOverride resets the override to none only while it still holds
	// the observed value, so a reconciliation pass never erases an override
	// set concurrently by an operator. Returns false when it lost the race.
	ClearOverride(ctx context.Context, tankID string, observed OverrideState) (bool, error)
}
