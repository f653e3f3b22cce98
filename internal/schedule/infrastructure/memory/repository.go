package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Repository is an in-memory schedule store for tests and local runs.
type Repository struct {
	mu       sync.RWMutex
	settings map[string]*schedule.Settings
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{settings: make(map[string]*schedule.Settings)}
}

// Get fetches a tank's settings; (nil, nil) when none exist.
func (r *Repository) Get(_ context.Context, tankID string) (*schedule.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[tankID]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

// Save upserts a tank's settings.
func (r *Repository) Save(_ context.Context, settings *schedule.Settings) error {
	if settings == nil || settings.TankID == "" {
		return schedule.ErrSettingsNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *settings
	r.settings[settings.TankID] = &clone
	return nil
}

// ListEnabled returns every enabled schedule, ordered by tank id.
func (r *Repository) ListEnabled(_ context.Context) ([]schedule.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []schedule.Settings
	for _, s := range r.settings {
		if s.Enabled {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TankID < result[j].TankID })
	return result, nil
}

// SetEnabled toggles scheduling for a tank.
func (r *Repository) SetEnabled(_ context.Context, tankID string, enabled bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tankID]
	if !ok {
		return schedule.ErrSettingsNotFound
	}
	s.Enabled = enabled
	s.UpdatedAt = at
	return nil
}

// SetOverride stores an operator override for the next pass.
func (r *Repository) SetOverride(_ context.Context, tankID string, state schedule.OverrideState, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tankID]
	if !ok {
		return schedule.ErrSettingsNotFound
	}
	s.Override = state
	s.OverrideSetAt = at
	return nil
}

// ClearOverride resets the override only while it still holds the observed
// value.
func (r *Repository) ClearOverride(_ context.Context, tankID string, observed schedule.OverrideState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[tankID]
	if !ok {
		return false, schedule.ErrSettingsNotFound
	}
	if s.Override != observed {
		return false, nil
	}
	s.Override = schedule.OverrideNone
	s.OverrideSetAt = time.Time{}
	return true, nil
}
