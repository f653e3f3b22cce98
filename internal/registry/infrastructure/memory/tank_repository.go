package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	registry "tankfleet-cloud/internal/registry/domain"
)

// TankRepository is an in-memory tank store for tests and local runs.
type TankRepository struct {
	mu    sync.RWMutex
	tanks map[string]*registry.Tank
}

// NewTankRepository constructs an empty repository.
func NewTankRepository() *TankRepository {
	return &TankRepository{tanks: make(map[string]*registry.Tank)}
}

// Create inserts a tank; names are unique.
func (r *TankRepository) Create(_ context.Context, tank *registry.Tank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tanks {
		if existing.Name == tank.Name {
			return registry.ErrNameTaken
		}
	}
	clone := *tank
	r.tanks[tank.ID] = &clone
	return nil
}

// GetByID returns a tank by id, or (nil, nil).
func (r *TankRepository) GetByID(_ context.Context, id string) (*registry.Tank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tank, ok := r.tanks[id]
	if !ok {
		return nil, nil
	}
	clone := *tank
	return &clone, nil
}

// GetByName returns a tank by name, or (nil, nil).
func (r *TankRepository) GetByName(_ context.Context, name string) (*registry.Tank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tank := range r.tanks {
		if tank.Name == name {
			clone := *tank
			return &clone, nil
		}
	}
	return nil, nil
}

// ListAll returns all tanks ordered by name.
func (r *TankRepository) ListAll(_ context.Context) ([]registry.Tank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]registry.Tank, 0, len(r.tanks))
	for _, tank := range r.tanks {
		result = append(result, *tank)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateToken replaces the device token.
func (r *TankRepository) UpdateToken(_ context.Context, id, token string, issuedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tank, ok := r.tanks[id]
	if !ok {
		return registry.ErrTankNotFound
	}
	tank.Token = token
	tank.TokenIssuedAt = issuedAt
	return nil
}

// RecordHeartbeat stores last_seen and telemetry and marks the tank online.
func (r *TankRepository) RecordHeartbeat(_ context.Context, id string, seenAt time.Time, telemetry registry.Telemetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tank, ok := r.tanks[id]
	if !ok {
		return registry.ErrTankNotFound
	}
	tank.LastSeenAt = seenAt
	tank.IsOnline = true
	if telemetry.LightState != nil {
		value := *telemetry.LightState
		tank.LightState = &value
	}
	if telemetry.Temperature != nil {
		value := *telemetry.Temperature
		tank.Temperature = &value
	}
	if telemetry.PH != nil {
		value := *telemetry.PH
		tank.PH = &value
	}
	if telemetry.FirmwareVersion != "" {
		tank.FirmwareVersion = telemetry.FirmwareVersion
	}
	return nil
}

// MarkOffline flips is_online to false unless a newer heartbeat arrived.
func (r *TankRepository) MarkOffline(_ context.Context, id string, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tank, ok := r.tanks[id]
	if !ok {
		return false, registry.ErrTankNotFound
	}
	if !tank.IsOnline || tank.LastSeenAt.After(cutoff) {
		return false, nil
	}
	tank.IsOnline = false
	return true, nil
}
