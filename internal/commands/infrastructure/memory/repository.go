package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	commands "tankfleet-cloud/internal/commands/domain"
)

// Repository is an in-memory command store for tests and local runs. All
// status transitions are compare-and-swap, mirroring the Postgres
// implementation.
type Repository struct {
	mu   sync.Mutex
	cmds map[string]*commands.Command
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{cmds: make(map[string]*commands.Command)}
}

// Create inserts a command.
func (r *Repository) Create(_ context.Context, cmd *commands.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[cmd.ID] = cloneCommand(cmd)
	return nil
}

// GetByID returns a command by id, or (nil, nil).
func (r *Repository) GetByID(_ context.Context, id string) (*commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[id]
	if !ok {
		return nil, nil
	}
	return cloneCommand(cmd), nil
}

// OldestPending returns the FIFO head of the tank's pending commands.
func (r *Repository) OldestPending(_ context.Context, tankID string) (*commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *commands.Command
	for _, cmd := range r.cmds {
		if cmd.TankID != tankID || cmd.Status != commands.StatusPending {
			continue
		}
		if oldest == nil || cmd.CreatedAt.Before(oldest.CreatedAt) ||
			(cmd.CreatedAt.Equal(oldest.CreatedAt) && cmd.ID < oldest.ID) {
			oldest = cmd
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return cloneCommand(oldest), nil
}

// Dispatched returns the tank's in-flight command, if any.
func (r *Repository) Dispatched(_ context.Context, tankID string) (*commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range r.cmds {
		if cmd.TankID == tankID && cmd.Status == commands.StatusDispatched {
			return cloneCommand(cmd), nil
		}
	}
	return nil, nil
}

// MarkDispatched moves pending -> dispatched.
func (r *Repository) MarkDispatched(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[id]
	if !ok || cmd.Status != commands.StatusPending {
		return false, nil
	}
	cmd.Status = commands.StatusDispatched
	cmd.DispatchedAt = at
	return true, nil
}

// MarkAckedSuccess moves dispatched -> acked_success.
func (r *Repository) MarkAckedSuccess(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[id]
	if !ok || cmd.Status != commands.StatusDispatched {
		return false, nil
	}
	cmd.Status = commands.StatusAckedSuccess
	cmd.AckedAt = at
	return true, nil
}

// Requeue moves dispatched -> pending after a failed attempt.
func (r *Repository) Requeue(_ context.Context, id string, retryCount int, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[id]
	if !ok || cmd.Status != commands.StatusDispatched {
		return false, nil
	}
	cmd.Status = commands.StatusPending
	cmd.RetryCount = retryCount
	cmd.DispatchedAt = time.Time{}
	cmd.Error = reason
	return true, nil
}

// MarkFailed moves dispatched -> failed.
func (r *Repository) MarkFailed(_ context.Context, id string, retryCount int, at time.Time, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.cmds[id]
	if !ok || cmd.Status != commands.StatusDispatched {
		return false, nil
	}
	cmd.Status = commands.StatusFailed
	cmd.RetryCount = retryCount
	cmd.AckedAt = at
	cmd.Error = reason
	return true, nil
}

// ListDispatchedBefore returns commands dispatched earlier than the cutoff.
func (r *Repository) ListDispatchedBefore(_ context.Context, cutoff time.Time) ([]commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []commands.Command
	for _, cmd := range r.cmds {
		if cmd.Status == commands.StatusDispatched && !cmd.DispatchedAt.After(cutoff) {
			result = append(result, *cloneCommand(cmd))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DispatchedAt.Before(result[j].DispatchedAt) })
	return result, nil
}

// ListByTankAndTime lists a tank's commands in [from, to) by created_at.
func (r *Repository) ListByTankAndTime(_ context.Context, tankID string, from, to time.Time) ([]commands.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []commands.Command
	for _, cmd := range r.cmds {
		if cmd.TankID != tankID {
			continue
		}
		if cmd.CreatedAt.Before(from) || !cmd.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneCommand(cmd))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func cloneCommand(cmd *commands.Command) *commands.Command {
	clone := *cmd
	if cmd.Params != nil {
		clone.Params = make(map[string]string, len(cmd.Params))
		for k, v := range cmd.Params {
			clone.Params[k] = v
		}
	}
	return &clone
}
