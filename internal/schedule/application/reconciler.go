package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	commands "tankfleet-cloud/internal/commands/domain"
	"tankfleet-cloud/internal/events"
	"tankfleet-cloud/internal/observability/metrics"
	registry "tankfleet-cloud/internal/registry/domain"
	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// CommandEnqueuer appends a command for a tank.
type CommandEnqueuer interface {
	Enqueue(ctx context.Context, tankID string, commandType commands.Type, params map[string]string, source commands.Source) (*commands.Command, error)
}

// Reconciler drives every enabled tank's light toward its schedule. Each
// pass compares the desired state for the current wall-clock time against
// the last state the tank reported and enqueues a correcting command when
// they differ. An operator override suppresses exactly one pass and is
// cleared by it.
type Reconciler struct {
	settings schedule.Repository
	tanks    registry.TankRepository
	queue    CommandEnqueuer
	recorder events.Recorder
	location *time.Location
	clock    Clock
	logger   *log.Logger
}

// NewReconciler constructs a reconciler.
func NewReconciler(settings schedule.Repository, tanks registry.TankRepository, queue CommandEnqueuer, recorder events.Recorder, location *time.Location, clock Clock, logger *log.Logger) (*Reconciler, error) {
	if settings == nil {
		return nil, errors.New("reconciler: nil settings repo")
	}
	if tanks == nil {
		return nil, errors.New("reconciler: nil tank repo")
	}
	if queue == nil {
		return nil, errors.New("reconciler: nil command queue")
	}
	if recorder == nil {
		return nil, errors.New("reconciler: nil event recorder")
	}
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		return nil, errors.New("reconciler: nil clock")
	}
	return &Reconciler{
		settings: settings,
		tanks:    tanks,
		queue:    queue,
		recorder: recorder,
		location: location,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Pass runs one reconciliation over every enabled schedule. A failure on
// one tank is logged and does not stop the pass. Returns the number of
// commands enqueued.
func (r *Reconciler) Pass(ctx context.Context) (int, error) {
	enabled, err := r.settings.ListEnabled(ctx)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now().In(r.location)
	moved := 0
	for i := range enabled {
		issued, err := r.reconcileTank(ctx, &enabled[i], now)
		if err != nil {
			r.logf("reconcile: tank %s: %v", enabled[i].TankID, err)
			continue
		}
		if issued {
			moved++
		}
	}
	metrics.IncReconcilePass()
	return moved, nil
}

func (r *Reconciler) reconcileTank(ctx context.Context, settings *schedule.Settings, now time.Time) (bool, error) {
	if settings.Override != schedule.OverrideNone {
		return false, r.consumeOverride(ctx, settings, now)
	}

	tank, err := r.tanks.GetByID(ctx, settings.TankID)
	if err != nil {
		return false, err
	}
	if tank == nil {
		return false, registry.ErrTankNotFound
	}

	desired := settings.WindowContains(now)
	// An unreported light state always counts as divergent: the engine
	// cannot confirm the tank matches the schedule until it says so.
	if tank.LightState != nil && *tank.LightState == desired {
		return false, nil
	}

	commandType := commands.TypeLightOff
	eventType := events.TypeScheduleOff
	if desired {
		commandType = commands.TypeLightOn
		eventType = events.TypeScheduleOn
	}
	if _, err := r.queue.Enqueue(ctx, settings.TankID, commandType, nil, commands.SourceScheduled); err != nil {
		return false, err
	}
	metrics.IncReconcileAction(string(commandType))
	r.record(ctx, events.Event{
		ID:        events.NewID(),
		TankID:    settings.TankID,
		Type:      eventType,
		Source:    "reconciler",
		Detail:    fmt.Sprintf("window %s-%s", settings.LightOn, settings.LightOff),
		CreatedAt: now.UTC(),
	})
	return true, nil
}

// consumeOverride burns the override without issuing any command. The
// clear is conditional so an override set by an operator mid-pass
// survives to the next one.
func (r *Reconciler) consumeOverride(ctx context.Context, settings *schedule.Settings, now time.Time) error {
	cleared, err := r.settings.ClearOverride(ctx, settings.TankID, settings.Override)
	if err != nil {
		return err
	}
	if !cleared {
		return nil
	}
	r.record(ctx, events.Event{
		ID:        events.NewID(),
		TankID:    settings.TankID,
		Type:      events.TypeOverrideCleared,
		Source:    "reconciler",
		Detail:    string(settings.Override),
		CreatedAt: now.UTC(),
	})
	return nil
}

func (r *Reconciler) record(ctx context.Context, event events.Event) {
	if err := r.recorder.Record(ctx, event); err != nil {
		r.logf("reconcile: record event %s: %v", event.Type, err)
	}
}

func (r *Reconciler) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
