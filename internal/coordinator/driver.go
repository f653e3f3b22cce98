package coordinator

import (
	"context"
	"errors"
	"log"
	"time"

	commandapp "tankfleet-cloud/internal/commands/application"
	livenessapp "tankfleet-cloud/internal/liveness/application"
	"tankfleet-cloud/internal/observability/metrics"
	scheduleapp "tankfleet-cloud/internal/schedule/application"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Driver owns the engine's periodic passes: the liveness sweep, the
// delivery timeout sweep, and the schedule reconciliation. Each runs on
// its own ticker so a slow pass never starves the others.
type Driver struct {
	monitor    *livenessapp.Monitor
	queue      *commandapp.Queue
	reconciler *scheduleapp.Reconciler
	intervals  Intervals
	clock      Clock
	logger     *log.Logger
}

// NewDriver constructs a driver.
func NewDriver(monitor *livenessapp.Monitor, queue *commandapp.Queue, reconciler *scheduleapp.Reconciler, intervals Intervals, clock Clock, logger *log.Logger) (*Driver, error) {
	if monitor == nil {
		return nil, errors.New("driver: nil liveness monitor")
	}
	if queue == nil {
		return nil, errors.New("driver: nil command queue")
	}
	if reconciler == nil {
		return nil, errors.New("driver: nil reconciler")
	}
	if clock == nil {
		return nil, errors.New("driver: nil clock")
	}
	return &Driver{
		monitor:    monitor,
		queue:      queue,
		reconciler: reconciler,
		intervals:  intervals,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Start launches the pass loops. It returns immediately; the loops stop
// when ctx is cancelled.
func (d *Driver) Start(ctx context.Context) {
	go d.loop(ctx, "liveness", d.intervals.Liveness, d.livenessPass)
	go d.loop(ctx, "timeout", d.intervals.TimeoutSweep, d.timeoutPass)
	go d.loop(ctx, "reconcile", d.intervals.Reconcile, d.reconcilePass)
}

func (d *Driver) loop(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			started := d.clock.Now()
			if err := pass(ctx); err != nil {
				d.logf("%s pass: %v", name, err)
			}
			metrics.ObservePass(name, d.clock.Now().Sub(started))
		}
	}
}

func (d *Driver) livenessPass(ctx context.Context) error {
	moved, err := d.monitor.Sweep(ctx, d.clock.Now())
	if err != nil {
		return err
	}
	if moved > 0 {
		d.logf("liveness pass: %d tank(s) marked offline", moved)
	}
	return nil
}

func (d *Driver) timeoutPass(ctx context.Context) error {
	reclaimed, err := d.queue.SweepTimeouts(ctx, d.clock.Now(), d.intervals.DeliveryTimeout)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		d.logf("timeout pass: %d command(s) reclaimed", reclaimed)
	}
	return nil
}

func (d *Driver) reconcilePass(ctx context.Context) error {
	moved, err := d.reconciler.Pass(ctx)
	if err != nil {
		return err
	}
	if moved > 0 {
		d.logf("reconcile pass: %d command(s) enqueued", moved)
	}
	return nil
}

func (d *Driver) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
