package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pborman/uuid"

	commands "tankfleet-cloud/internal/commands/domain"
	"tankfleet-cloud/internal/events"
	"tankfleet-cloud/internal/notify"
	"tankfleet-cloud/internal/observability/metrics"
	registry "tankfleet-cloud/internal/registry/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Queue delivers commands to tanks over polling. Any number of commands
// may be queued per tank, but at most one is ever in flight: poll hands
// out the oldest pending command and keeps handing out the same one until
// it is acknowledged or reclaimed by the delivery timeout sweep.
type Queue struct {
	repo       commands.Repository
	tanks      registry.TankRepository
	recorder   events.Recorder
	notifier   notify.Notifier
	maxRetries int
	clock      Clock
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewQueue constructs a command queue.
func NewQueue(repo commands.Repository, tanks registry.TankRepository, recorder events.Recorder, notifier notify.Notifier, maxRetries int, clock Clock, logger *log.Logger) (*Queue, error) {
	if repo == nil {
		return nil, errors.New("command queue: nil repo")
	}
	if tanks == nil {
		return nil, errors.New("command queue: nil tank repo")
	}
	if recorder == nil {
		return nil, errors.New("command queue: nil event recorder")
	}
	if maxRetries < 0 {
		return nil, errors.New("command queue: negative max retries")
	}
	if clock == nil {
		return nil, errors.New("command queue: nil clock")
	}
	return &Queue{
		repo:       repo,
		tanks:      tanks,
		recorder:   recorder,
		notifier:   notifier,
		maxRetries: maxRetries,
		clock:      clock,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// Enqueue appends a command for a tank. It never rejects based on
// commands already queued or in flight; delivery stays single-flight
// regardless of queue depth.
func (q *Queue) Enqueue(ctx context.Context, tankID string, commandType commands.Type, params map[string]string, source commands.Source) (*commands.Command, error) {
	if _, err := commands.ParseType(string(commandType)); err != nil {
		return nil, err
	}
	tank, err := q.tanks.GetByID(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if tank == nil {
		return nil, registry.ErrTankNotFound
	}

	cmd := &commands.Command{
		ID:         "cmd-" + uuid.New(),
		TankID:     tankID,
		Type:       commandType,
		Params:     params,
		Source:     source,
		Status:     commands.StatusPending,
		MaxRetries: q.maxRetries,
		CreatedAt:  q.clock.Now().UTC(),
	}
	if err := q.repo.Create(ctx, cmd); err != nil {
		return nil, err
	}
	metrics.IncCommandIssued(string(source))
	return cmd, nil
}

// Poll returns the tank's in-flight command, dispatching the oldest
// pending one when nothing is in flight. Returns (nil, nil) when the
// queue is empty. A repeated poll without an intervening ack returns the
// same command unchanged.
func (q *Queue) Poll(ctx context.Context, tankID string) (*commands.Command, error) {
	unlock := q.lockTank(tankID)
	defer unlock()

	inflight, err := q.repo.Dispatched(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if inflight != nil {
		metrics.IncPoll("redelivered")
		return inflight, nil
	}

	next, err := q.repo.OldestPending(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		metrics.IncPoll("empty")
		return nil, nil
	}

	now := q.clock.Now().UTC()
	won, err := q.repo.MarkDispatched(ctx, next.ID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Raced with another transition; the device will re-poll.
		metrics.IncPoll("empty")
		return nil, nil
	}
	next.Status = commands.StatusDispatched
	next.DispatchedAt = now
	metrics.IncPoll("dispatched")
	return next, nil
}

// Acknowledge settles an in-flight command. A failed ack requeues the
// command while retries remain and fails it terminally otherwise. Only
// the owning tank may ack, and only while the command is dispatched.
func (q *Queue) Acknowledge(ctx context.Context, tankID, commandID string, success bool, errMsg string) error {
	unlock := q.lockTank(tankID)
	defer unlock()

	cmd, err := q.repo.GetByID(ctx, commandID)
	if err != nil {
		return err
	}
	if cmd == nil {
		return commands.ErrCommandNotFound
	}
	if cmd.TankID != tankID {
		return commands.ErrNotCommandOwner
	}
	if cmd.Status != commands.StatusDispatched {
		return commands.ErrNotDispatched
	}

	now := q.clock.Now().UTC()
	if success {
		won, err := q.repo.MarkAckedSuccess(ctx, commandID, now)
		if err != nil {
			return err
		}
		if !won {
			return commands.ErrNotDispatched
		}
		metrics.IncCommandResult(string(commands.StatusAckedSuccess))
		q.announceResult(ctx, cmd, true, now)
		return nil
	}
	if errMsg == "" {
		errMsg = "device reported failure"
	}
	return q.failAttempt(ctx, cmd, now, errMsg)
}

// SweepTimeouts reclaims dispatched commands whose ack never arrived.
// Each is handled exactly like an explicit failed ack, so the retry
// budget is shared between the two paths. Returns the number reclaimed.
func (q *Queue) SweepTimeouts(ctx context.Context, now time.Time, deliveryTimeout time.Duration) (int, error) {
	if now.IsZero() {
		now = q.clock.Now()
	}
	now = now.UTC()
	stale, err := q.repo.ListDispatchedBefore(ctx, now.Add(-deliveryTimeout))
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for i := range stale {
		cmd := stale[i]
		if err := q.timeoutOne(ctx, &cmd, now); err != nil {
			if q.logger != nil {
				q.logger.Printf("command queue: timeout sweep error: command=%s err=%v", cmd.ID, err)
			}
			continue
		}
		reclaimed++
	}
	metrics.AddCommandTimeouts(reclaimed)
	return reclaimed, nil
}

// History lists a tank's commands in [from, to).
func (q *Queue) History(ctx context.Context, tankID string, from, to time.Time) ([]commands.Command, error) {
	tank, err := q.tanks.GetByID(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if tank == nil {
		return nil, registry.ErrTankNotFound
	}
	return q.repo.ListByTankAndTime(ctx, tankID, from.UTC(), to.UTC())
}

func (q *Queue) timeoutOne(ctx context.Context, cmd *commands.Command, now time.Time) error {
	unlock := q.lockTank(cmd.TankID)
	defer unlock()

	// Re-read under the tank lock; an ack may have settled it already.
	current, err := q.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != commands.StatusDispatched {
		return nil
	}
	return q.failAttempt(ctx, current, now, "delivery timeout")
}

// failAttempt handles one failed delivery attempt: back to pending while
// retries remain, terminal failed otherwise. Caller holds the tank lock.
func (q *Queue) failAttempt(ctx context.Context, cmd *commands.Command, now time.Time, reason string) error {
	retryCount := cmd.RetryCount + 1
	if retryCount < cmd.MaxRetries {
		won, err := q.repo.Requeue(ctx, cmd.ID, retryCount, reason)
		if err != nil {
			return err
		}
		if !won {
			return commands.ErrNotDispatched
		}
		return nil
	}

	won, err := q.repo.MarkFailed(ctx, cmd.ID, retryCount, now, reason)
	if err != nil {
		return err
	}
	if !won {
		return commands.ErrNotDispatched
	}
	metrics.IncCommandResult(string(commands.StatusFailed))
	q.announceResult(ctx, cmd, false, now)
	return nil
}

func (q *Queue) announceResult(ctx context.Context, cmd *commands.Command, success bool, now time.Time) {
	eventType := events.TypeCommandFailed
	kind := notify.KindCommandFailed
	if success {
		eventType = events.TypeCommandSuccess
		kind = notify.KindCommandSuccess
	}
	if err := q.recorder.Record(ctx, events.Event{
		TankID:    cmd.TankID,
		Type:      eventType,
		Source:    string(cmd.Source),
		Detail:    string(cmd.Type),
		CreatedAt: now,
	}); err != nil && q.logger != nil {
		q.logger.Printf("command queue: record event error: %v", err)
	}
	if q.notifier == nil {
		return
	}
	name := cmd.TankID
	if tank, err := q.tanks.GetByID(ctx, cmd.TankID); err == nil && tank != nil {
		name = tank.Name
	}
	if err := q.notifier.Notify(ctx, notify.Message{
		Kind:     kind,
		TankID:   cmd.TankID,
		TankName: name,
		Command:  string(cmd.Type),
		At:       now,
	}); err != nil && q.logger != nil {
		q.logger.Printf("command queue: notify error: %v", err)
	}
}

// lockTank serializes poll/ack/timeout handling per tank so the
// read-then-swap sequences cannot interleave for the same tank.
func (q *Queue) lockTank(tankID string) func() {
	q.mu.Lock()
	lock, ok := q.locks[tankID]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[tankID] = lock
	}
	q.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
