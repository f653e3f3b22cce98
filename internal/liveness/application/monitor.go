package application

import (
	"context"
	"errors"
	"log"
	"time"

	"tankfleet-cloud/internal/events"
	"tankfleet-cloud/internal/notify"
	"tankfleet-cloud/internal/observability/metrics"
	registry "tankfleet-cloud/internal/registry/domain"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Monitor derives online/offline state from heartbeat timestamps. Only a
// heartbeat moves a tank online; only the sweep moves it offline.
type Monitor struct {
	tanks     registry.TankRepository
	recorder  events.Recorder
	notifier  notify.Notifier
	threshold time.Duration
	clock     Clock
	logger    *log.Logger
}

// NewMonitor constructs a liveness monitor.
func NewMonitor(tanks registry.TankRepository, recorder events.Recorder, notifier notify.Notifier, threshold time.Duration, clock Clock, logger *log.Logger) (*Monitor, error) {
	if tanks == nil {
		return nil, errors.New("liveness monitor: nil tank repo")
	}
	if recorder == nil {
		return nil, errors.New("liveness monitor: nil event recorder")
	}
	if threshold <= 0 {
		return nil, errors.New("liveness monitor: non-positive offline threshold")
	}
	if clock == nil {
		return nil, errors.New("liveness monitor: nil clock")
	}
	return &Monitor{
		tanks:     tanks,
		recorder:  recorder,
		notifier:  notifier,
		threshold: threshold,
		clock:     clock,
		logger:    logger,
	}, nil
}

// RecordHeartbeat stores the telemetry verbatim, stamps last_seen and
// restores the tank to online, announcing the comeback when it was
// offline.
func (m *Monitor) RecordHeartbeat(ctx context.Context, tankID string, telemetry registry.Telemetry) error {
	tank, err := m.tanks.GetByID(ctx, tankID)
	if err != nil {
		return err
	}
	if tank == nil {
		return registry.ErrTankNotFound
	}

	now := m.clock.Now().UTC()
	if err := m.tanks.RecordHeartbeat(ctx, tankID, now, telemetry); err != nil {
		return err
	}
	metrics.IncHeartbeat()

	if !tank.IsOnline {
		m.record(ctx, events.Event{
			TankID:    tankID,
			Type:      events.TypeOnline,
			Source:    "heartbeat",
			Detail:    tank.Name,
			CreatedAt: now,
		})
		m.send(ctx, notify.Message{
			Kind:     notify.KindOnline,
			TankID:   tankID,
			TankName: tank.Name,
			At:       now,
		})
	}
	return nil
}

// Sweep marks every online tank not seen for at least the offline
// threshold as offline. It never transitions a tank to online. Returns
// the number of tanks taken offline.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = m.clock.Now()
	}
	now = now.UTC()
	cutoff := now.Add(-m.threshold)

	tanks, err := m.tanks.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	taken := 0
	online := 0
	for _, tank := range tanks {
		if !tank.IsOnline {
			continue
		}
		if tank.LastSeenAt.After(cutoff) {
			online++
			continue
		}
		flipped, err := m.tanks.MarkOffline(ctx, tank.ID, cutoff)
		if err != nil {
			if m.logger != nil {
				m.logger.Printf("liveness: mark offline error: tank=%s err=%v", tank.ID, err)
			}
			continue
		}
		if !flipped {
			// A heartbeat landed between the list and the update.
			online++
			continue
		}
		taken++
		m.record(ctx, events.Event{
			TankID:    tank.ID,
			Type:      events.TypeOffline,
			Source:    "sweep",
			Detail:    tank.Name,
			CreatedAt: now,
		})
		m.send(ctx, notify.Message{
			Kind:     notify.KindOffline,
			TankID:   tank.ID,
			TankName: tank.Name,
			At:       now,
		})
	}
	metrics.SetTanksOnline(online)
	return taken, nil
}

func (m *Monitor) record(ctx context.Context, event events.Event) {
	if err := m.recorder.Record(ctx, event); err != nil && m.logger != nil {
		m.logger.Printf("liveness: record event error: %v", err)
	}
}

func (m *Monitor) send(ctx context.Context, msg notify.Message) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, msg); err != nil && m.logger != nil {
		m.logger.Printf("liveness: notify error: %v", err)
	}
}
