package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	commands "tankfleet-cloud/internal/commands/domain"
	"tankfleet-cloud/internal/events"
	"tankfleet-cloud/internal/notify"
	registry "tankfleet-cloud/internal/registry/domain"
	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Service exposes the operator-facing schedule operations.
type Service struct {
	settings schedule.Repository
	tanks    registry.TankRepository
	queue    CommandEnqueuer
	recorder events.Recorder
	notifier notify.Notifier
	clock    Clock
	logger   *log.Logger
}

// NewService constructs the schedule service.
func NewService(settings schedule.Repository, tanks registry.TankRepository, queue CommandEnqueuer, recorder events.Recorder, notifier notify.Notifier, clock Clock, logger *log.Logger) (*Service, error) {
	if settings == nil {
		return nil, errors.New("schedule service: nil settings repo")
	}
	if tanks == nil {
		return nil, errors.New("schedule service: nil tank repo")
	}
	if queue == nil {
		return nil, errors.New("schedule service: nil command queue")
	}
	if recorder == nil {
		return nil, errors.New("schedule service: nil event recorder")
	}
	if clock == nil {
		return nil, errors.New("schedule service: nil clock")
	}
	return &Service{
		settings: settings,
		tanks:    tanks,
		queue:    queue,
		recorder: recorder,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}, nil
}

// GetSettings returns a tank's schedule.
func (s *Service) GetSettings(ctx context.Context, tankID string) (*schedule.Settings, error) {
	settings, err := s.settings.Get(ctx, tankID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, schedule.ErrSettingsNotFound
	}
	return settings, nil
}

// UpdateWindow replaces a tank's light window. Both boundaries must parse
// as "HH:MM"; a window where light_off precedes light_on wraps midnight
// and is valid.
func (s *Service) UpdateWindow(ctx context.Context, tankID, lightOn, lightOff string) (*schedule.Settings, error) {
	on, err := schedule.ParseTimeOfDay(lightOn)
	if err != nil {
		return nil, err
	}
	off, err := schedule.ParseTimeOfDay(lightOff)
	if err != nil {
		return nil, err
	}
	settings, err := s.GetSettings(ctx, tankID)
	if err != nil {
		return nil, err
	}

	settings.LightOn = on
	settings.LightOff = off
	settings.UpdatedAt = s.clock.Now().UTC()
	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ToggleSchedule enables or disables scheduling for a tank. A disabled
// tank is skipped by reconciliation but still accepts manual commands.
func (s *Service) ToggleSchedule(ctx context.Context, tankID string, enabled bool) error {
	now := s.clock.Now().UTC()
	if err := s.settings.SetEnabled(ctx, tankID, enabled, now); err != nil {
		return err
	}
	s.record(ctx, events.Event{
		ID:        events.NewID(),
		TankID:    tankID,
		Type:      events.TypeScheduleToggled,
		Source:    "admin",
		Detail:    fmt.Sprintf("enabled=%t", enabled),
		CreatedAt: now,
	})
	return nil
}

// SetOverride records a single-shot override and enqueues the matching
// manual command right away, so the tank flips on its next poll instead
// of waiting for a reconciliation pass. The override itself only
// suppresses the next pass's decision.
func (s *Service) SetOverride(ctx context.Context, tankID, state string) (*commands.Command, error) {
	override, err := schedule.ParseOverride(state)
	if err != nil {
		return nil, err
	}
	settings, err := s.GetSettings(ctx, tankID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.settings.SetOverride(ctx, settings.TankID, override, now); err != nil {
		return nil, err
	}

	commandType := commands.TypeLightOff
	if override == schedule.OverrideOn {
		commandType = commands.TypeLightOn
	}
	cmd, err := s.queue.Enqueue(ctx, tankID, commandType, nil, commands.SourceManual)
	if err != nil {
		return nil, err
	}

	s.record(ctx, events.Event{
		ID:        events.NewID(),
		TankID:    tankID,
		Type:      events.TypeOverrideSet,
		Source:    "admin",
		Detail:    string(override),
		CreatedAt: now,
	})
	s.notify(ctx, tankID, override)
	return cmd, nil
}

func (s *Service) record(ctx context.Context, event events.Event) {
	if err := s.recorder.Record(ctx, event); err != nil {
		s.logf("schedule: record event %s: %v", event.Type, err)
	}
}

func (s *Service) notify(ctx context.Context, tankID string, override schedule.OverrideState) {
	if s.notifier == nil {
		return
	}
	name := tankID
	if tank, err := s.tanks.GetByID(ctx, tankID); err == nil && tank != nil {
		name = tank.Name
	}
	msg := notify.Message{
		Kind:     notify.KindOverrideSet,
		TankID:   tankID,
		TankName: name,
		Detail:   string(override),
		At:       s.clock.Now().UTC(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logf("schedule: notify override for %s: %v", tankID, err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
