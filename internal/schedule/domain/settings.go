package schedule

import (
	"fmt"
	"time"
)

// OverrideState is the operator override for the next reconciliation pass.
type OverrideState string

const (
	OverrideNone OverrideState = "none"
	OverrideOn   OverrideState = "on"
	OverrideOff  OverrideState = "off"
)

// ParseOverride validates a wire value for an override request.
func ParseOverride(value string) (OverrideState, error) {
	switch OverrideState(value) {
	case OverrideOn, OverrideOff:
		return OverrideState(value), nil
	}
	return "", ErrInvalidOverride
}

// TimeOfDay is a wall-clock minute within a day, timezone-agnostic.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "15:04" formatted values.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidWindow, value)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// Settings is the per-tank lighting schedule configuration.
type Settings struct {
	TankID        string
	LightOn       TimeOfDay
	LightOff      TimeOfDay
	Enabled       bool
	Override      OverrideState
	OverrideSetAt time.Time
	UpdatedAt     time.Time
}

// DefaultSettings returns the schedule a tank gets at registration.
func DefaultSettings(tankID string) Settings {
	return Settings{
		TankID:   tankID,
		LightOn:  TimeOfDay{Hour: 10},
		LightOff: TimeOfDay{Hour: 16},
		Enabled:  true,
		Override: OverrideNone,
	}
}

// WindowContains reports whether now falls inside [light_on, light_off).
// When light_off <= light_on the window wraps past midnight.
func (s Settings) WindowContains(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	on := s.LightOn.minuteOfDay()
	off := s.LightOff.minuteOfDay()
	if off > on {
		return minute >= on && minute < off
	}
	return minute >= on || minute < off
}
