package schedule

import "errors"

var (
	// ErrSettingsNotFound is returned when a tank has no schedule settings.
	ErrSettingsNotFound = errors.New("schedule: settings not found")
	// ErrInvalidWindow is returned for unparseable light window times.
	ErrInvalidWindow = errors.New("schedule: invalid light window")
	// ErrInvalidOverride is returned for override values outside on/off.
	ErrInvalidOverride = errors.New("schedule: invalid override state")
)
