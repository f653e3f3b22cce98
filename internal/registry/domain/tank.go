package registry

import "time"

// Tank represents a registered device in the fleet.
type Tank struct {
	ID              string
	Name            string
	Token           string
	TokenIssuedAt   time.Time
	LastSeenAt      time.Time
	IsOnline        bool
	LightState      *bool
	Temperature     *float64
	PH              *float64
	FirmwareVersion string
	CreatedAt       time.Time
}

// Telemetry carries the fields a heartbeat may report. Nil pointers mean
// the device did not report the field; stored values are never cleared by
// an absent field.
type Telemetry struct {
	LightState      *bool
	Temperature     *float64
	PH              *float64
	FirmwareVersion string
}
