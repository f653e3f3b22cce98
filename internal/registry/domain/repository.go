package registry

import (
	"context"
	"time"
)

// TankRepository is the persistence contract for tanks. Lookup methods
// return (nil, nil) when no row matches.
type TankRepository interface {
	Create(ctx context.Context, tank *Tank) error
	GetByID(ctx context.Context, id string) (*Tank, error)
	GetByName(ctx context.Context, name string) (*Tank, error)
	ListAll(ctx context.Context) ([]Tank, error)

	// UpdateToken replaces the device token for an existing tank.
	UpdateToken(ctx context.Context, id, token string, issuedAt time.Time) error

	// RecordHeartbeat stores last_seen and telemetry and forces is_online
	// true in one write.
	RecordHeartbeat(ctx context.Context, id string, seenAt time.Time, telemetry Telemetry) error

	// MarkOffline flips is_online to false only while the tank is online
	// and last_seen is at or before the cutoff. Returns false when a
	// concurrent heartbeat won the race.
	MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error)
}
