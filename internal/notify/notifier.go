package notify

import (
	"context"
	"time"
)

// Kind enumerates notification kinds the engine emits.
type Kind string

const (
	KindRegistered      Kind = "registered"
	KindOnline          Kind = "online"
	KindOffline         Kind = "offline"
	KindCommandSuccess  Kind = "command_success"
	KindCommandFailed   Kind = "command_failed"
	KindOverrideSet     Kind = "override_set"
	KindOverrideCleared Kind = "override_cleared"
)

// Message is one discrete notification. Delivery is fire-and-forget: the
// engine never blocks on a sink and never retries a failed delivery.
type Message struct {
	Kind     Kind
	TankID   string
	TankName string
	Command  string
	Detail   string
	At       time.Time
}

// Notifier delivers messages to an external sink.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
