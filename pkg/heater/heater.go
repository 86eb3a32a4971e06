// Package heater drives the water heater relay. The controller turns the
// rule engine's tri-state decisions into idempotent relay writes and keeps
// the session bookkeeping and event emission next to the transitions that
// cause them.
package heater

import (
	"context"
)

// Relay is the physical switch in front of the heater element.
type Relay interface {
	// SetState turns the heater on or off. Implementations must tolerate
	// being asked for the state they are already in.
	SetState(ctx context.Context, on bool) error

	// State reports the relay's last known position.
	State(ctx context.Context) (bool, error)

	// Close releases the underlying connection.
	Close() error
}
