// Package storage persists the router's durable state: the rule table,
// the user overrides and the estimated tank state. Everything else is
// recomputed at startup.
package storage

import (
	"context"

	"github.com/solarrouter/solarrouter/pkg/types"
)

// Database defines the interface for persisting router state.
type Database interface {
	// LoadRules returns the persisted rule table. An empty slice with a
	// nil error means nothing was ever saved and defaults should be
	// seeded.
	LoadRules(ctx context.Context) ([]types.Rule, error)
	// SaveRules replaces the persisted rule table.
	SaveRules(ctx context.Context, rules []types.Rule) error

	// LoadOverrides returns the persisted overrides. found is false when
	// nothing was ever saved.
	LoadOverrides(ctx context.Context) (o types.Overrides, found bool, err error)
	SaveOverrides(ctx context.Context, o types.Overrides) error

	// LoadTankState returns the persisted tank state. found is false when
	// nothing was ever saved.
	LoadTankState(ctx context.Context) (s types.TankState, found bool, err error)
	SaveTankState(ctx context.Context, s types.TankState) error

	// Lifecycle
	Close() error
}
