// Package telemetry collects sensor readings and hands the router one
// immutable snapshot per tick. A reading that is absent or stale comes out
// as a nil field, never as a zero.
package telemetry

import (
	"sync"
	"time"

	"github.com/solarrouter/solarrouter/pkg/types"
)

// DefaultStaleness is how old a reading may be before it is dropped from
// snapshots.
const DefaultStaleness = 2 * time.Minute

// Source produces telemetry snapshots.
type Source interface {
	// Snapshot returns the readings as of now. Fields for sensors that
	// are missing or stale are nil.
	Snapshot(now time.Time) types.TelemetrySnapshot

	// Close releases the underlying connection.
	Close() error
}

// Static is a Source whose readings are set programmatically. Used in
// tests and broker-less runs.
type Static struct {
	mu       sync.Mutex
	snapshot types.TelemetrySnapshot
}

// NewStatic returns a Static with every sensor missing.
func NewStatic() *Static {
	return &Static{}
}

// Set replaces the readings returned by Snapshot.
func (s *Static) Set(snap types.TelemetrySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// Snapshot returns the configured readings stamped with now.
func (s *Static) Snapshot(now time.Time) types.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	snap.Timestamp = now
	return snap
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}
