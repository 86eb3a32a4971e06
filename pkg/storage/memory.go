package storage

import (
	"context"
	"sync"

	"github.com/solarrouter/solarrouter/pkg/types"
)

// Memory is a Database that lives only as long as the process. Useful for
// local development and tests that need working persistence semantics
// without a mock expectation per call.
type Memory struct {
	mu        sync.Mutex
	rules     []types.Rule
	overrides *types.Overrides
	tankState *types.TankState
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{}
}

// LoadRules returns a copy of the saved rules.
func (m *Memory) LoadRules(_ context.Context) ([]types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Rule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

// SaveRules replaces the saved rules.
func (m *Memory) SaveRules(_ context.Context, rules []types.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = make([]types.Rule, len(rules))
	copy(m.rules, rules)
	return nil
}

// LoadOverrides returns the saved overrides.
func (m *Memory) LoadOverrides(_ context.Context) (types.Overrides, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overrides == nil {
		return types.Overrides{}, false, nil
	}
	return *m.overrides, true, nil
}

// SaveOverrides saves the overrides.
func (m *Memory) SaveOverrides(_ context.Context, o types.Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = &o
	return nil
}

// LoadTankState returns the saved tank state.
func (m *Memory) LoadTankState(_ context.Context) (types.TankState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tankState == nil {
		return types.TankState{}, false, nil
	}
	return *m.tankState, true, nil
}

// SaveTankState saves the tank state.
func (m *Memory) SaveTankState(_ context.Context, s types.TankState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tankState = &s
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
