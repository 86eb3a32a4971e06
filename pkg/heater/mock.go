package heater

import (
	"context"
	"sync"
)

// MockRelay is an in-memory relay for tests and broker-less runs. It
// records every write so tests can assert on transition counts.
type MockRelay struct {
	mu     sync.Mutex
	on     bool
	writes []bool
	err    error
}

// NewMockRelay returns a mock relay in the given position.
func NewMockRelay(on bool) *MockRelay {
	return &MockRelay{on: on}
}

// FailWith makes every subsequent SetState return err. Pass nil to heal.
func (m *MockRelay) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetState records the write.
func (m *MockRelay) SetState(_ context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.on = on
	m.writes = append(m.writes, on)
	return nil
}

// State returns the current position.
func (m *MockRelay) State(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on, nil
}

// Writes returns every successful SetState value in order.
func (m *MockRelay) Writes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.writes))
	copy(out, m.writes)
	return out
}

// Close is a no-op.
func (m *MockRelay) Close() error {
	return nil
}
