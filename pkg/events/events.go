// Package events publishes router notifications for the automation layer
// to consume. Delivery is best-effort, a failed publish never blocks or
// fails the tick that produced it.
package events

import (
	"context"
	"sync"

	"github.com/solarrouter/solarrouter/pkg/types"
)

// Bus delivers events to whatever is listening.
type Bus interface {
	// Publish sends a single event. Implementations must be safe to call
	// from the router's tick goroutine and from request handlers.
	Publish(ctx context.Context, ev types.Event) error

	// Close releases the underlying connection.
	Close() error
}

// Recorder is a Bus that remembers everything published to it. Used in
// tests and as the fallback when no broker is configured.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the event to the in-memory log.
func (r *Recorder) Publish(_ context.Context, ev types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the published event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

// Reset clears the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Close is a no-op.
func (r *Recorder) Close() error {
	return nil
}
