package metrics

import (
	"context"

	"github.com/solarrouter/solarrouter/pkg/events"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// InstrumentedBus counts successful publishes per event name on its way
// through to the wrapped bus.
type InstrumentedBus struct {
	next events.Bus
	m    *Metrics
}

// InstrumentBus wraps next so every publish is counted.
func InstrumentBus(next events.Bus, m *Metrics) *InstrumentedBus {
	return &InstrumentedBus{next: next, m: m}
}

// Publish forwards to the wrapped bus and counts the event on success.
func (b *InstrumentedBus) Publish(ctx context.Context, ev types.Event) error {
	if err := b.next.Publish(ctx, ev); err != nil {
		return err
	}
	b.m.EventsTotal.WithLabelValues(ev.Name).Inc()
	return nil
}

// Close closes the wrapped bus.
func (b *InstrumentedBus) Close() error {
	return b.next.Close()
}
