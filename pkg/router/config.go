package router

import (
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/solarrouter/solarrouter/pkg/events"
	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/metrics"
	"github.com/solarrouter/solarrouter/pkg/rules"
	"github.com/solarrouter/solarrouter/pkg/storage"
	"github.com/solarrouter/solarrouter/pkg/tank"
	"github.com/solarrouter/solarrouter/pkg/telemetry"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// Configured builds the router from flags and already-configured
// collaborators. The tank model and heater controller are created inside
// the flag callback so the config file path is known.
func Configured(db storage.Database, relay heater.Relay, source telemetry.Source, bus events.Bus, m *metrics.Metrics) *Router {
	tankConfig := lflag.String("tank-config", "", "Path to the tank YAML config, empty uses the 200L/2.4kW defaults")
	interval := lflag.Duration("evaluation-interval", DefaultInterval, "How often to run an evaluation tick")
	saveInterval := lflag.Duration("save-interval", DefaultSaveInterval, "How often to persist tank state and overrides")
	minRuntime := lflag.Duration("heater-min-runtime", 0, "Minimum rule-driven heating session length (0 disables)")

	r := &Router{}

	lflag.Do(func() {
		cfg, err := types.LoadTankConfig(*tankConfig)
		if err != nil {
			panic(fmt.Sprintf("tank config: %v", err))
		}
		model, err := tank.New(cfg, time.Now())
		if err != nil {
			panic(fmt.Sprintf("tank model: %v", err))
		}

		ctrl := heater.NewController(relay, model, metrics.InstrumentBus(bus, m))
		ctrl.MinRuntime = *minRuntime

		if err := r.wire(Deps{
			Tank:      model,
			Engine:    rules.NewEngine(),
			Heater:    ctrl,
			Telemetry: source,
			DB:        db,
			Metrics:   m,
		}); err != nil {
			panic(fmt.Sprintf("router wiring: %v", err))
		}
		r.interval = *interval
		r.saveInterval = *saveInterval
	})

	return r
}
