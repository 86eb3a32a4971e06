// Package router runs the evaluation loop. It owns the only goroutine
// that mutates the tank model, rule table and heater, and exposes the
// service operations the HTTP layer calls. Everything is serialized
// behind one mutex so ticks and service calls never interleave.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/metrics"
	"github.com/solarrouter/solarrouter/pkg/rules"
	"github.com/solarrouter/solarrouter/pkg/storage"
	"github.com/solarrouter/solarrouter/pkg/tank"
	"github.com/solarrouter/solarrouter/pkg/telemetry"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// Exposed-flag thresholds for the tank_hot and tank_cold readings.
const (
	tankHotThresholdC  = 50
	tankColdThresholdC = 40
)

// Defaults for the loop cadence.
const (
	DefaultInterval     = 30 * time.Second
	DefaultSaveInterval = 5 * time.Minute
)

// Router glues telemetry, the thermal model, the rule engine and the
// heater controller together.
type Router struct {
	mu sync.Mutex

	tank      *tank.Model
	engine    *rules.Engine
	ctrl      *heater.Controller
	source    telemetry.Source
	db        storage.Database
	m         *metrics.Metrics
	overrides types.Overrides

	interval     time.Duration
	saveInterval time.Duration
	offpeakStart types.ClockTime
	offpeakEnd   types.ClockTime

	lastSnapshot types.TelemetrySnapshot
	lastDecision types.HeatingDecision
	lastSave     time.Time

	// now is the clock, replaced in tests
	now func() time.Time
}

// Deps are the collaborators the router drives.
type Deps struct {
	Tank      *tank.Model
	Engine    *rules.Engine
	Heater    *heater.Controller
	Telemetry telemetry.Source
	DB        storage.Database
	Metrics   *metrics.Metrics
}

// New builds a router from already-configured collaborators. Call Init
// before Run.
func New(deps Deps) (*Router, error) {
	r := &Router{}
	if err := r.wire(deps); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Router) wire(deps Deps) error {
	cfg := deps.Tank.Config()
	start, err := types.ParseClockTime(cfg.OffpeakStart)
	if err != nil {
		return fmt.Errorf("offpeak start: %w", err)
	}
	end, err := types.ParseClockTime(cfg.OffpeakEnd)
	if err != nil {
		return fmt.Errorf("offpeak end: %w", err)
	}

	r.tank = deps.Tank
	r.engine = deps.Engine
	r.ctrl = deps.Heater
	r.source = deps.Telemetry
	r.db = deps.DB
	r.m = deps.Metrics
	r.overrides = types.DefaultOverrides()
	r.interval = DefaultInterval
	r.saveInterval = DefaultSaveInterval
	r.offpeakStart = start
	r.offpeakEnd = end
	r.now = time.Now
	return nil
}

// Init restores persisted state: rule table (seeding defaults on first
// run), overrides and tank state. It also adopts the relay's current
// position so a restart mid-session carries on cleanly.
func (r *Router) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	persisted, err := r.db.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if len(persisted) == 0 {
		r.engine.SeedDefaults()
		if err := r.db.SaveRules(ctx, r.engine.Rules()); err != nil {
			return fmt.Errorf("save seeded rules: %w", err)
		}
		log.Ctx(ctx).InfoContext(ctx, "seeded default rules",
			slog.Int("count", len(r.engine.Rules())),
		)
	} else {
		r.engine.Restore(persisted)
	}

	o, found, err := r.db.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	if found {
		r.overrides = o
	}

	state, found, err := r.db.LoadTankState(ctx)
	if err != nil {
		return fmt.Errorf("load tank state: %w", err)
	}
	if found {
		r.tank.Restore(state)
	}

	if err := r.ctrl.Sync(ctx); err != nil {
		return fmt.Errorf("sync heater: %w", err)
	}

	r.lastSave = r.now()
	return nil
}

// Run ticks the evaluation loop until ctx is canceled, then saves state
// one last time.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Ctx(ctx).InfoContext(ctx, "evaluation loop started",
		slog.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.saveLocked(context.WithoutCancel(ctx))
			r.mu.Unlock()
			return
		case <-ticker.C:
			if _, err := r.Evaluate(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "evaluation tick failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Evaluate runs one full tick: read telemetry, advance the thermal model,
// decide, apply. Also invoked directly by the HTTP trigger.
func (r *Router) Evaluate(ctx context.Context) (types.HeatingDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evaluateLocked(ctx)
}

func (r *Router) evaluateLocked(ctx context.Context) (types.HeatingDecision, error) {
	now := r.now()

	snap := r.source.Snapshot(now)
	r.lastSnapshot = snap

	delta := now.Sub(r.tank.State().LastUpdate).Seconds()
	if delta < 0 {
		delta = 0
	}
	r.tank.Tick(now, delta, r.ctrl.IsHeating())
	r.tank.RolloverIfNewDay(now)

	if !r.overrides.ForceHeatingUntil.IsZero() && !r.overrides.ForceActive(now) {
		log.Ctx(ctx).InfoContext(ctx, "force heating window expired",
			slog.Time("until", r.overrides.ForceHeatingUntil),
		)
		r.overrides.ForceHeatingUntil = time.Time{}
	}

	evalCtx := rules.Context{
		Snapshot:            snap,
		TankTempC:           r.tank.State().EstimatedTempC,
		DailyHeatingMinutes: r.tank.DailyHeatingMinutes(),
		OffpeakStart:        r.offpeakStart,
		OffpeakEnd:          r.offpeakEnd,
		Now:                 now,
	}
	decision := r.engine.Decide(ctx, evalCtx, r.overrides)
	r.lastDecision = decision

	err := r.ctrl.Apply(ctx, decision)
	r.observeLocked(decision, err)
	if err != nil {
		return decision, fmt.Errorf("apply decision: %w", err)
	}

	if now.Sub(r.lastSave) >= r.saveInterval {
		r.saveLocked(ctx)
	}
	return decision, nil
}

// observeLocked pushes the tick's outcome into prometheus.
func (r *Router) observeLocked(d types.HeatingDecision, applyErr error) {
	if r.m == nil {
		return
	}
	state := r.tank.State()
	r.m.TankTempC.Set(state.EstimatedTempC)
	if r.ctrl.IsHeating() {
		r.m.HeaterOn.Set(1)
	} else {
		r.m.HeaterOn.Set(0)
	}
	r.m.DailyHeatingMinutes.Set(r.tank.DailyHeatingMinutes())
	r.m.DailyEnergyWH.Set(state.DailyHeatingEnergyWH)
	r.m.EstimatedShowers.Set(r.tank.EstimatedShowersAvailable())
	r.m.SessionsToday.Set(float64(state.SessionsToday))
	r.m.TicksTotal.Inc()
	if applyErr != nil {
		r.m.TickErrorsTotal.Inc()
	}
	if d.RuleName != types.RuleNameNone {
		r.m.RuleMatchesTotal.WithLabelValues(d.RuleName).Inc()
	}
}

// saveLocked persists tank state and overrides. Rules are saved on
// mutation instead. Failures are logged, the loop keeps running on the
// in-memory state.
func (r *Router) saveLocked(ctx context.Context) {
	if err := r.db.SaveTankState(ctx, r.tank.State()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "save tank state failed",
			slog.String("error", err.Error()),
		)
	}
	if err := r.db.SaveOverrides(ctx, r.overrides); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "save overrides failed",
			slog.String("error", err.Error()),
		)
	}
	r.lastSave = r.now()
}
