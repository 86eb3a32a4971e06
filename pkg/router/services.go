package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// ForceHeating opens a force window for the given duration and applies it
// immediately. The duration must be between one minute and eight hours.
func (r *Router) ForceHeating(ctx context.Context, d time.Duration) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, err := heater.ForceWindow(r.now(), d)
	if err != nil {
		return time.Time{}, err
	}
	r.overrides.ForceHeatingUntil = until
	log.Ctx(ctx).InfoContext(ctx, "force heating requested",
		slog.Duration("duration", d),
		slog.Time("until", until),
	)

	if _, err := r.evaluateLocked(ctx); err != nil {
		return until, err
	}
	r.saveLocked(ctx)
	return until, nil
}

// StopHeating clears any force window and turns the heater off
// immediately, bypassing the minimum-runtime hold.
func (r *Router) StopHeating(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides.ForceHeatingUntil = time.Time{}
	if err := r.ctrl.Stop(ctx, r.now()); err != nil {
		return err
	}
	r.saveLocked(ctx)
	return nil
}

// SetAutoMode toggles rule-driven operation. With auto mode off only
// force heating can turn the heater on.
func (r *Router) SetAutoMode(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides.AutoModeEnabled = enabled
	log.Ctx(ctx).InfoContext(ctx, "auto mode changed", slog.Bool("enabled", enabled))
	if _, err := r.evaluateLocked(ctx); err != nil {
		return err
	}
	r.saveLocked(ctx)
	return nil
}

// SetOffpeakFallback toggles the off-peak fallback rule.
func (r *Router) SetOffpeakFallback(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides.OffpeakFallbackEnabled = enabled
	log.Ctx(ctx).InfoContext(ctx, "offpeak fallback changed", slog.Bool("enabled", enabled))
	if _, err := r.evaluateLocked(ctx); err != nil {
		return err
	}
	r.saveLocked(ctx)
	return nil
}

// SetTankTemperature calibrates the estimate against a real measurement.
// Returns the applied value after clamping.
func (r *Router) SetTankTemperature(ctx context.Context, tempC float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	applied := r.tank.SetTemperature(r.now(), tempC)
	log.Ctx(ctx).InfoContext(ctx, "tank temperature calibrated",
		slog.Float64("requested", tempC),
		slog.Float64("applied", applied),
	)
	r.saveLocked(ctx)
	return applied, nil
}

// ApplyUsageEvent tells the estimator hot water was drawn. Returns the
// new estimated temperature.
func (r *Router) ApplyUsageEvent(ctx context.Context, kind string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	temp, err := r.tank.ApplyUsageEvent(kind)
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).InfoContext(ctx, "usage event applied",
		slog.String("kind", kind),
		slog.Float64("tempC", temp),
	)
	r.saveLocked(ctx)
	return temp, nil
}

// ResetDailyStats zeroes the daily counters ahead of the automatic
// midnight rollover.
func (r *Router) ResetDailyStats(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tank.ResetDailyStats(r.now())
	r.saveLocked(ctx)
	return nil
}

// SetRule validates and upserts a rule, then persists the table.
func (r *Router) SetRule(ctx context.Context, rule types.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Rules()
	if err := r.engine.SetRule(rule); err != nil {
		return err
	}
	return r.saveRulesLocked(ctx, prev)
}

// EnableRule enables the named rule and persists the table.
func (r *Router) EnableRule(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Rules()
	if err := r.engine.EnableRule(name); err != nil {
		return err
	}
	return r.saveRulesLocked(ctx, prev)
}

// DisableRule disables the named rule and persists the table.
func (r *Router) DisableRule(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Rules()
	if err := r.engine.DisableRule(name); err != nil {
		return err
	}
	return r.saveRulesLocked(ctx, prev)
}

// RemoveRule deletes the named rule and persists the table.
func (r *Router) RemoveRule(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Rules()
	if err := r.engine.RemoveRule(name); err != nil {
		return err
	}
	return r.saveRulesLocked(ctx, prev)
}

// Rules returns the rule table ordered by priority.
func (r *Router) Rules() []types.Rule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Rules()
}

// Thresholds returns the adjustable knobs.
func (r *Router) Thresholds() types.Thresholds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Thresholds()
}

// SetThresholds rewrites the governing rule conditions and persists the
// table.
func (r *Router) SetThresholds(ctx context.Context, t types.Thresholds) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.engine.Rules()
	r.engine.SetThresholds(t)
	return r.saveRulesLocked(ctx, prev)
}

// Overrides returns the current override switches.
func (r *Router) Overrides() types.Overrides {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrides
}

// Forecast projects the tank temperature for the coming hours.
func (r *Router) Forecast(hours int) []types.ForecastPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tank.Forecast(r.now(), hours)
}

// Readings assembles the full read-only view for the presentation layer.
func (r *Router) Readings() types.Readings {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	state := r.tank.State()
	thresholds := r.engine.Thresholds()
	snap := r.lastSnapshot

	solarSufficient := snap.SolarPowerW != nil && *snap.SolarPowerW >= thresholds.MinSolarPowerW
	batterySufficient := snap.BatterySOC != nil && *snap.BatterySOC >= thresholds.MinBatterySOC
	daily := r.tank.DailyHeatingMinutes()

	return types.Readings{
		TankTempC:            state.EstimatedTempC,
		EstimatedShowers:     r.tank.EstimatedShowersAvailable(),
		DailyHeatingMinutes:  daily,
		DailyHeatingEnergyWH: state.DailyHeatingEnergyWH,
		SessionsToday:        state.SessionsToday,
		EnergyContentKWH:     r.tank.EnergyContentKWH(),
		TimeToTargetMinutes:  r.tank.TimeToTargetMinutes(),
		TimeToColdHours:      r.tank.TimeToColdHours(),
		ActiveRule:           r.ctrl.ActiveRule(),
		HeatingMode:          heater.Mode(r.overrides, now),
		IsHeating:            r.ctrl.IsHeating(),
		SolarSufficient:      solarSufficient,
		BatterySufficient:    batterySufficient,
		TankHot:              state.EstimatedTempC >= tankHotThresholdC,
		TankCold:             state.EstimatedTempC < tankColdThresholdC,
		FallbackNeeded:       daily < thresholds.MinDailyHeatingMinutes,
	}
}

// LastDecision returns the outcome of the most recent evaluation.
func (r *Router) LastDecision() types.HeatingDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDecision
}

// saveRulesLocked persists the table. On a storage failure the engine is
// restored to prev so the live table never diverges from what is stored.
func (r *Router) saveRulesLocked(ctx context.Context, prev []types.Rule) error {
	if err := r.db.SaveRules(ctx, r.engine.Rules()); err != nil {
		r.engine.Restore(prev)
		return fmt.Errorf("save rules: %w", err)
	}
	return nil
}
