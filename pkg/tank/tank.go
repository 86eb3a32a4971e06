// Package tank maintains a best-effort estimate of water-tank temperature
// and stored energy without a physical sensor, from heater runtime, heat
// loss and recorded usage events.
package tank

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/solarrouter/solarrouter/pkg/types"
)

const (
	waterSpecificHeatJPerKgC = 4186
	waterDensityKgPerL       = 1

	// safetyCeilingC bounds the estimate regardless of integration error.
	safetyCeilingC = 100

	// maxStepSeconds caps a single integration step. Larger tick deltas are
	// sub-stepped so a stalled scheduler cannot produce non-physical
	// overshoot in one jump.
	maxStepSeconds = 300

	// calibrationOvershootC is how far above target an operator calibration
	// may push the estimate.
	calibrationOvershootC = 10
)

// ErrUnknownUsageEvent is returned for usage events outside shower/dishes.
var ErrUnknownUsageEvent = errors.New("unknown usage event")

// UnreachableMinutes is the sentinel returned by TimeToTargetMinutes when
// heat loss outpaces the heating element.
const UnreachableMinutes = -1

// Model estimates tank temperature over time. It is the only owner of
// TankState; callers get copies via State. Model is not safe for concurrent
// use, the router serializes access.
type Model struct {
	cfg   types.TankConfig
	state types.TankState
}

// New validates the config and returns a model primed at target
// temperature. Implausible configuration is fatal here, never at tick time.
func New(cfg types.TankConfig, now time.Time) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tank config: %w", err)
	}
	return &Model{
		cfg: cfg,
		state: types.TankState{
			EstimatedTempC: cfg.TargetTempC,
			LastUpdate:     now,
			StatsDate:      localDate(now),
		},
	}, nil
}

// Config returns the immutable tank configuration.
func (m *Model) Config() types.TankConfig {
	return m.cfg
}

// State returns a copy of the current tank state.
func (m *Model) State() types.TankState {
	return m.state
}

// Restore replaces the state from a persisted snapshot, clamping the
// temperature into sane bounds in case the snapshot predates a config
// change.
func (m *Model) Restore(state types.TankState) {
	state.EstimatedTempC = m.clamp(state.EstimatedTempC)
	if state.StatsDate == "" {
		state.StatsDate = localDate(time.Now())
	}
	m.state = state
}

// thermalMassJPerC is the energy needed to raise the full tank by 1 degree.
func (m *Model) thermalMassJPerC() float64 {
	return m.cfg.VolumeLiters * waterDensityKgPerL * waterSpecificHeatJPerKgC
}

// heatingRateCPerSecond is the temperature rise rate at full heater power.
func (m *Model) heatingRateCPerSecond() float64 {
	return m.cfg.HeaterWattage / m.thermalMassJPerC()
}

// heatLossC returns the temperature drop over the given hours. Loss scales
// with how far the tank sits above ambient relative to the target delta.
func (m *Model) heatLossC(tempC, hours float64) float64 {
	tempDiff := tempC - m.cfg.AmbientTempC
	if tempDiff <= 0 {
		return 0
	}
	refDiff := m.cfg.TargetTempC - m.cfg.AmbientTempC
	if refDiff <= 0 {
		return m.cfg.HeatLossRateCPerH * hours
	}
	return m.cfg.HeatLossRateCPerH * hours * (tempDiff / refDiff)
}

func (m *Model) clamp(tempC float64) float64 {
	if math.IsNaN(tempC) || tempC < m.cfg.ColdWaterTempC {
		return m.cfg.ColdWaterTempC
	}
	if tempC > safetyCeilingC {
		return safetyCeilingC
	}
	return tempC
}

// Tick advances the estimate by deltaSeconds. While heating the estimate
// rises at the element rate minus heat loss and is capped at target (the
// tank's own thermostat stops it there); while idle it decays toward
// ambient and never drops below cold-water temperature. Deltas larger than
// maxStepSeconds are sub-stepped. Daily heating time and energy accrue here
// once per tick while the heater is on.
func (m *Model) Tick(now time.Time, deltaSeconds float64, heaterOn bool) float64 {
	if deltaSeconds < 0 {
		deltaSeconds = 0
	}

	remaining := deltaSeconds
	temp := m.state.EstimatedTempC
	for remaining > 0 {
		step := remaining
		if step > maxStepSeconds {
			step = maxStepSeconds
		}
		hours := step / 3600

		if heaterOn {
			rise := m.heatingRateCPerSecond() * step
			temp += rise - m.heatLossC(temp, hours)
			// thermostat cuts out at target
			if temp > m.cfg.TargetTempC {
				temp = m.cfg.TargetTempC
			}
		} else {
			temp -= m.heatLossC(temp, hours)
		}
		remaining -= step
	}
	temp = m.clamp(temp)

	if heaterOn {
		m.state.DailyHeatingSeconds += deltaSeconds
		m.state.DailyHeatingEnergyWH += m.cfg.HeaterWattage * deltaSeconds / 3600
	}

	m.state.EstimatedTempC = temp
	m.state.IsHeating = heaterOn
	m.state.LastUpdate = now
	return temp
}

// ApplyUsageEvent instantly drops the estimate for a recorded hot-water
// draw. The kind must be "shower" or "dishes".
func (m *Model) ApplyUsageEvent(kind string) (float64, error) {
	var durationMin, flowLPerMin float64
	switch kind {
	case "shower":
		durationMin, flowLPerMin = m.cfg.ShowerDurationMin, m.cfg.ShowerFlowLPerMin
	case "dishes":
		durationMin, flowLPerMin = m.cfg.DishesDurationMin, m.cfg.DishesFlowLPerMin
	default:
		return m.state.EstimatedTempC, fmt.Errorf("%w: %q", ErrUnknownUsageEvent, kind)
	}

	hotLiters := durationMin * flowLPerMin * m.cfg.HotWaterFraction
	drop := m.usageTempDropC(m.state.EstimatedTempC, hotLiters)
	m.state.EstimatedTempC = m.clamp(m.state.EstimatedTempC - drop)

	slog.Debug("applied usage event",
		slog.String("event", kind),
		slog.Float64("dropC", drop),
		slog.Float64("tempC", m.state.EstimatedTempC),
	)
	return m.state.EstimatedTempC, nil
}

// usageTempDropC mixes the drawn hot volume with incoming cold water.
func (m *Model) usageTempDropC(tempC, hotLiters float64) float64 {
	if hotLiters >= m.cfg.VolumeLiters {
		// the whole tank got replaced
		return tempC - m.cfg.ColdWaterTempC
	}
	remaining := m.cfg.VolumeLiters - hotLiters
	newTemp := (remaining*tempC + hotLiters*m.cfg.ColdWaterTempC) / m.cfg.VolumeLiters
	return tempC - newTemp
}

// SetTemperature is the operator calibration override. The value is bounded
// to [coldWater, target+10].
func (m *Model) SetTemperature(now time.Time, tempC float64) float64 {
	upper := m.cfg.TargetTempC + calibrationOvershootC
	if tempC > upper {
		tempC = upper
	}
	if tempC < m.cfg.ColdWaterTempC {
		tempC = m.cfg.ColdWaterTempC
	}
	m.state.EstimatedTempC = tempC
	m.state.LastUpdate = now
	return tempC
}

// RecordSessionStart bumps the daily session counter on an off-to-on relay
// transition.
func (m *Model) RecordSessionStart(now time.Time) {
	m.state.LastHeatingStart = now
	m.state.SessionsToday++
}

// RecordSessionEnd marks the end of a heating session.
func (m *Model) RecordSessionEnd(now time.Time) {
	m.state.LastHeatingEnd = now
}

// ResetDailyStats zeroes the three daily counters.
func (m *Model) ResetDailyStats(now time.Time) {
	m.state.DailyHeatingSeconds = 0
	m.state.DailyHeatingEnergyWH = 0
	m.state.SessionsToday = 0
	m.state.StatsDate = localDate(now)
}

// RolloverIfNewDay resets the daily counters when the local date changed
// since the last tick. Returns true when a rollover happened.
func (m *Model) RolloverIfNewDay(now time.Time) bool {
	today := localDate(now)
	if m.state.StatsDate == today {
		return false
	}
	slog.Info("daily stats rollover",
		slog.String("from", m.state.StatsDate),
		slog.String("to", today),
		slog.Float64("heatingSeconds", m.state.DailyHeatingSeconds),
		slog.Float64("energyWH", m.state.DailyHeatingEnergyWH),
		slog.Int("sessions", m.state.SessionsToday),
	)
	m.ResetDailyStats(now)
	return true
}

// DailyHeatingMinutes is the accrued heating time for the current stats day.
func (m *Model) DailyHeatingMinutes() float64 {
	return m.state.DailyHeatingSeconds / 60
}

// EstimatedShowersAvailable simulates successive showers until the mix
// falls below the minimum usable temperature. Never negative.
func (m *Model) EstimatedShowersAvailable() float64 {
	if m.state.EstimatedTempC <= m.cfg.MinTempC {
		return 0
	}

	hotLiters := m.cfg.ShowerDurationMin * m.cfg.ShowerFlowLPerMin * m.cfg.HotWaterFraction
	current := m.state.EstimatedTempC
	showers := 0.0
	for current > m.cfg.MinTempC {
		drop := m.usageTempDropC(current, hotLiters)
		if drop <= 0 {
			break
		}
		next := current - drop
		if next < m.cfg.MinTempC {
			// partial shower left
			showers += (current - m.cfg.MinTempC) / drop
			break
		}
		current = next
		showers++
	}
	return math.Round(showers*10) / 10
}

// EnergyContentKWH is the sensible heat stored above the cold-water
// baseline.
func (m *Model) EnergyContentKWH() float64 {
	tempDiff := m.state.EstimatedTempC - m.cfg.ColdWaterTempC
	if tempDiff <= 0 {
		return 0
	}
	return m.thermalMassJPerC() * tempDiff / 3600000
}

// TimeToTargetMinutes projects the time to reach target at the current net
// heating rate. Returns 0 when already at or above target and
// UnreachableMinutes when heat loss outpaces the element.
func (m *Model) TimeToTargetMinutes() float64 {
	if m.state.EstimatedTempC >= m.cfg.TargetTempC {
		return 0
	}
	netRateCPerH := m.heatingRateCPerSecond()*3600 - m.cfg.HeatLossRateCPerH/2
	if netRateCPerH <= 0 {
		return UnreachableMinutes
	}
	needed := m.cfg.TargetTempC - m.state.EstimatedTempC
	return math.Round(needed / netRateCPerH * 60)
}

// TimeToColdHours projects the decay time to the minimum usable
// temperature with the heater off. Returns -1 when the tank never cools
// (zero heat-loss rate).
func (m *Model) TimeToColdHours() float64 {
	if m.state.EstimatedTempC <= m.cfg.MinTempC {
		return 0
	}
	if m.cfg.HeatLossRateCPerH <= 0 {
		return -1
	}
	hours := (m.state.EstimatedTempC - m.cfg.MinTempC) / m.cfg.HeatLossRateCPerH
	return math.Round(hours*10) / 10
}

// Forecast projects hourly temperatures assuming no heating plus a typical
// morning shower and evening dishes.
func (m *Model) Forecast(now time.Time, hoursAhead int) []types.ForecastPoint {
	points := make([]types.ForecastPoint, 0, hoursAhead+1)
	temp := m.state.EstimatedTempC

	showerLiters := m.cfg.ShowerDurationMin * m.cfg.ShowerFlowLPerMin * m.cfg.HotWaterFraction
	dishesLiters := m.cfg.DishesDurationMin * m.cfg.DishesFlowLPerMin * m.cfg.HotWaterFraction

	for hour := 0; hour <= hoursAhead; hour++ {
		at := now.Add(time.Duration(hour) * time.Hour)
		if hour > 0 {
			temp -= m.heatLossC(temp, 1)
			switch at.Hour() {
			case 7:
				temp -= m.usageTempDropC(temp, showerLiters)
			case 19:
				temp -= m.usageTempDropC(temp, dishesLiters)
			}
			temp = m.clamp(temp)
		}
		points = append(points, types.ForecastPoint{
			Time:         at,
			TemperatureC: math.Round(temp*10) / 10,
			Hour:         hour,
		})
	}
	return points
}

func localDate(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
