package rules

import (
	"time"

	"github.com/solarrouter/solarrouter/pkg/types"
)

// Context is everything a condition may inspect during one tick. It is
// rebuilt every evaluation and never retained.
type Context struct {
	Snapshot            types.TelemetrySnapshot
	TankTempC           float64
	DailyHeatingMinutes float64
	OffpeakStart        types.ClockTime
	OffpeakEnd          types.ClockTime
	Now                 time.Time
}

// EvaluateCondition evaluates a single condition against the tick context.
//
// Missing-sensor policy: every condition that reads a sensor evaluates to
// false when the reading is nil. This is the safety-relevant default both
// ways: a missing battery reading neither satisfies battery_soc_above
// (which would authorize heating without known headroom) nor
// battery_soc_below (which would let a protection rule fire spuriously).
// Rules that must act on sensor loss should use tank or time conditions,
// which never go missing. Tank temperature, daily heating time and the
// clock are always present.
func EvaluateCondition(c types.Condition, evalCtx Context) bool {
	switch c.Type {
	case types.ConditionBatterySOCAbove:
		soc := evalCtx.Snapshot.BatterySOC
		return soc != nil && c.Value != nil && *soc >= *c.Value

	case types.ConditionBatterySOCBelow:
		soc := evalCtx.Snapshot.BatterySOC
		return soc != nil && c.Value != nil && *soc <= *c.Value

	case types.ConditionSolarPowerAbove:
		solar := evalCtx.Snapshot.SolarPowerW
		return solar != nil && c.Value != nil && *solar >= *c.Value

	case types.ConditionSolarPowerBelow:
		solar := evalCtx.Snapshot.SolarPowerW
		return solar != nil && c.Value != nil && *solar <= *c.Value

	case types.ConditionGridExportAbove:
		// negative grid power is export
		grid := evalCtx.Snapshot.GridPowerW
		return grid != nil && c.Value != nil && *grid < 0 && -*grid >= *c.Value

	case types.ConditionGridImportAbove:
		grid := evalCtx.Snapshot.GridPowerW
		return grid != nil && c.Value != nil && *grid > 0 && *grid >= *c.Value

	case types.ConditionTankTempAbove:
		return c.Value != nil && evalCtx.TankTempC >= *c.Value

	case types.ConditionTankTempBelow:
		return c.Value != nil && evalCtx.TankTempC <= *c.Value

	case types.ConditionTimeBetween:
		start, err := types.ParseClockTime(c.Start)
		if err != nil {
			return false
		}
		end, err := types.ParseClockTime(c.End)
		if err != nil {
			return false
		}
		return types.InWindow(clockOf(evalCtx.Now), start, end)

	case types.ConditionDailyHeatingBelow:
		return c.Value != nil && evalCtx.DailyHeatingMinutes < *c.Value

	case types.ConditionDailyHeatingAbove:
		return c.Value != nil && evalCtx.DailyHeatingMinutes >= *c.Value

	case types.ConditionOffpeakHours:
		return types.InWindow(clockOf(evalCtx.Now), evalCtx.OffpeakStart, evalCtx.OffpeakEnd)
	}
	return false
}

func clockOf(t time.Time) types.ClockTime {
	return types.ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}
