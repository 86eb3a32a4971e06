package rules

import "github.com/solarrouter/solarrouter/pkg/types"

// Default threshold values, used when seeding rules and as fallbacks when
// a governing rule has been removed.
const (
	DefaultMinBatterySOC          = 70
	DefaultMinSolarPowerW         = 2500
	DefaultMinDailyHeatingMinutes = 60

	DefaultSolarWindowStart = "10:00"
	DefaultSolarWindowEnd   = "17:00"
)

// Names of the seeded rules. Threshold writes and the off-peak fallback
// toggle address rules by these names.
const (
	RuleSolarExcess       = "solar_excess"
	RuleGridExportDivert  = "grid_export_divert"
	RuleOffpeakFallback   = "offpeak_fallback"
	RuleEmergencyHeating  = "emergency_heating"
	RuleTankFull          = "tank_full"
	RuleBatteryProtection = "battery_protection"
)

// SeedDefaults installs the default routing rule set. It is called only
// when storage holds no rules yet, so user edits survive restarts.
func (e *Engine) SeedDefaults() {
	defaults := []types.Rule{
		{
			Name:        RuleSolarExcess,
			Description: "Route solar excess to water heater when battery is charged",
			Priority:    80,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionBatterySOCAbove, Value: types.Float64Ptr(DefaultMinBatterySOC)},
				{Type: types.ConditionSolarPowerAbove, Value: types.Float64Ptr(DefaultMinSolarPowerW)},
				{Type: types.ConditionTimeBetween, Start: DefaultSolarWindowStart, End: DefaultSolarWindowEnd},
				{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(55)},
			},
			Action: types.ActionTurnOn,
		},
		{
			Name:        RuleGridExportDivert,
			Description: "Divert grid export to water heater",
			Priority:    70,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionGridExportAbove, Value: types.Float64Ptr(1000)},
				{Type: types.ConditionBatterySOCAbove, Value: types.Float64Ptr(50)},
				{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(55)},
			},
			Action: types.ActionTurnOn,
		},
		{
			Name:        RuleOffpeakFallback,
			Description: "Heat during off-peak if daily minimum not met",
			Priority:    60,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionOffpeakHours},
				{Type: types.ConditionDailyHeatingBelow, Value: types.Float64Ptr(DefaultMinDailyHeatingMinutes)},
				{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(50)},
			},
			Action: types.ActionTurnOn,
		},
		{
			Name:        RuleEmergencyHeating,
			Description: "Emergency heating when tank is too cold",
			Priority:    100,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(35)},
			},
			Action: types.ActionTurnOn,
		},
		{
			Name:        RuleTankFull,
			Description: "Stop heating when tank reaches target",
			Priority:    90,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionTankTempAbove, Value: types.Float64Ptr(55)},
			},
			Action: types.ActionTurnOff,
		},
		{
			Name:        RuleBatteryProtection,
			Description: "Stop heating when battery is low and solar is weak",
			Priority:    95,
			Enabled:     true,
			Conditions: []types.Condition{
				{Type: types.ConditionBatterySOCBelow, Value: types.Float64Ptr(40)},
				{Type: types.ConditionSolarPowerBelow, Value: types.Float64Ptr(500)},
			},
			Action: types.ActionTurnOff,
		},
	}

	for _, r := range defaults {
		// defaults are statically valid
		_ = e.SetRule(r)
	}
}

// Thresholds reads the adjustable numeric knobs from the rules that carry
// them, falling back to defaults when a governing rule was removed.
func (e *Engine) Thresholds() types.Thresholds {
	t := types.Thresholds{
		MinBatterySOC:          DefaultMinBatterySOC,
		MinSolarPowerW:         DefaultMinSolarPowerW,
		MinDailyHeatingMinutes: DefaultMinDailyHeatingMinutes,
	}
	if r, ok := e.rules[RuleSolarExcess]; ok {
		for _, c := range r.Conditions {
			switch {
			case c.Type == types.ConditionBatterySOCAbove && c.Value != nil:
				t.MinBatterySOC = *c.Value
			case c.Type == types.ConditionSolarPowerAbove && c.Value != nil:
				t.MinSolarPowerW = *c.Value
			}
		}
	}
	if r, ok := e.rules[RuleOffpeakFallback]; ok {
		for _, c := range r.Conditions {
			if c.Type == types.ConditionDailyHeatingBelow && c.Value != nil {
				t.MinDailyHeatingMinutes = *c.Value
			}
		}
	}
	return t
}

// SetThresholds rewrites the governing rule conditions in place. Rules the
// user removed are skipped.
func (e *Engine) SetThresholds(t types.Thresholds) {
	if r, ok := e.rules[RuleSolarExcess]; ok {
		for i, c := range r.Conditions {
			switch c.Type {
			case types.ConditionBatterySOCAbove:
				r.Conditions[i].Value = types.Float64Ptr(t.MinBatterySOC)
			case types.ConditionSolarPowerAbove:
				r.Conditions[i].Value = types.Float64Ptr(t.MinSolarPowerW)
			}
		}
		e.rules[RuleSolarExcess] = r
	}
	if r, ok := e.rules[RuleOffpeakFallback]; ok {
		for i, c := range r.Conditions {
			if c.Type == types.ConditionDailyHeatingBelow {
				r.Conditions[i].Value = types.Float64Ptr(t.MinDailyHeatingMinutes)
			}
		}
		e.rules[RuleOffpeakFallback] = r
	}
}
