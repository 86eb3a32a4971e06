package rules

import (
	"context"
	"testing"
	"time"

	"github.com/solarrouter/solarrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onRule(name string, priority int, conds ...types.Condition) types.Rule {
	if conds == nil {
		conds = []types.Condition{{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(100)}}
	}
	return types.Rule{
		Name:       name,
		Priority:   priority,
		Enabled:    true,
		Conditions: conds,
		Action:     types.ActionTurnOn,
	}
}

func TestSetRuleRejectsInvalidCondition(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("keep", 50)))

	bad := onRule("keep", 60)
	bad.Conditions = []types.Condition{{Type: "not_a_condition"}}
	assert.Error(t, e.SetRule(bad))

	// rejected upsert leaves the existing rule untouched
	got, ok := e.Rule("keep")
	require.True(t, ok)
	assert.Equal(t, 50, got.Priority)
	assert.Equal(t, types.ConditionTankTempBelow, got.Conditions[0].Type)
}

func TestSetRuleRejectsBadPriority(t *testing.T) {
	e := NewEngine()
	r := onRule("oob", 101)
	assert.Error(t, e.SetRule(r))
	r.Priority = -1
	assert.Error(t, e.SetRule(r))
}

func TestRemoveRule(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("gone", 10)))
	require.NoError(t, e.RemoveRule("gone"))
	_, ok := e.Rule("gone")
	assert.False(t, ok)
	assert.ErrorIs(t, e.RemoveRule("gone"), ErrRuleNotFound)
}

func TestDecideHighestPriorityWins(t *testing.T) {
	e := NewEngine()
	lo := onRule("lo", 90)
	hi := onRule("hi", 100)
	hi.Action = types.ActionTurnOff
	require.NoError(t, e.SetRule(lo))
	require.NoError(t, e.SetRule(hi))

	d := e.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, types.InstructionOff, d.Instruction)
	assert.Equal(t, "hi", d.RuleName)
}

func TestDecideTieBreaksByMostRecent(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("first", 80)))
	require.NoError(t, e.SetRule(onRule("second", 80)))

	d := e.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "second", d.RuleName)

	// re-defining "first" bumps its sequence past "second"
	require.NoError(t, e.SetRule(onRule("first", 80)))
	d = e.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "first", d.RuleName)
}

func TestDecideNoMatchAbstains(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("cold", 50, types.Condition{
		Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(35),
	})))

	evalCtx := evalCtxAt(12, 0)
	evalCtx.TankTempC = 50
	d := e.Decide(context.Background(), evalCtx, types.DefaultOverrides())
	assert.Equal(t, types.InstructionNone, d.Instruction)
	assert.Equal(t, types.RuleNameNone, d.RuleName)
	assert.False(t, d.ShouldHeat())
}

func TestDecideDisabledRuleSkipped(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("hi", 100)))
	require.NoError(t, e.SetRule(onRule("lo", 10)))
	require.NoError(t, e.DisableRule("hi"))

	d := e.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "lo", d.RuleName)

	require.NoError(t, e.EnableRule("hi"))
	d = e.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "hi", d.RuleName)
}

func TestDecideEmergencyHeating(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	evalCtx := evalCtxAt(12, 0)
	evalCtx.TankTempC = 30

	d := e.Decide(context.Background(), evalCtx, types.DefaultOverrides())
	assert.Equal(t, types.InstructionOn, d.Instruction)
	assert.Equal(t, RuleEmergencyHeating, d.RuleName)
	assert.True(t, d.ShouldHeat())
}

func TestDecideBatteryProtectionBeatsDivert(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	evalCtx := evalCtxAt(12, 0)
	evalCtx.TankTempC = 45
	evalCtx.Snapshot = types.TelemetrySnapshot{
		BatterySOC:  types.Float64Ptr(30),
		SolarPowerW: types.Float64Ptr(200),
		GridPowerW:  types.Float64Ptr(-2000),
	}

	d := e.Decide(context.Background(), evalCtx, types.DefaultOverrides())
	assert.Equal(t, RuleBatteryProtection, d.RuleName)
	assert.Equal(t, types.InstructionOff, d.Instruction)
}

func TestDecideAutoModeDisabled(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	evalCtx := evalCtxAt(12, 0)
	evalCtx.TankTempC = 30
	overrides := types.DefaultOverrides()
	overrides.AutoModeEnabled = false

	d := e.Decide(context.Background(), evalCtx, overrides)
	assert.Equal(t, types.InstructionNone, d.Instruction)
	assert.Equal(t, types.RuleNameNone, d.RuleName)
}

func TestDecideForceOverridesAutoModeOff(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	evalCtx := evalCtxAt(12, 0)
	evalCtx.TankTempC = 60
	overrides := types.DefaultOverrides()
	overrides.AutoModeEnabled = false
	overrides.ForceHeatingUntil = evalCtx.Now.Add(30 * time.Minute)

	d := e.Decide(context.Background(), evalCtx, overrides)
	assert.Equal(t, types.InstructionOn, d.Instruction)
	assert.True(t, d.Forced)

	// force window expired, back to abstaining
	evalCtx.Now = evalCtx.Now.Add(time.Hour)
	d = e.Decide(context.Background(), evalCtx, overrides)
	assert.Equal(t, types.InstructionNone, d.Instruction)
	assert.False(t, d.Forced)
}

func TestDecideOffpeakFallbackToggle(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	// off-peak, cold-ish tank, no daily heating yet
	evalCtx := evalCtxAt(23, 0)
	evalCtx.TankTempC = 45

	d := e.Decide(context.Background(), evalCtx, types.DefaultOverrides())
	assert.Equal(t, RuleOffpeakFallback, d.RuleName)

	overrides := types.DefaultOverrides()
	overrides.OffpeakFallbackEnabled = false
	d = e.Decide(context.Background(), evalCtx, overrides)
	assert.Equal(t, types.InstructionNone, d.Instruction)
}

func TestRestoreKeepsSequences(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.SetRule(onRule("a", 80)))
	require.NoError(t, e.SetRule(onRule("b", 80)))

	e2 := NewEngine()
	e2.Restore(e.Rules())

	d := e2.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "b", d.RuleName)

	// new rules keep getting fresh sequence numbers after a restore
	require.NoError(t, e2.SetRule(onRule("c", 80)))
	d = e2.Decide(context.Background(), evalCtxAt(12, 0), types.DefaultOverrides())
	assert.Equal(t, "c", d.RuleName)
}

func TestThresholdsRoundTrip(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()

	got := e.Thresholds()
	assert.EqualValues(t, DefaultMinBatterySOC, got.MinBatterySOC)
	assert.EqualValues(t, DefaultMinSolarPowerW, got.MinSolarPowerW)
	assert.EqualValues(t, DefaultMinDailyHeatingMinutes, got.MinDailyHeatingMinutes)

	e.SetThresholds(types.Thresholds{
		MinBatterySOC:          85,
		MinSolarPowerW:         1800,
		MinDailyHeatingMinutes: 45,
	})
	got = e.Thresholds()
	assert.EqualValues(t, 85, got.MinBatterySOC)
	assert.EqualValues(t, 1800, got.MinSolarPowerW)
	assert.EqualValues(t, 45, got.MinDailyHeatingMinutes)

	// the solar_excess rule itself now carries the new knobs
	r, ok := e.Rule(RuleSolarExcess)
	require.True(t, ok)
	var soc float64
	for _, c := range r.Conditions {
		if c.Type == types.ConditionBatterySOCAbove {
			soc = *c.Value
		}
	}
	assert.EqualValues(t, 85, soc)
}

func TestThresholdsFallBackWhenRuleRemoved(t *testing.T) {
	e := NewEngine()
	e.SeedDefaults()
	require.NoError(t, e.RemoveRule(RuleSolarExcess))

	got := e.Thresholds()
	assert.EqualValues(t, DefaultMinBatterySOC, got.MinBatterySOC)
}
