package storage

import (
	"context"
	"testing"
	"time"

	"github.com/solarrouter/solarrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	rules, err := db.LoadRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	_, found, err := db.LoadOverrides(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = db.LoadTankState(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	in := []types.Rule{{
		Name:     "solar_excess",
		Priority: 80,
		Enabled:  true,
		Conditions: []types.Condition{
			{Type: types.ConditionSolarPowerAbove, Value: types.Float64Ptr(2500)},
		},
		Action: types.ActionTurnOn,
		Seq:    1,
	}}
	require.NoError(t, db.SaveRules(ctx, in))
	rules, err = db.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, rules)

	o := types.DefaultOverrides()
	o.ForceHeatingUntil = time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveOverrides(ctx, o))
	got, found, err := db.LoadOverrides(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, o, got)

	s := types.TankState{EstimatedTempC: 48.5, StatsDate: "2026-06-01"}
	require.NoError(t, db.SaveTankState(ctx, s))
	gotState, found, err := db.LoadTankState(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s, gotState)
}

func TestMemorySaveRulesCopies(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	in := []types.Rule{{
		Name:     "a",
		Priority: 10,
		Enabled:  true,
		Conditions: []types.Condition{
			{Type: types.ConditionOffpeakHours},
		},
		Action: types.ActionTurnOn,
	}}
	require.NoError(t, db.SaveRules(ctx, in))

	// mutating the caller's slice must not reach back into storage
	in[0].Name = "b"
	rules, err := db.LoadRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", rules[0].Name)
}
