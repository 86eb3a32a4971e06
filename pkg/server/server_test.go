package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/solarrouter/solarrouter/pkg/events"
	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/router"
	"github.com/solarrouter/solarrouter/pkg/rules"
	"github.com/solarrouter/solarrouter/pkg/storage"
	"github.com/solarrouter/solarrouter/pkg/storage/storagemock"
	"github.com/solarrouter/solarrouter/pkg/tank"
	"github.com/solarrouter/solarrouter/pkg/telemetry"
	"github.com/solarrouter/solarrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	model, err := tank.New(types.DefaultTankConfig(), time.Now())
	require.NoError(t, err)
	ctrl := heater.NewController(heater.NewMockRelay(false), model, events.NewRecorder())

	rt, err := router.New(router.Deps{
		Tank:      model,
		Engine:    rules.NewEngine(),
		Heater:    ctrl,
		Telemetry: telemetry.NewStatic(),
		DB:        storage.NewMemory(),
	})
	require.NoError(t, err)
	require.NoError(t, rt.Init(context.Background()))

	srv := &Server{
		router:     rt,
		registry:   prometheus.NewRegistry(),
		bypassAuth: true,
	}
	return srv, srv.setupHandler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHandleReadings(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/readings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[types.Readings](t, w)
	assert.InDelta(t, 55, got.TankTempC, 0.1)
	assert.Equal(t, types.HeatingModeAuto, got.HeatingMode)
	assert.False(t, got.IsHeating)
}

func TestHandleForceAndStop(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/heating/force", map[string]int{"minutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/heating/force", map[string]int{"minutes": 60})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/readings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[types.Readings](t, w)
	assert.True(t, got.IsHeating)
	assert.Equal(t, types.HeatingModeForced, got.HeatingMode)

	w = doJSON(t, h, http.MethodPost, "/api/heating/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[types.Readings](t, w)
	assert.False(t, got.IsHeating)
}

func TestHandleSetRuleInvalid(t *testing.T) {
	_, h := newTestServer(t)

	bad := types.Rule{
		Name:     "custom",
		Priority: 50,
		Enabled:  true,
		Conditions: []types.Condition{
			{Type: "not_a_condition"},
		},
		Action: types.ActionTurnOn,
	}
	w := doJSON(t, h, http.MethodPost, "/api/rules", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Rule](t, w), 6)
}

func TestHandleSetRule(t *testing.T) {
	_, h := newTestServer(t)

	rule := types.Rule{
		Name:        "morning_boost",
		Description: "Heat before the morning showers",
		Priority:    65,
		Enabled:     true,
		Conditions: []types.Condition{
			{Type: types.ConditionTimeBetween, Start: "05:00", End: "07:00"},
			{Type: types.ConditionTankTempBelow, Value: types.Float64Ptr(45)},
		},
		Action: types.ActionTurnOn,
	}
	w := doJSON(t, h, http.MethodPost, "/api/rules", rule)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Rule](t, w), 7)
}

func TestHandleRuleToggles(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/rules/no_such_rule/disable", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/rules/solar_excess/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/rules/tank_full", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.Rule](t, w), 5)
}

func TestHandleThresholds(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[types.Thresholds](t, w)
	assert.EqualValues(t, rules.DefaultMinBatterySOC, got.MinBatterySOC)

	w = doJSON(t, h, http.MethodPost, "/api/thresholds", types.Thresholds{
		MinBatterySOC: 150,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/thresholds", types.Thresholds{
		MinBatterySOC:          85,
		MinSolarPowerW:         1800,
		MinDailyHeatingMinutes: 45,
	})
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[types.Thresholds](t, w)
	assert.EqualValues(t, 85, got.MinBatterySOC)
}

func TestHandleForecast(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/api/forecast", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.ForecastPoint](t, w), 25)

	w = doJSON(t, h, http.MethodGet, "/api/forecast?hours=6", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]types.ForecastPoint](t, w), 7)

	w = doJSON(t, h, http.MethodGet, "/api/forecast?hours=200", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUsageEvent(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/tank/usage", map[string]string{"kind": "bath"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/tank/usage", map[string]string{"kind": "shower"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]float64](t, w)
	assert.InDelta(t, 41.0, got["tempC"], 0.001)
}

func TestHandleToggleValidation(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/automode", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/automode", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[types.Overrides](t, w)
	assert.False(t, got.AutoModeEnabled)
}

func TestHealthzAndMetrics(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleSetRuleStorageFailure(t *testing.T) {
	model, err := tank.New(types.DefaultTankConfig(), time.Now())
	require.NoError(t, err)
	ctrl := heater.NewController(heater.NewMockRelay(false), model, events.NewRecorder())

	db := &storagemock.MockDatabase{}
	db.On("LoadRules", mock.Anything).Return([]types.Rule{}, nil).Once()
	db.On("SaveRules", mock.Anything, mock.Anything).Return(nil).Once()
	db.On("LoadOverrides", mock.Anything).Return(types.Overrides{}, false, nil)
	db.On("LoadTankState", mock.Anything).Return(types.TankState{}, false, nil)

	rt, err := router.New(router.Deps{
		Tank:      model,
		Engine:    rules.NewEngine(),
		Heater:    ctrl,
		Telemetry: telemetry.NewStatic(),
		DB:        db,
	})
	require.NoError(t, err)
	require.NoError(t, rt.Init(context.Background()))

	srv := &Server{router: rt, registry: prometheus.NewRegistry(), bypassAuth: true}
	h := srv.setupHandler()

	db.On("SaveRules", mock.Anything, mock.Anything).Return(errors.New("firestore down"))
	rule := types.Rule{
		Name:     "custom",
		Priority: 50,
		Enabled:  true,
		Conditions: []types.Condition{
			{Type: types.ConditionOffpeakHours},
		},
		Action: types.ActionTurnOn,
	}
	w := doJSON(t, h, http.MethodPost, "/api/rules", rule)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// the failed write must not leave the rejected rule in the live table
	got := rt.Rules()
	assert.Len(t, got, 6)
	for _, r := range got {
		assert.NotEqual(t, "custom", r.Name)
	}
	db.AssertExpectations(t)
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.bypassAuth = false
	srv.verify = func(_ context.Context, raw string) (*oidc.IDToken, error) {
		if raw == "good" {
			return &oidc.IDToken{Subject: "user"}, nil
		}
		return nil, errors.New("bad token")
	}
	h := srv.setupHandler()

	// reads stay open
	w := doJSON(t, h, http.MethodGet, "/api/readings", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/heating/stop", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/heating/stop", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/heating/stop", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
