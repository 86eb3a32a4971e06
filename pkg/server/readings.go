package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/types"
)

const (
	defaultForecastHours = 24
	maxForecastHours     = 72
)

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.router.Readings())
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	hours := defaultForecastHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxForecastHours {
			writeJSONError(w, "hours must be between 1 and 72", http.StatusBadRequest)
			return
		}
		hours = n
	}
	writeJSON(w, s.router.Forecast(hours))
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.router.Thresholds())
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MinBatterySOC < 0 || req.MinBatterySOC > 100 {
		writeJSONError(w, "minBatterySOC must be 0-100", http.StatusBadRequest)
		return
	}
	if req.MinSolarPowerW < 0 || req.MinDailyHeatingMinutes < 0 {
		writeJSONError(w, "thresholds cannot be negative", http.StatusBadRequest)
		return
	}

	if err := s.router.SetThresholds(ctx, req); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "set thresholds failed", slog.Any("error", err))
		writeJSONError(w, "set thresholds failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Thresholds())
}
