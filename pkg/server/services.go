package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/rules"
	"github.com/solarrouter/solarrouter/pkg/tank"
	"github.com/solarrouter/solarrouter/pkg/types"
)

// handleEvaluate forces an evaluation tick outside the regular cadence.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	decision, err := s.router.Evaluate(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "manual evaluation failed", slog.Any("error", err))
		writeJSONError(w, "evaluation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, decision)
}

func (s *Server) handleForceHeating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	until, err := s.router.ForceHeating(ctx, time.Duration(req.Minutes)*time.Minute)
	if err != nil {
		if errors.Is(err, heater.ErrBadForceDuration) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "force heating failed", slog.Any("error", err))
		writeJSONError(w, "force heating failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		Until time.Time `json:"until"`
	}{Until: until})
}

func (s *Server) handleStopHeating(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.router.StopHeating(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "stop heating failed", slog.Any("error", err))
		writeJSONError(w, "stop heating failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Readings())
}

func (s *Server) handleSetAutoMode(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, s.router.SetAutoMode)
}

func (s *Server) handleSetOffpeakFallback(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, s.router.SetOffpeakFallback)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, enabled bool) error) {
	ctx := r.Context()

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := set(ctx, *req.Enabled); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "toggle failed", slog.Any("error", err))
		writeJSONError(w, "toggle failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Overrides())
}

func (s *Server) handleSetTankTemperature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Temperature *float64 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Temperature == nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	applied, err := s.router.SetTankTemperature(ctx, *req.Temperature)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "set tank temperature failed", slog.Any("error", err))
		writeJSONError(w, "set tank temperature failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		Applied float64 `json:"applied"`
	}{Applied: applied})
}

func (s *Server) handleUsageEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	temp, err := s.router.ApplyUsageEvent(ctx, req.Kind)
	if err != nil {
		if errors.Is(err, tank.ErrUnknownUsageEvent) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "usage event failed", slog.Any("error", err))
		writeJSONError(w, "usage event failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		TempC float64 `json:"tempC"`
	}{TempC: temp})
}

func (s *Server) handleResetDailyStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.router.ResetDailyStats(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "reset daily stats failed", slog.Any("error", err))
		writeJSONError(w, "reset failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Readings())
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.router.Rules())
}

func (s *Server) handleSetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.router.SetRule(ctx, rule); err != nil {
		if errors.Is(err, types.ErrInvalidRule) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "set rule failed", slog.Any("error", err))
		writeJSONError(w, "set rule failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Rules())
}

func (s *Server) handleEnableRule(w http.ResponseWriter, r *http.Request) {
	s.handleRuleToggle(w, r, s.router.EnableRule)
}

func (s *Server) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	s.handleRuleToggle(w, r, s.router.DisableRule)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	s.handleRuleToggle(w, r, s.router.RemoveRule)
}

func (s *Server) handleRuleToggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, name string) error) {
	ctx := r.Context()
	name := r.PathValue("name")

	if err := op(ctx, name); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "rule operation failed",
			slog.String("rule", name), slog.Any("error", err))
		writeJSONError(w, "rule operation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.router.Rules())
}
