// Package server exposes the router over HTTP: service operations, the
// read-only values, rule management and prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/router"
)

// Server handles the HTTP API for the solar router.
type Server struct {
	router   *router.Router
	registry *prometheus.Registry

	listenAddr string
	httpServer *http.Server

	oidcAudience string
	verify       tokenVerifier
	bypassAuth   bool
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(rt *router.Router, registry *prometheus.Registry) *Server {
	srv := &Server{
		router:   rt,
		registry: registry,
	}

	// get the port from PORT when running under a supervisor
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "OIDC issuer for bearer token validation")
	oidcAudience := lflag.String("oidc-audience", "", "Audience to validate on bearer tokens, empty disables auth")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.oidcAudience = *oidcAudience
		if *oidcAudience == "" {
			srv.bypassAuth = true
			return
		}
		verify, err := configureVerifier(context.Background(), *oidcIssuer, *oidcAudience)
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.Any("error", err))
			os.Exit(1)
		}
		srv.verify = verify
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	apiMux.HandleFunc("POST /api/heating/force", s.handleForceHeating)
	apiMux.HandleFunc("POST /api/heating/stop", s.handleStopHeating)
	apiMux.HandleFunc("POST /api/automode", s.handleSetAutoMode)
	apiMux.HandleFunc("POST /api/offpeak-fallback", s.handleSetOffpeakFallback)
	apiMux.HandleFunc("POST /api/tank/temperature", s.handleSetTankTemperature)
	apiMux.HandleFunc("POST /api/tank/usage", s.handleUsageEvent)
	apiMux.HandleFunc("POST /api/tank/reset-daily", s.handleResetDailyStats)
	apiMux.HandleFunc("GET /api/readings", s.handleReadings)
	apiMux.HandleFunc("GET /api/forecast", s.handleForecast)
	apiMux.HandleFunc("GET /api/rules", s.handleListRules)
	apiMux.HandleFunc("POST /api/rules", s.handleSetRule)
	apiMux.HandleFunc("POST /api/rules/{name}/enable", s.handleEnableRule)
	apiMux.HandleFunc("POST /api/rules/{name}/disable", s.handleDisableRule)
	apiMux.HandleFunc("DELETE /api/rules/{name}", s.handleRemoveRule)
	apiMux.HandleFunc("GET /api/thresholds", s.handleGetThresholds)
	apiMux.HandleFunc("POST /api/thresholds", s.handleSetThresholds)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return gziphandler.GzipHandler(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or
// an error occurs. It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}
