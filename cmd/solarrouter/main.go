package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/solarrouter/solarrouter/pkg/events"
	"github.com/solarrouter/solarrouter/pkg/heater"
	"github.com/solarrouter/solarrouter/pkg/log"
	"github.com/solarrouter/solarrouter/pkg/metrics"
	"github.com/solarrouter/solarrouter/pkg/router"
	"github.com/solarrouter/solarrouter/pkg/server"
	"github.com/solarrouter/solarrouter/pkg/storage"
	"github.com/solarrouter/solarrouter/pkg/telemetry"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// init packages
	db := storage.Configured()
	relay := heater.Configured()
	source := telemetry.Configured()
	bus := events.Configured()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	rt := router.Configured(db, relay, source, bus, m)
	srv := server.Configured(rt, registry)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := db.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
		if err := relay.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close relay", "error", err)
		}
		if err := source.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close telemetry", "error", err)
		}
		if err := bus.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close event bus", "error", err)
		}
	}()

	// restore persisted state before anything runs
	if err := rt.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "router init failed", "error", err)
		os.Exit(1)
	}

	// the evaluation loop runs beside the HTTP server
	go rt.Run(ctx)

	// Run will block until context is canceled or an error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
