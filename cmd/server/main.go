// Command server runs the portfolio optimization service.
//
// Startup sequence:
//  1. Loads configuration from environment variables (.env supported)
//  2. Initializes structured logging
//  3. Wires the event bus, backend registry and job controller
//  4. Registers the periodic backend availability probe with the scheduler
//  5. Starts the HTTP server
//  6. Waits for shutdown signal and performs graceful shutdown
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantfolio/qpo/internal/config"
	"github.com/quantfolio/qpo/internal/events"
	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/circuit"
	"github.com/quantfolio/qpo/internal/modules/encoding"
	"github.com/quantfolio/qpo/internal/modules/jobs"
	"github.com/quantfolio/qpo/internal/modules/qaoa"
	"github.com/quantfolio/qpo/internal/scheduler"
	"github.com/quantfolio/qpo/internal/server"
	"github.com/quantfolio/qpo/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("port", cfg.Port).
		Bool("sync_mode", cfg.SyncMode).
		Bool("local_only", cfg.LocalOnly).
		Bool("gateway_configured", cfg.RuntimeURL != "").
		Msg("Starting QPO")

	// Event bus and manager: every lifecycle, progress and probe event flows
	// through here, both to SSE clients and to the structured log.
	eventBus := events.NewBus(log)
	eventManager := events.NewManager(eventBus, log)

	// Backend registry with the standard four-tier set. Network tiers probe
	// the runtime gateway; with no gateway configured they stay registered
	// but unavailable, and plans fall through to local execution.
	registry := backends.NewRegistry(eventManager, log)
	backends.RegisterDefaults(registry, cfg.RuntimeURL, http.DefaultClient)
	selector := backends.NewSelector(registry, cfg.LocalOnly, log)

	// Execution engines behind one dispatching executor.
	remote := circuit.NewRemoteClient(cfg.RuntimeURL, cfg.RuntimeToken, cfg.PricePerShot, nil, log)
	dispatcher := circuit.NewDispatcher(remote, log)

	optimizer := qaoa.NewOptimizer(selector, dispatcher, log)
	encoder := encoding.NewEncoder(log)
	controller := jobs.NewController(encoder, optimizer, eventManager, cfg.SyncMode, log)

	// Periodic availability re-probing keeps the cached backend statuses
	// fresh and emits BACKEND_PROBED events for stream clients.
	sched := scheduler.New(log)
	probeJob := backends.NewProbeJob(registry)
	if err := sched.AddJob(cfg.ProbeSchedule, probeJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ProbeSchedule).Msg("Failed to register probe job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Controller: controller,
		Registry:   registry,
		EventBus:   eventBus,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	eventBus.Close()
	log.Info().Msg("Server stopped")
}
