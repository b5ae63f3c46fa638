// Package main is the entry point for the Meridian energy-system
// simulation server. It exposes an HTTP API for triggering simulation
// runs, streaming their progress and querying stored results.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-energy/meridian/internal/config"
	"github.com/meridian-energy/meridian/internal/di"
	"github.com/meridian-energy/meridian/internal/server"
	"github.com/meridian-energy/meridian/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Meridian")

	// Wire database, repositories, run service and scheduled jobs.
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		ResultsDB:  container.ResultsDB,
		Repository: container.ResultsRepo,
		RunService: container.RunService,
		Hub:        container.Hub,
	})

	container.Scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stops the scheduler, waits for active runs and closes the database.
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Cleanup failed")
	}

	log.Info().Msg("Meridian stopped")
}
