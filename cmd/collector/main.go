// Package main provides the entrypoint for a single air quality collection run.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breatheroute/aqcollect/internal/app"
	"github.com/breatheroute/aqcollect/internal/config"
	"github.com/breatheroute/aqcollect/internal/logging"
	"github.com/breatheroute/aqcollect/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aqcollect-collector"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	log, closeLog, err := logging.New(logging.Config{
		Service: serviceName,
		Version: Version,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		log.Warn().Err(err).Str("file", cfg.LogFile).Msg("logging to stdout only")
	}
	defer func() { _ = closeLog() }()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting air quality collection")

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuration rejected")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pipeline, err := app.New(ctx, app.Options{
		Config: cfg,
		Logger: log,
		Meter:  tp.Meter,
		Tracer: tp.Tracer,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble collector")
		return 1
	}
	defer pipeline.Close()

	result := pipeline.Job.Run(ctx)

	log.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Int("records_collected", result.RecordsCollected).
		Int("total_records", result.TotalRecords).
		Msg("collection finished")

	return result.ExitCode()
}
