// Package main provides the entrypoint for the long-running collection worker.
// It serves the operational API and, when configured, consumes run triggers
// from Pub/Sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/breatheroute/aqcollect/internal/api"
	"github.com/breatheroute/aqcollect/internal/api/middleware"
	"github.com/breatheroute/aqcollect/internal/app"
	"github.com/breatheroute/aqcollect/internal/config"
	"github.com/breatheroute/aqcollect/internal/logging"
	"github.com/breatheroute/aqcollect/internal/telemetry"
	"github.com/breatheroute/aqcollect/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aqcollect-worker"

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
		Str("env", cfg.Env).
		Msg("starting collection worker")

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuration rejected")
		return 1
	}

	// Cancelled on SIGINT/SIGTERM; in-flight runs observe it.
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

	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Warn().Err(err).Msg("http metrics unavailable")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		Logger:      log,
		Metrics:     metrics,
		StatusPath:  cfg.StatusFile,
		Registry:    pipeline.Registry,
		Runner:      pipeline.Job,
		BaseContext: ctx,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	receiving := make(chan struct{})
	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Job:              pipeline.Job,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("pubsub trigger disabled")
			close(receiving)
		} else {
			defer handler.Close()
			go func() {
				defer close(receiving)
				if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("pubsub receive stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("pubsub trigger not configured, runs start over HTTP only")
		close(receiving)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down worker")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		exitCode = 1
	}

	// Interrupt any in-flight run and let it record its status before the
	// deferred closers run.
	stop()
	select {
	case <-receiving:
	case <-shutdownCtx.Done():
		log.Warn().Msg("pubsub receive did not stop before shutdown timeout")
	}
	if err := pipeline.Job.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("collection run did not finish before shutdown timeout")
		exitCode = 1
	}

	log.Info().Msg("worker stopped")
	return exitCode
}
