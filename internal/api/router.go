// Package api provides the collector's operational HTTP API.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/api/handler"
	"github.com/breatheroute/aqcollect/internal/api/middleware"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
)

// Runner starts collection runs and reports whether one is active.
type Runner interface {
	handler.RunTrigger
	handler.RunState
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version string
	Logger  zerolog.Logger
	Metrics *middleware.Metrics

	// StatusPath is the run status file.
	StatusPath string

	// Registry supplies upstream provider health (optional).
	Registry *resilience.Registry

	// Runner is the collection job (optional; POST /v1/runs answers 503 without it).
	Runner Runner

	// BaseContext bounds runs started over HTTP. Default: context.Background()
	BaseContext context.Context

	// TriggerRateLimit overrides middleware.RunTriggerRateLimit (optional).
	TriggerRateLimit *middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	triggerLimit := middleware.RunTriggerRateLimit
	if cfg.TriggerRateLimit != nil {
		triggerLimit = *cfg.TriggerRateLimit
	}

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:    cfg.Version,
		StatusPath: cfg.StatusPath,
		Registry:   cfg.Registry,
		Runs:       runState(cfg.Runner),
	})

	var trigger handler.RunTrigger
	if cfg.Runner != nil {
		trigger = cfg.Runner
	}
	runsHandler := handler.NewRunsHandler(baseCtx, trigger, cfg.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.OpsRateLimit))
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/status", opsHandler.RunStatus)
		})

		r.With(middleware.RateLimitByIP(triggerLimit)).Post("/runs", runsHandler.StartRun)
	})

	return r
}

func runState(runner Runner) handler.RunState {
	if runner == nil {
		return nil
	}
	return runner
}
