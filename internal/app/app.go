// Package app assembles the collection pipeline from configuration.
package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"

	"github.com/breatheroute/aqcollect/internal/airquality/openweathermap"
	"github.com/breatheroute/aqcollect/internal/config"
	"github.com/breatheroute/aqcollect/internal/database"
	"github.com/breatheroute/aqcollect/internal/history"
	"github.com/breatheroute/aqcollect/internal/mirror"
	"github.com/breatheroute/aqcollect/internal/mirror/postgres"
	"github.com/breatheroute/aqcollect/internal/mirror/sheets"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
	"github.com/breatheroute/aqcollect/internal/status"
	"github.com/breatheroute/aqcollect/internal/worker"
)

// Options holds the inputs for assembling the pipeline.
type Options struct {
	Config *config.Config
	Logger zerolog.Logger

	// Meter and Tracer are optional; nil uses the global providers.
	Meter  metric.Meter
	Tracer trace.Tracer

	// Retry overrides the fetch retry policy (optional).
	Retry *resilience.RetryPolicy

	// SheetsOptions are extra client options for the Sheets sink (optional).
	SheetsOptions []option.ClientOption
}

// App is the assembled collection pipeline.
type App struct {
	Job      *worker.CollectJob
	Registry *resilience.Registry
	Sinks    *mirror.Multi

	closers []func()
}

// New builds the pipeline. Mirror sinks that cannot be initialised are
// logged and left out; they never prevent collection.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	registry := resilience.NewRegistry()
	clientCfg := resilience.DefaultClientConfig(openweathermap.ProviderName)
	clientCfg.Registry = registry
	httpClient := resilience.NewClient(clientCfg)

	fetcher := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
		Retry:      opts.Retry,
		Logger:     logger,
	})

	store := history.NewStore(history.StoreConfig{
		Path:       cfg.LocalOutput,
		MirrorPath: cfg.CloudOutput,
		Logger:     logger.With().Str("component", "store").Logger(),
	})

	reporter := status.NewReporter(cfg.StatusFile, logger)

	a := &App{Registry: registry}
	a.Sinks = mirror.NewMulti(logger, a.sinks(ctx, cfg, opts)...)

	metrics, err := worker.NewMetrics(opts.Meter)
	if err != nil {
		logger.Warn().Err(err).Msg("collection metrics unavailable")
	}

	a.Job = worker.NewCollectJob(worker.CollectJobConfig{
		Config:   worker.CollectConfig{Locations: cfg.Locations},
		Fetcher:  fetcher,
		Store:    store,
		Reporter: reporter,
		Sink:     a.Sinks,
		Metrics:  metrics,
		Tracer:   opts.Tracer,
		Logger:   logger,
	})

	return a, nil
}

func (a *App) sinks(ctx context.Context, cfg *config.Config, opts Options) []mirror.Sink {
	logger := opts.Logger
	var sinks []mirror.Sink

	if cfg.Sheets.Enabled() {
		sink, err := sheets.New(ctx, sheets.Config{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			Worksheet:       cfg.Sheets.Worksheet,
			ClientOptions:   opts.SheetsOptions,
			Logger:          logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("google sheets mirror disabled")
		} else {
			sinks = append(sinks, sink)
			logger.Info().Str("worksheet", cfg.Sheets.Worksheet).Msg("google sheets mirror enabled")
		}
	}

	if cfg.Postgres.Enabled {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			logger.Error().Err(err).Msg("postgres mirror disabled")
			return sinks
		}
		a.closers = append(a.closers, pool.Close)

		sink, err := postgres.New(pool, cfg.Postgres.Table, logger)
		if err != nil {
			logger.Error().Err(err).Msg("postgres mirror disabled")
			return sinks
		}
		sinks = append(sinks, sink)
		logger.Info().
			Str("host", dbConfig.Host).
			Str("database", dbConfig.Database).
			Str("table", cfg.Postgres.Table).
			Msg("postgres mirror enabled")
	}

	return sinks
}

// Close releases resources held by the pipeline.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
