package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/aqcollect/internal/airquality"
	"github.com/breatheroute/aqcollect/internal/history"
	"github.com/breatheroute/aqcollect/internal/mirror"
	"github.com/breatheroute/aqcollect/internal/status"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("collection run already in progress")

// Phase names a step of a collection run.
type Phase string

const (
	PhaseStart        Phase = "START"
	PhaseKeyCheck     Phase = "KEY_CHECK"
	PhaseFetchAll     Phase = "FETCH_ALL"
	PhaseValidate     Phase = "VALIDATE"
	PhaseMergePersist Phase = "MERGE_PERSIST"
	PhaseReport       Phase = "REPORT"
	PhaseEnd          Phase = "END"
)

const logTimeLayout = "2006-01-02 15:04:05"

// Fetcher retrieves readings from the upstream provider.
type Fetcher interface {
	ValidateKey(ctx context.Context, probe airquality.Location) error
	FetchReading(ctx context.Context, loc airquality.Location) (*airquality.Reading, error)
}

// Persister merges readings into durable storage.
type Persister interface {
	Persist(ctx context.Context, readings []airquality.Reading) (*history.Dataset, error)
	Count() int
}

// Reporter records run outcomes. It must not fail the run.
type Reporter interface {
	Report(s status.RunStatus)
}

// CollectJobConfig holds configuration for creating a CollectJob.
type CollectJobConfig struct {
	Config   CollectConfig
	Fetcher  Fetcher
	Store    Persister
	Reporter Reporter

	// Sink receives the dataset after a successful write (optional).
	Sink mirror.Sink

	// Metrics and Tracer are optional; nil uses the global providers.
	Metrics *Metrics
	Tracer  trace.Tracer

	Logger zerolog.Logger

	// Now and NewRunID are optional hooks for tests.
	Now      func() time.Time
	NewRunID func() string
}

// CollectJob runs the collection pipeline. At most one run executes at a time.
type CollectJob struct {
	config   CollectConfig
	fetcher  Fetcher
	store    Persister
	reporter Reporter
	sink     mirror.Sink
	metrics  *Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
	newRunID func() string

	runMu   sync.Mutex
	running atomic.Bool

	lastMu sync.RWMutex
	last   *RunResult
}

// RunResult contains the outcome of a collection run.
type RunResult struct {
	RunID     string
	Status    status.Outcome
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// RecordsCollected is the number of validated readings this run.
	RecordsCollected int

	// TotalRecords is the number of rows on file after the run.
	TotalRecords int

	// FailedPhase is the phase that failed the run, empty on success.
	FailedPhase Phase

	Errors []string
}

// Succeeded reports whether the run completed with SUCCESS.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status == status.OutcomeSuccess
}

// ExitCode returns the process exit code for the run: 0 on success, 1 otherwise.
func (r *RunResult) ExitCode() int {
	if r.Succeeded() {
		return 0
	}
	return 1
}

// RunStatus converts the result to the persisted status snapshot.
func (r *RunResult) RunStatus() status.RunStatus {
	return status.RunStatus{
		RunID:              r.RunID,
		LastRun:            r.EndTime.Format(history.TimestampLayout),
		Status:             r.Status,
		RecordsCollected:   r.RecordsCollected,
		Errors:             r.Errors,
		TotalRecordsInFile: r.TotalRecords,
		DurationSeconds:    r.Duration.Seconds(),
	}
}

func (r *RunResult) fail(phase Phase, msg string) {
	r.Status = status.OutcomeFailed
	if r.FailedPhase == "" {
		r.FailedPhase = phase
	}
	r.Errors = append(r.Errors, msg)
}

// NewCollectJob creates a new collection job.
func NewCollectJob(cfg CollectJobConfig) *CollectJob {
	config := cfg.Config
	if len(config.Locations) == 0 {
		config.Locations = DefaultLocations()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = mirror.Nop{}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		if m, err := NewMetrics(nil); err == nil {
			metrics = m
		} else {
			cfg.Logger.Warn().Err(err).Msg("collection metrics unavailable")
		}
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	newRunID := cfg.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	return &CollectJob{
		config:   config,
		fetcher:  cfg.Fetcher,
		store:    cfg.Store,
		reporter: cfg.Reporter,
		sink:     sink,
		metrics:  metrics,
		tracer:   tracer,
		logger:   cfg.Logger,
		now:      now,
		newRunID: newRunID,
	}
}

// Locations returns the configured locations.
func (j *CollectJob) Locations() []airquality.Location {
	return j.config.Locations
}

// Run executes one collection run, waiting for any active run to finish.
func (j *CollectJob) Run(ctx context.Context) *RunResult {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	return j.execute(ctx, j.newRunID())
}

// TryRun executes one collection run, or returns ErrRunInProgress when a run
// is already active.
func (j *CollectJob) TryRun(ctx context.Context) (*RunResult, error) {
	if !j.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	return j.execute(ctx, j.newRunID()), nil
}

// TryStart starts a run in the background and returns its run ID, or
// ErrRunInProgress when a run is already active. ctx must outlive the caller's
// request; cancelling it interrupts the run.
func (j *CollectJob) TryStart(ctx context.Context) (string, error) {
	if !j.runMu.TryLock() {
		return "", ErrRunInProgress
	}

	runID := j.newRunID()
	go func() {
		defer j.runMu.Unlock()
		j.execute(ctx, runID)
	}()

	return runID, nil
}

// Wait blocks until no run holds the job, or ctx is done.
func (j *CollectJob) Wait(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		j.runMu.Lock()
		j.runMu.Unlock() //nolint:staticcheck // lock only observes idleness
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a run is executing.
func (j *CollectJob) Running() bool {
	return j.running.Load()
}

// LastResult returns the most recent completed run, or nil.
func (j *CollectJob) LastResult() *RunResult {
	j.lastMu.RLock()
	defer j.lastMu.RUnlock()
	return j.last
}

func (j *CollectJob) execute(ctx context.Context, runID string) *RunResult {
	j.running.Store(true)
	defer j.running.Store(false)

	start := j.now()
	result := &RunResult{
		RunID:     runID,
		Status:    status.OutcomeFailed,
		StartTime: start,
	}

	ctx, span := j.tracer.Start(ctx, "collect.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("locations", len(j.config.Locations)),
	))
	defer span.End()

	logger := j.logger.With().Str("run_id", runID).Logger()
	logger.Info().
		Str("started_at", start.Format(logTimeLayout)).
		Int("locations", len(j.config.Locations)).
		Msg("collection started")

	var ds *history.Dataset
	if j.checkKey(ctx, logger, result) {
		fetched := j.fetchAll(ctx, logger, result)
		if result.FailedPhase == "" {
			readings := j.validate(ctx, logger, fetched, result)
			ds = j.mergePersist(ctx, logger, readings, result)
		}
	}

	if ds != nil {
		result.TotalRecords = ds.Len()
		j.metrics.RecordDatasetRows(ctx, ds.Len())
		j.forward(ctx, logger, ds)
	} else {
		result.TotalRecords = j.store.Count()
	}

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(start)
	if result.Errors == nil {
		result.Errors = []string{}
	}

	j.report(ctx, logger, result)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("records_collected", result.RecordsCollected),
	)
	if !result.Succeeded() {
		span.SetStatus(codes.Error, string(result.FailedPhase))
	}
	j.metrics.RecordRun(ctx, result.Status, result.Duration)

	j.lastMu.Lock()
	j.last = result
	j.lastMu.Unlock()

	return result
}

// checkKey reports whether collection may proceed. Only a rejected key stops
// the run; any other probe failure is logged and ignored.
func (j *CollectJob) checkKey(ctx context.Context, logger zerolog.Logger, result *RunResult) bool {
	ctx, span := j.startPhase(ctx, PhaseKeyCheck)
	defer span.End()

	err := j.fetcher.ValidateKey(ctx, j.config.Probe())
	switch {
	case err == nil:
		logger.Info().Msg("API key validated successfully")
		return true
	case errors.Is(err, airquality.ErrUnauthorized):
		logger.Error().Err(err).Msg("invalid API key")
		span.SetStatus(codes.Error, "unauthorized")
		result.fail(PhaseKeyCheck, "API key validation failed")
		return false
	case ctx.Err() != nil:
		logger.Warn().Msg("collection interrupted")
		span.SetStatus(codes.Error, "interrupted")
		result.fail(PhaseKeyCheck, "collection interrupted")
		return false
	default:
		logger.Warn().Err(err).Msg("API key check inconclusive, continuing")
		return true
	}
}

type fetched struct {
	location airquality.Location
	reading  *airquality.Reading
}

func (j *CollectJob) fetchAll(ctx context.Context, logger zerolog.Logger, result *RunResult) []fetched {
	ctx, span := j.startPhase(ctx, PhaseFetchAll)
	defer span.End()

	var out []fetched
	for _, loc := range j.config.Locations {
		reading, err := j.fetcher.FetchReading(ctx, loc)
		if err == nil {
			out = append(out, fetched{location: loc, reading: reading})
			continue
		}

		if ctx.Err() != nil {
			logger.Warn().Str("location", loc.Name).Msg("collection interrupted")
			span.SetStatus(codes.Error, "interrupted")
			result.fail(PhaseFetchAll, "collection interrupted")
			return nil
		}

		kind := airquality.Classify(err)
		j.metrics.RecordFetchFailure(ctx, loc.Name, kind)

		if errors.Is(err, airquality.ErrUnauthorized) {
			logger.Error().Err(err).Str("location", loc.Name).Msg("authentication failed, aborting collection")
			span.SetStatus(codes.Error, "unauthorized")
			result.fail(PhaseFetchAll, fmt.Sprintf("Authentication failed for %s", loc.Name))
			return nil
		}

		logger.Error().Err(err).Str("location", loc.Name).Str("kind", string(kind)).Msg("failed to fetch location")
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to fetch data for %s", loc.Name))
	}

	span.SetAttributes(attribute.Int("fetched", len(out)))
	return out
}

func (j *CollectJob) validate(ctx context.Context, logger zerolog.Logger, in []fetched, result *RunResult) []airquality.Reading {
	ctx, span := j.startPhase(ctx, PhaseValidate)
	defer span.End()

	readings := make([]airquality.Reading, 0, len(in))
	for _, f := range in {
		if err := f.reading.Validate(); err != nil {
			field := ""
			var verr *airquality.ValidationError
			if errors.As(err, &verr) {
				field = verr.Field
			}
			j.metrics.RecordValidationError(ctx, f.location.Name, field)

			msg := fmt.Sprintf("Invalid data received for %s: %v", f.location.Name, err)
			logger.Error().Str("location", f.location.Name).Err(err).Msg("invalid data received")
			result.Errors = append(result.Errors, msg)
			continue
		}

		j.metrics.RecordReading(ctx, f.location.Name)
		readings = append(readings, *f.reading)
	}

	span.SetAttributes(attribute.Int("valid", len(readings)))
	return readings
}

func (j *CollectJob) mergePersist(ctx context.Context, logger zerolog.Logger, readings []airquality.Reading, result *RunResult) *history.Dataset {
	if len(readings) == 0 {
		logger.Error().Msg("no data collected from any location")
		result.fail(PhaseValidate, "No valid data collected")
		return nil
	}
	result.RecordsCollected = len(readings)

	ctx, span := j.startPhase(ctx, PhaseMergePersist)
	defer span.End()

	ds, err := j.store.Persist(ctx, readings)
	if err != nil {
		logger.Error().Err(err).Msg("failed to save data")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		msg := fmt.Sprintf("Data save failed: %v", err)
		if errors.Is(err, context.Canceled) {
			msg = "collection interrupted"
		}
		result.fail(PhaseMergePersist, msg)
		return nil
	}

	result.Status = status.OutcomeSuccess
	return ds
}

// forward mirrors the dataset to the configured sink. Failures are logged only.
func (j *CollectJob) forward(ctx context.Context, logger zerolog.Logger, ds *history.Dataset) {
	ctx, span := j.tracer.Start(ctx, "collect.mirror", trace.WithAttributes(
		attribute.String("sink", j.sink.Name()),
	))
	defer span.End()

	if err := j.sink.Replace(ctx, ds); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("sink", j.sink.Name()).Msg("failed to update mirror")
		return
	}
	logger.Info().Str("sink", j.sink.Name()).Int("rows", ds.Len()).Msg("mirror updated")
}

func (j *CollectJob) report(ctx context.Context, logger zerolog.Logger, result *RunResult) {
	_, span := j.startPhase(ctx, PhaseReport)
	defer span.End()

	if result.Succeeded() {
		logger.Info().
			Int("records_collected", result.RecordsCollected).
			Int("total_records", result.TotalRecords).
			Float64("duration_seconds", result.Duration.Seconds()).
			Int("errors", len(result.Errors)).
			Msg("collection successful")
	} else {
		logger.Error().
			Str("failed_phase", string(result.FailedPhase)).
			Int("records_collected", result.RecordsCollected).
			Strs("errors", result.Errors).
			Float64("duration_seconds", result.Duration.Seconds()).
			Msg("collection failed")
	}

	j.reporter.Report(result.RunStatus())
}

func (j *CollectJob) startPhase(ctx context.Context, phase Phase) (context.Context, trace.Span) {
	return j.tracer.Start(ctx, "collect."+string(phase))
}
