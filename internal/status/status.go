// Package status records the outcome of the most recent collection run.
package status

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/pkg/atomicfile"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// RunStatus is the snapshot written after every run.
type RunStatus struct {
	RunID              string   `json:"run_id"`
	LastRun            string   `json:"last_run"`
	Status             Outcome  `json:"status"`
	RecordsCollected   int      `json:"records_collected"`
	Errors             []string `json:"errors"`
	TotalRecordsInFile int      `json:"total_records_in_file"`
	DurationSeconds    float64  `json:"duration_seconds"`
}

// Reporter writes run status snapshots to a JSON file.
type Reporter struct {
	path   string
	logger zerolog.Logger
}

// NewReporter creates a reporter writing to path.
func NewReporter(path string, logger zerolog.Logger) *Reporter {
	return &Reporter{path: path, logger: logger}
}

// Path returns the status file path.
func (r *Reporter) Path() string {
	return r.path
}

// Report overwrites the status file with s. Failures are logged, never returned.
func (r *Reporter) Report(s RunStatus) {
	if s.Errors == nil {
		s.Errors = []string{}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		r.logger.Error().Err(err).Msg("error encoding status")
		return
	}

	if err := atomicfile.WriteBytes(r.path, append(data, '\n'), 0o644); err != nil {
		r.logger.Error().Err(err).Str("path", r.path).Msg("error saving status")
		return
	}

	r.logger.Info().Str("status", string(s.Status)).Str("path", r.path).Msg("status saved")
}

// Read loads the last status snapshot from path.
func Read(path string) (*RunStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s RunStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding status file: %w", err)
	}
	return &s, nil
}
