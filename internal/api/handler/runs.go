package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqcollect/internal/api/models"
	"github.com/breatheroute/aqcollect/internal/api/response"
	"github.com/breatheroute/aqcollect/internal/worker"
)

// RunTrigger starts collection runs in the background.
type RunTrigger interface {
	TryStart(ctx context.Context) (string, error)
}

// RunsHandler handles manual collection triggers.
type RunsHandler struct {
	trigger RunTrigger

	// baseCtx outlives individual requests; cancelling it interrupts runs.
	baseCtx context.Context
	logger  zerolog.Logger
}

// NewRunsHandler creates a new RunsHandler. Runs started through it are
// bound to baseCtx, not to the triggering request.
func NewRunsHandler(baseCtx context.Context, trigger RunTrigger, logger zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		trigger: trigger,
		baseCtx: baseCtx,
		logger:  logger,
	}
}

// StartRun handles POST /v1/runs.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		response.ServiceUnavailable(w, r, "collection is not configured")
		return
	}

	runID, err := h.trigger.TryStart(h.baseCtx)
	if errors.Is(err, worker.ErrRunInProgress) {
		response.Conflict(w, r, err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to start collection run")
		response.InternalError(w, r, "failed to start collection run")
		return
	}

	h.logger.Info().Str("run_id", runID).Msg("collection run triggered")

	response.Accepted(w, r, "/v1/ops/status", models.RunAccepted{
		RunID:     runID,
		StartedAt: models.Timestamp(time.Now()),
	})
}
