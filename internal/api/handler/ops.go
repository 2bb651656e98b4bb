// Package handler provides HTTP handlers for the collector's ops API.
package handler

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/breatheroute/aqcollect/internal/api/models"
	"github.com/breatheroute/aqcollect/internal/api/response"
	"github.com/breatheroute/aqcollect/internal/provider/resilience"
	"github.com/breatheroute/aqcollect/internal/status"
)

// RunState reports whether a collection run is executing.
type RunState interface {
	Running() bool
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version string

	// StatusPath is the run status file served by GET /v1/ops/status.
	StatusPath string

	// Registry supplies upstream provider health (optional).
	Registry *resilience.Registry

	// Runs reports the run lock state (optional).
	Runs RunState
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	statusPath string
	registry   *resilience.Registry
	runs       RunState
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:    cfg.Version,
		statusPath: cfg.StatusPath,
		registry:   cfg.Registry,
		runs:       cfg.Runs,
	}
}

// HealthCheck handles GET /v1/ops/health. The process is live whenever it
// answers; an open upstream circuit degrades the reported status.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Version:   h.version,
		Providers: []models.ProviderStatus{},
	}

	if h.runs != nil {
		health.RunInProgress = h.runs.Running()
	}

	if h.registry != nil {
		for _, p := range h.registry.GetAllHealth() {
			ps := providerStatus(p)
			if ps.Status != models.HealthStatusOK {
				health.Status = models.HealthStatusDegraded
			}
			health.Providers = append(health.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}

// RunStatus handles GET /v1/ops/status and serves the last run status.
func (h *OpsHandler) RunStatus(w http.ResponseWriter, r *http.Request) {
	st, err := status.Read(h.statusPath)
	if errors.Is(err, os.ErrNotExist) {
		response.NotFound(w, r, "no collection run has been recorded yet")
		return
	}
	if err != nil {
		response.InternalError(w, r, "run status is unreadable")
		return
	}

	response.JSON(w, r, http.StatusOK, st)
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     p.Name,
		Status:       models.HealthStatusOK,
		CircuitState: p.CircuitState.String(),
	}

	switch p.Status() {
	case "degraded":
		ps.Status = models.HealthStatusDegraded
	case "unhealthy":
		ps.Status = models.HealthStatusFail
	}

	if p.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*p.LastSuccessAt)
	}
	if p.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*p.LastFailureAt)
	}
	if p.LastError != "" {
		msg := p.LastError
		ps.Message = &msg
	}

	return ps
}
