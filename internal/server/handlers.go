package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/encoding"
	"github.com/quantfolio/qpo/internal/modules/jobs"
	"github.com/quantfolio/qpo/internal/modules/qaoa"
)

// optimizeRequest is the submission payload for POST /api/optimize.
type optimizeRequest struct {
	Assets          []string               `json:"assets"`
	ExpectedReturns []float64              `json:"expected_returns"`
	Covariance      [][]float64            `json:"covariance"`
	Budget          int                    `json:"budget"`
	RiskAversion    float64                `json:"risk_aversion"`
	SectorLimits    []encoding.SectorLimit `json:"sector_limits,omitempty"`

	PreferredTier string `json:"preferred_tier,omitempty"`
	Depth         int    `json:"depth,omitempty"`
	Shots         int    `json:"shots,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	Seed          *int64 `json:"seed,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "qpo",
	})
}

// handleOptimize handles POST /api/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	preferred := backends.TierHardware
	if req.PreferredTier != "" {
		tier, err := backends.ParseTier(req.PreferredTier)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		preferred = tier
	}

	spec := &encoding.PortfolioSpec{
		Assets:          req.Assets,
		ExpectedReturns: req.ExpectedReturns,
		Covariance:      req.Covariance,
		Budget:          req.Budget,
		RiskAversion:    req.RiskAversion,
		SectorLimits:    req.SectorLimits,
	}

	jobID, err := s.controller.Submit(spec, jobs.SubmitOptions{
		PreferredTier: preferred,
		Params: qaoa.Params{
			Depth:         req.Depth,
			Shots:         req.Shots,
			MaxIterations: req.MaxIterations,
			Seed:          req.Seed,
		},
	})
	if err != nil {
		s.writeJobError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
	})
}

// handleListJobs handles GET /api/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": s.controller.List(),
	})
}

// handleJobStatus handles GET /api/jobs/{jobID}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.controller.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleCancelJob handles POST /api/jobs/{jobID}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.controller.Cancel(jobID); err != nil {
		s.writeJobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    jobID,
		"cancelled": true,
	})
}

// handleJobResult handles GET /api/jobs/{jobID}/result
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.controller.Result(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleRemoveJob handles DELETE /api/jobs/{jobID}
func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Remove(chi.URLParam(r, "jobID")); err != nil {
		s.writeJobError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListBackends handles GET /api/backends
func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backends": s.registry.Statuses(),
	})
}

// handleProbeBackends handles POST /api/backends/probe
func (s *Server) handleProbeBackends(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s.registry.ProbeAll(ctx)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backends": s.registry.Statuses(),
	})
}

// writeJobError maps controller errors onto HTTP statuses.
func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	var invalidSpec *encoding.InvalidSpecError
	var unknown *jobs.UnknownJobError
	var notComplete *jobs.JobNotCompleteError
	var failed *jobs.JobFailedError

	switch {
	case errors.As(err, &invalidSpec):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unknown):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &notComplete):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &failed):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Msg("Unhandled controller error")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}
