// Package jobs owns the lifecycle of optimization jobs: submission,
// asynchronous execution, cancellation, status and result retrieval.
package jobs

import (
	"fmt"
	"time"

	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/encoding"
)

// JobState is the externally visible lifecycle state of a job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateCancelled JobState = "cancelled"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state is final
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateCancelled, JobStateFailed:
		return true
	}
	return false
}

// Job is the externally visible view of one optimization job. Snapshots
// returned by the controller are copies and safe to retain.
type Job struct {
	ID            string    `json:"id"`
	State         JobState  `json:"state"`
	PreferredTier string    `json:"preferred_tier"`
	Assets        int       `json:"assets"`
	Budget        int       `json:"budget"`
	SubmittedAt   time.Time `json:"submitted_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`

	// Latest progress snapshot, updated once per optimizer iteration.
	Iteration     int     `json:"iteration"`
	BestObjective float64 `json:"best_objective,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the final solution payload of a terminal job. Cancelled jobs
// carry the best solution found before cancellation, which is empty when no
// iteration completed.
type Result struct {
	JobID          string             `json:"job_id"`
	Termination    string             `json:"termination"`
	Bitstring      string             `json:"bitstring"`
	SelectedAssets []string           `json:"selected_assets"`
	Weights        map[string]float64 `json:"weights"`
	Objective      float64            `json:"objective"`
	Iterations     int                `json:"iterations"`
	TierTrace      []string           `json:"tier_trace"`
	EstimatedCost  float64            `json:"estimated_cost"`
	Duration       time.Duration      `json:"duration_ns"`
}

// buildSelection resolves a bitstring into the selected asset names and an
// equal-weight allocation over them.
func buildSelection(spec *encoding.PortfolioSpec, bitstring string) ([]string, map[string]float64) {
	selected := make([]string, 0, spec.Budget)
	for i, c := range bitstring {
		if c == '1' && i < len(spec.Assets) {
			selected = append(selected, spec.Assets[i])
		}
	}

	weights := make(map[string]float64, len(selected))
	if len(selected) > 0 {
		w := 1.0 / float64(len(selected))
		for _, asset := range selected {
			weights[asset] = w
		}
	}
	return selected, weights
}

func tierNames(trace []backends.Tier) []string {
	names := make([]string, len(trace))
	for i, tier := range trace {
		names[i] = tier.String()
	}
	return names
}

// JobNotCompleteError reports a result request for a job that has not
// reached a terminal state yet.
type JobNotCompleteError struct {
	JobID string
	State JobState
}

// Error implements the error interface
func (e *JobNotCompleteError) Error() string {
	return fmt.Sprintf("job %s is not complete (state %s)", e.JobID, e.State)
}

// JobFailedError reports a result request for a job whose run failed.
type JobFailedError struct {
	JobID  string
	Reason string
}

// Error implements the error interface
func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// UnknownJobError reports a reference to a job ID the controller has never
// seen or has already removed.
type UnknownJobError struct {
	JobID string
}

// Error implements the error interface
func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown job %s", e.JobID)
}
