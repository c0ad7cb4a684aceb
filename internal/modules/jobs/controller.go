package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfolio/qpo/internal/events"
	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/encoding"
	"github.com/quantfolio/qpo/internal/modules/qaoa"
)

const moduleName = "jobs"

// SubmitOptions tunes one submission.
type SubmitOptions struct {
	PreferredTier backends.Tier
	Params        qaoa.Params
}

// Controller coordinates optimization jobs. Encoding happens synchronously
// at submission so malformed specs fail fast; the optimization loop runs on
// its own goroutine per job (or inline in synchronous mode). Completed jobs
// are retained in memory until removed.
type Controller struct {
	encoder   *encoding.Encoder
	optimizer *qaoa.Optimizer
	events    *events.Manager
	syncMode  bool
	log       zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*jobEntry
}

// jobEntry pairs the mutable job record with its cancellation handle.
// entry.mu guards job, spec, result and err; the controller map lock is
// never held while an entry lock is.
type jobEntry struct {
	mu     sync.RWMutex
	job    Job
	spec   *encoding.PortfolioSpec
	result *Result
	cancel context.CancelFunc
}

// NewController creates a job controller
func NewController(encoder *encoding.Encoder, optimizer *qaoa.Optimizer, eventManager *events.Manager, syncMode bool, log zerolog.Logger) *Controller {
	return &Controller{
		encoder:   encoder,
		optimizer: optimizer,
		events:    eventManager,
		syncMode:  syncMode,
		log:       log.With().Str("component", "job_controller").Logger(),
		entries:   make(map[string]*jobEntry),
	}
}

// Submit encodes the spec and starts an optimization job. Encoding failures
// surface immediately without creating a job. The returned job ID is unique
// per submission, so there is never more than one loop per ID.
func (c *Controller) Submit(spec *encoding.PortfolioSpec, opts SubmitOptions) (string, error) {
	problem, err := c.encoder.Encode(spec)
	if err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	entry := &jobEntry{
		job: Job{
			ID:            jobID,
			State:         JobStatePending,
			PreferredTier: opts.PreferredTier.String(),
			Assets:        len(spec.Assets),
			Budget:        spec.Budget,
			SubmittedAt:   time.Now(),
		},
		spec:   spec,
		cancel: cancel,
	}

	c.mu.Lock()
	c.entries[jobID] = entry
	c.mu.Unlock()

	c.log.Info().
		Str("job_id", jobID).
		Int("assets", len(spec.Assets)).
		Int("budget", spec.Budget).
		Str("preferred_tier", opts.PreferredTier.String()).
		Bool("sync", c.syncMode).
		Msg("Job submitted")

	c.emitTyped(events.OptimizationStarted, &events.OptimizationStartedData{
		JobID:         jobID,
		Assets:        len(spec.Assets),
		Budget:        spec.Budget,
		PreferredTier: opts.PreferredTier.String(),
	})

	if c.syncMode {
		c.run(ctx, entry, problem, opts)
	} else {
		go c.run(ctx, entry, problem, opts)
	}

	return jobID, nil
}

// run drives one job to a terminal state. A terminal event is always
// emitted, whatever path the run takes.
func (c *Controller) run(ctx context.Context, entry *jobEntry, problem *encoding.QUBOProblem, opts SubmitOptions) {
	entry.mu.Lock()
	entry.job.State = JobStateRunning
	entry.job.StartedAt = time.Now()
	jobID := entry.job.ID
	entry.mu.Unlock()

	sink := qaoa.ProgressFunc(func(p qaoa.Progress) {
		entry.mu.Lock()
		entry.job.Iteration = p.Iteration
		entry.job.BestObjective = p.BestObjective
		entry.mu.Unlock()

		c.emitTyped(events.OptimizationProgress, &events.OptimizationProgressData{
			JobID:         jobID,
			Iteration:     p.Iteration,
			BestObjective: p.BestObjective,
			BackendTier:   p.Tier.String(),
			State:         string(p.State),
		})
	})

	runResult, err := c.optimizer.Run(ctx, problem, opts.PreferredTier, opts.Params, sink)

	entry.mu.Lock()
	entry.job.FinishedAt = time.Now()
	duration := entry.job.FinishedAt.Sub(entry.job.StartedAt)

	if err != nil {
		entry.job.State = JobStateFailed
		entry.job.Error = err.Error()
		entry.mu.Unlock()

		c.log.Error().Err(err).Str("job_id", jobID).Msg("Job failed")
		c.emitTyped(events.OptimizationFailed, &events.OptimizationFailedData{
			JobID:  jobID,
			Reason: err.Error(),
		})
		return
	}

	selected, weights := buildSelection(entry.spec, runResult.BestBitstring)

	// A run cancelled before its first iteration completes carries no
	// solution; its objective stays zero alongside the empty bitstring so the
	// result is well-defined (and JSON-encodable, unlike the loop's +Inf
	// sentinel).
	objective := runResult.BestObjective
	if runResult.Iterations == 0 {
		objective = 0
	}

	result := &Result{
		JobID:          jobID,
		Termination:    string(runResult.State),
		Bitstring:      runResult.BestBitstring,
		SelectedAssets: selected,
		Weights:        weights,
		Objective:      objective,
		Iterations:     runResult.Iterations,
		TierTrace:      tierNames(runResult.TierTrace),
		EstimatedCost:  runResult.EstimatedCost,
		Duration:       duration,
	}
	entry.result = result
	entry.job.Iteration = runResult.Iterations
	if runResult.Iterations > 0 {
		entry.job.BestObjective = runResult.BestObjective
	}

	if runResult.State == qaoa.StateCancelled {
		entry.job.State = JobStateCancelled
		entry.mu.Unlock()

		c.log.Info().Str("job_id", jobID).Int("iterations", runResult.Iterations).Msg("Job cancelled")
		c.emitTyped(events.OptimizationCancelled, &events.OptimizationCancelledData{
			JobID:      jobID,
			Iterations: runResult.Iterations,
		})
		return
	}

	entry.job.State = JobStateCompleted
	entry.mu.Unlock()

	c.log.Info().
		Str("job_id", jobID).
		Float64("objective", runResult.BestObjective).
		Int("iterations", runResult.Iterations).
		Str("termination", string(runResult.State)).
		Msg("Job completed")
	c.emitTyped(events.OptimizationCompleted, &events.OptimizationCompletedData{
		JobID:          jobID,
		Objective:      runResult.BestObjective,
		Iterations:     runResult.Iterations,
		Termination:    string(runResult.State),
		EstimatedCost:  runResult.EstimatedCost,
		SelectedAssets: len(selected),
	})
}

// Cancel requests cancellation of a job. The optimizer observes the request
// between iterations; terminal jobs are left untouched.
func (c *Controller) Cancel(jobID string) error {
	entry, err := c.entry(jobID)
	if err != nil {
		return err
	}

	entry.mu.RLock()
	terminal := entry.job.State.Terminal()
	entry.mu.RUnlock()
	if terminal {
		return nil
	}

	c.log.Info().Str("job_id", jobID).Msg("Cancellation requested")
	entry.cancel()
	return nil
}

// Status returns a snapshot of the job
func (c *Controller) Status(jobID string) (*Job, error) {
	entry, err := c.entry(jobID)
	if err != nil {
		return nil, err
	}

	entry.mu.RLock()
	snapshot := entry.job
	entry.mu.RUnlock()
	return &snapshot, nil
}

// Result returns the final solution of a terminal job. Failed jobs return
// their run error; jobs still in flight return *JobNotCompleteError.
func (c *Controller) Result(jobID string) (*Result, error) {
	entry, err := c.entry(jobID)
	if err != nil {
		return nil, err
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	if !entry.job.State.Terminal() {
		return nil, &JobNotCompleteError{JobID: jobID, State: entry.job.State}
	}
	if entry.job.State == JobStateFailed {
		return nil, &JobFailedError{JobID: jobID, Reason: entry.job.Error}
	}

	result := *entry.result
	return &result, nil
}

// List returns snapshots of every retained job, newest first.
func (c *Controller) List() []*Job {
	c.mu.RLock()
	entries := make([]*jobEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()

	snapshots := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		snapshot := entry.job
		entry.mu.RUnlock()
		snapshots = append(snapshots, &snapshot)
	}
	sortJobsNewestFirst(snapshots)
	return snapshots
}

// Remove drops a terminal job from retention. In-flight jobs are refused.
func (c *Controller) Remove(jobID string) error {
	entry, err := c.entry(jobID)
	if err != nil {
		return err
	}

	entry.mu.RLock()
	terminal := entry.job.State.Terminal()
	entry.mu.RUnlock()
	if !terminal {
		return &JobNotCompleteError{JobID: jobID, State: entry.job.State}
	}

	c.mu.Lock()
	delete(c.entries, jobID)
	c.mu.Unlock()
	return nil
}

func (c *Controller) entry(jobID string) (*jobEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[jobID]
	c.mu.RUnlock()
	if !ok {
		return nil, &UnknownJobError{JobID: jobID}
	}
	return entry, nil
}

func (c *Controller) emitTyped(eventType events.EventType, data events.EventData) {
	if c.events == nil {
		return
	}
	c.events.EmitTyped(eventType, moduleName, data)
}

func sortJobsNewestFirst(jobsList []*Job) {
	sort.Slice(jobsList, func(i, j int) bool {
		return jobsList[i].SubmittedAt.After(jobsList[j].SubmittedAt)
	})
}
