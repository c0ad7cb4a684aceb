package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/qpo/internal/events"
	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/circuit"
	"github.com/quantfolio/qpo/internal/modules/encoding"
	"github.com/quantfolio/qpo/internal/modules/qaoa"
)

func validSpec() *encoding.PortfolioSpec {
	return &encoding.PortfolioSpec{
		Assets:          []string{"AAPL", "MSFT", "GOOG", "AMZN"},
		ExpectedReturns: []float64{0.12, 0.08, 0.10, 0.05},
		Covariance: [][]float64{
			{0.10, 0.01, 0.02, 0.00},
			{0.01, 0.08, 0.01, 0.01},
			{0.02, 0.01, 0.09, 0.00},
			{0.00, 0.01, 0.00, 0.07},
		},
		Budget:       2,
		RiskAversion: 0.5,
	}
}

func referenceOnlySelector() *backends.Selector {
	registry := backends.NewRegistry(nil, zerolog.Nop())
	registry.Register(backends.Descriptor{
		ID:        "reference-sampler",
		Tier:      backends.TierReferenceSampler,
		MaxQubits: 24,
	}, backends.AlwaysAvailable{})
	return backends.NewSelector(registry, false, zerolog.Nop())
}

func newTestController(t *testing.T, syncMode bool, engine circuit.Executor) (*Controller, *events.Bus) {
	t.Helper()
	if engine == nil {
		engine = circuit.NewReferenceSampler(zerolog.Nop())
	}
	bus := events.NewBus(zerolog.Nop())
	t.Cleanup(func() { bus.Close() })
	manager := events.NewManager(bus, zerolog.Nop())

	optimizer := qaoa.NewOptimizer(referenceOnlySelector(), engine, zerolog.Nop())
	controller := NewController(encoding.NewEncoder(zerolog.Nop()), optimizer, manager, syncMode, zerolog.Nop())
	return controller, bus
}

func defaultOpts() SubmitOptions {
	return SubmitOptions{
		PreferredTier: backends.TierReferenceSampler,
		Params:        qaoa.Params{MaxIterations: 10},
	}
}

func waitTerminal(t *testing.T, controller *Controller, jobID string) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		snapshot, err := controller.Status(jobID)
		if err != nil {
			return false
		}
		job = snapshot
		return job.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

// gateEngine blocks the first execution until released, so tests can act
// while a job is mid-flight.
type gateEngine struct {
	delegate circuit.Executor
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGateEngine(delegate circuit.Executor) *gateEngine {
	return &gateEngine{
		delegate: delegate,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gateEngine) Execute(ctx context.Context, desc backends.Descriptor, req *circuit.Request) (*circuit.Result, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.delegate.Execute(ctx, desc, req)
}

type failingEngine struct{ err error }

func (f *failingEngine) Execute(ctx context.Context, desc backends.Descriptor, req *circuit.Request) (*circuit.Result, error) {
	return nil, f.err
}

func TestController_InvalidSpecFailsFast(t *testing.T) {
	controller, _ := newTestController(t, true, nil)

	spec := validSpec()
	spec.Budget = 9

	_, err := controller.Submit(spec, defaultOpts())
	require.Error(t, err)

	var invalid *encoding.InvalidSpecError
	assert.ErrorAs(t, err, &invalid)
	assert.Empty(t, controller.List(), "no job record for a rejected spec")
}

func TestController_SyncModeCompletesInline(t *testing.T) {
	controller, _ := newTestController(t, true, nil)

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	job, err := controller.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStateCompleted, job.State)

	result, err := controller.Result(jobID)
	require.NoError(t, err)
	assert.Len(t, result.SelectedAssets, 2)

	weightSum := 0.0
	for _, w := range result.Weights {
		weightSum += w
	}
	assert.InDelta(t, 1.0, weightSum, 1e-12)
}

func TestController_AsyncCompletesAndEmitsFinalEvent(t *testing.T) {
	controller, bus := newTestController(t, false, nil)

	completed := make(chan *events.Event, 1)
	bus.Subscribe(events.OptimizationCompleted, func(event *events.Event) {
		completed <- event
	})

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	job := waitTerminal(t, controller, jobID)
	assert.Equal(t, JobStateCompleted, job.State)

	select {
	case event := <-completed:
		data, ok := event.GetTypedData().(*events.OptimizationCompletedData)
		require.True(t, ok)
		assert.Equal(t, jobID, data.JobID)
		assert.Equal(t, 2, data.SelectedAssets)
	case <-time.After(time.Second):
		t.Fatal("no terminal event emitted")
	}
}

func TestController_ResultBeforeTerminal(t *testing.T) {
	gate := newGateEngine(circuit.NewReferenceSampler(zerolog.Nop()))
	controller, _ := newTestController(t, false, gate)

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	<-gate.started
	_, err = controller.Result(jobID)
	var notComplete *JobNotCompleteError
	require.ErrorAs(t, err, &notComplete)
	assert.Equal(t, jobID, notComplete.JobID)

	close(gate.release)
	job := waitTerminal(t, controller, jobID)
	assert.Equal(t, JobStateCompleted, job.State)
}

func TestController_CancelMidRunKeepsBestSoFar(t *testing.T) {
	gate := newGateEngine(circuit.NewReferenceSampler(zerolog.Nop()))
	controller, bus := newTestController(t, false, gate)

	cancelled := make(chan *events.Event, 1)
	bus.Subscribe(events.OptimizationCancelled, func(event *events.Event) {
		cancelled <- event
	})

	opts := defaultOpts()
	opts.Params.MaxIterations = 1000
	jobID, err := controller.Submit(validSpec(), opts)
	require.NoError(t, err)

	// Cancel while the first iteration is executing; the flag is observed at
	// the next iteration boundary.
	<-gate.started
	require.NoError(t, controller.Cancel(jobID))
	close(gate.release)

	job := waitTerminal(t, controller, jobID)
	assert.Equal(t, JobStateCancelled, job.State)

	result, err := controller.Result(jobID)
	require.NoError(t, err)
	assert.Equal(t, string(qaoa.StateCancelled), result.Termination)
	assert.NotEmpty(t, result.Bitstring, "best-so-far kept on cancellation")

	select {
	case event := <-cancelled:
		data, ok := event.GetTypedData().(*events.OptimizationCancelledData)
		require.True(t, ok)
		assert.Equal(t, jobID, data.JobID)
	case <-time.After(time.Second):
		t.Fatal("no cancellation event emitted")
	}
}

func TestController_FailedJobEmitsEventAndRefusesResult(t *testing.T) {
	engine := &failingEngine{err: &circuit.FatalExecutionError{BackendID: "reference-sampler", Reason: "broken"}}
	controller, bus := newTestController(t, false, engine)

	failed := make(chan *events.Event, 1)
	bus.Subscribe(events.OptimizationFailed, func(event *events.Event) {
		failed <- event
	})

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	job := waitTerminal(t, controller, jobID)
	assert.Equal(t, JobStateFailed, job.State)
	assert.NotEmpty(t, job.Error)

	_, err = controller.Result(jobID)
	var jobFailed *JobFailedError
	assert.ErrorAs(t, err, &jobFailed)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("no failure event emitted")
	}
}

func TestController_ConcurrentJobsIsolated(t *testing.T) {
	controller, _ := newTestController(t, false, nil)

	ids := make([]string, 3)
	for i := range ids {
		jobID, err := controller.Submit(validSpec(), defaultOpts())
		require.NoError(t, err)
		ids[i] = jobID
	}

	seen := map[string]bool{}
	for _, jobID := range ids {
		job := waitTerminal(t, controller, jobID)
		assert.Equal(t, JobStateCompleted, job.State)
		assert.False(t, seen[jobID], "duplicate job ID")
		seen[jobID] = true
	}
	assert.Len(t, controller.List(), 3)
}

func TestController_UnknownJob(t *testing.T) {
	controller, _ := newTestController(t, true, nil)

	var unknown *UnknownJobError
	_, err := controller.Status("nope")
	assert.ErrorAs(t, err, &unknown)
	assert.ErrorAs(t, controller.Cancel("nope"), &unknown)
	_, err = controller.Result("nope")
	assert.ErrorAs(t, err, &unknown)
	assert.ErrorAs(t, controller.Remove("nope"), &unknown)
}

func TestController_RemoveRetainedJob(t *testing.T) {
	controller, _ := newTestController(t, true, nil)

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	require.NoError(t, controller.Remove(jobID))
	_, err = controller.Status(jobID)
	var unknown *UnknownJobError
	assert.ErrorAs(t, err, &unknown)
}

func TestController_RemoveInFlightRefused(t *testing.T) {
	gate := newGateEngine(circuit.NewReferenceSampler(zerolog.Nop()))
	controller, _ := newTestController(t, false, gate)

	jobID, err := controller.Submit(validSpec(), defaultOpts())
	require.NoError(t, err)

	<-gate.started
	var notComplete *JobNotCompleteError
	assert.ErrorAs(t, controller.Remove(jobID), &notComplete)

	close(gate.release)
	waitTerminal(t, controller, jobID)
}

func TestController_CancelledBeforeFirstIterationResult(t *testing.T) {
	controller, _ := newTestController(t, true, nil)

	spec := validSpec()
	problem, err := controller.encoder.Encode(spec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := &jobEntry{
		job: Job{
			ID:          "early-cancel",
			State:       JobStatePending,
			SubmittedAt: time.Now(),
		},
		spec:   spec,
		cancel: cancel,
	}
	controller.mu.Lock()
	controller.entries[entry.job.ID] = entry
	controller.mu.Unlock()

	// Already-cancelled context: the loop exits before any iteration runs.
	controller.run(ctx, entry, problem, defaultOpts())

	job, err := controller.Status("early-cancel")
	require.NoError(t, err)
	assert.Equal(t, JobStateCancelled, job.State)
	assert.Zero(t, job.BestObjective)

	result, err := controller.Result("early-cancel")
	require.NoError(t, err)
	assert.Equal(t, string(qaoa.StateCancelled), result.Termination)
	assert.Zero(t, result.Iterations)
	assert.Empty(t, result.Bitstring)
	assert.Empty(t, result.SelectedAssets)
	assert.Zero(t, result.Objective)

	// The retained result must serialize cleanly for the API.
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(result))
}

func TestBuildSelection_EmptyBitstring(t *testing.T) {
	selected, weights := buildSelection(validSpec(), "")
	assert.Empty(t, selected)
	assert.Empty(t, weights)
}
