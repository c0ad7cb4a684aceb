// Package qaoa runs the variational optimization loop: propose circuit
// parameters, execute on the best available backend, measure, repeat until
// convergence or the iteration budget runs out.
package qaoa

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/circuit"
	"github.com/quantfolio/qpo/internal/modules/encoding"
)

// State of an optimization run. Converged and Exhausted are both successful
// terminal states: Exhausted simply means the iteration cap fired first.
type State string

const (
	StateInitializing State = "initializing"
	StateIterating    State = "iterating"
	StateConverged    State = "converged"
	StateExhausted    State = "exhausted"
	StateCancelled    State = "cancelled"
	StateFailed       State = "failed"
)

// Terminal reports whether the state ends the run
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateExhausted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Succeeded reports whether the run produced a usable result
func (s State) Succeeded() bool {
	return s == StateConverged || s == StateExhausted
}

// Params tunes one optimization run. Zero values are replaced by defaults in
// Normalize.
type Params struct {
	Depth                   int
	Shots                   int
	MaxIterations           int
	ConvergenceWindow       int
	Tolerance               float64
	MaxAttemptsPerIteration int

	// Seed, when set, randomizes the initial angles in [0, 0.5) and drives
	// measurement sampling. When nil the run starts from flat 0.1 angles
	// with a fixed sampling seed, so it is fully reproducible.
	Seed *int64
}

// Normalize fills unset fields with defaults
func (p Params) Normalize() Params {
	if p.Depth < 1 {
		p.Depth = 2
	}
	if p.Shots < 1 {
		p.Shots = 1024
	}
	if p.MaxIterations < 1 {
		p.MaxIterations = 50
	}
	if p.ConvergenceWindow < 1 {
		p.ConvergenceWindow = 5
	}
	if p.Tolerance <= 0 {
		p.Tolerance = 1e-4
	}
	if p.MaxAttemptsPerIteration < 1 {
		p.MaxAttemptsPerIteration = 4
	}
	return p
}

const defaultSamplingSeed = 1

// Progress is the per-iteration report delivered to the sink.
type Progress struct {
	Iteration     int
	Expectation   float64
	BestObjective float64
	BackendID     string
	Tier          backends.Tier
	State         State
}

// ProgressSink receives one report per completed iteration.
type ProgressSink interface {
	Report(p Progress)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(p Progress)

// Report implements ProgressSink
func (f ProgressFunc) Report(p Progress) { f(p) }

// Result is the terminal outcome of a run. For cancelled runs it carries the
// best solution found before cancellation, which may be empty when no
// iteration completed.
type Result struct {
	State         State
	BestBitstring string
	BestObjective float64
	Iterations    int
	FinalParams   []float64
	TierTrace     []backends.Tier
	EstimatedCost float64
}

// Optimizer drives the hybrid loop for one problem at a time. Safe for
// concurrent use: Run keeps all mutable state on its own stack.
type Optimizer struct {
	selector *backends.Selector
	executor circuit.Executor
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer over a fallback selector and a circuit
// executor
func NewOptimizer(selector *backends.Selector, executor circuit.Executor, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		selector: selector,
		executor: executor,
		log:      log.With().Str("component", "qaoa_optimizer").Logger(),
	}
}

// Run executes the optimization loop until a terminal state.
//
// Classified execution errors steer the loop: unavailable and transient
// failures advance to the next candidate backend within the iteration, a
// fatal failure aborts the whole run, and a fully exhausted candidate list
// fails the run with *AllBackendsExhaustedError. Cancellation via ctx is
// observed between iterations only; the best solution found so far is
// returned with state Cancelled and a nil error.
func (o *Optimizer) Run(ctx context.Context, problem *encoding.QUBOProblem, preferred backends.Tier, params Params, sink ProgressSink) (*Result, error) {
	params = params.Normalize()
	ising := problem.Ising()

	current := initialParams(params)
	policy := NewCoordinateSearch()

	samplingSeed := int64(defaultSamplingSeed)
	if params.Seed != nil {
		samplingSeed = *params.Seed
	}

	result := &Result{
		State:         StateInitializing,
		BestObjective: math.Inf(1),
		TierTrace:     make([]backends.Tier, 0, params.MaxIterations),
	}
	bestParams := current
	bestExpectation := math.Inf(1)
	history := make([]float64, 0, params.MaxIterations)

	o.log.Info().
		Int("size", problem.Size).
		Int("depth", params.Depth).
		Int("max_iterations", params.MaxIterations).
		Str("preferred_tier", preferred.String()).
		Msg("Starting optimization run")

	for iter := 1; iter <= params.MaxIterations; iter++ {
		if ctx.Err() != nil {
			o.log.Info().Int("iteration", iter).Msg("Run cancelled")
			result.State = StateCancelled
			return result, nil
		}
		result.State = StateIterating

		req := &circuit.Request{
			Ising:  ising,
			Depth:  params.Depth,
			Params: current,
			Shots:  params.Shots,
			Seed:   samplingSeed + int64(iter),
		}

		execResult, err := o.attempt(ctx, iter, problem.Size, preferred, params.MaxAttemptsPerIteration, req)
		if err != nil {
			result.State = StateFailed
			return result, err
		}

		expectation := expectationOf(problem, execResult.Counts, params.Shots)
		iterBest, iterBitstring := bestSampled(problem, execResult.Counts)

		improved := expectation < bestExpectation
		if improved {
			bestExpectation = expectation
			bestParams = current
		}
		if iterBest < result.BestObjective {
			result.BestObjective = iterBest
			result.BestBitstring = iterBitstring
		}

		result.Iterations = iter
		result.TierTrace = append(result.TierTrace, execResult.Tier)
		result.EstimatedCost += execResult.EstimatedCost
		history = append(history, result.BestObjective)

		if sink != nil {
			sink.Report(Progress{
				Iteration:     iter,
				Expectation:   expectation,
				BestObjective: result.BestObjective,
				BackendID:     execResult.BackendID,
				Tier:          execResult.Tier,
				State:         StateIterating,
			})
		}

		o.log.Debug().
			Int("iteration", iter).
			Float64("expectation", expectation).
			Float64("best_objective", result.BestObjective).
			Str("backend", execResult.BackendID).
			Msg("Iteration complete")

		if converged(history, params.ConvergenceWindow, params.Tolerance) {
			o.log.Info().
				Int("iterations", iter).
				Float64("best_objective", result.BestObjective).
				Msg("Run converged")
			result.State = StateConverged
			result.FinalParams = bestParams
			return result, nil
		}

		current = policy.Next(bestParams, improved)
	}

	o.log.Info().
		Int("iterations", result.Iterations).
		Float64("best_objective", result.BestObjective).
		Msg("Iteration budget exhausted")
	result.State = StateExhausted
	result.FinalParams = bestParams
	return result, nil
}

// attempt walks the fallback plan for one iteration, bounded by the attempt
// cap. Fatal errors abort immediately; anything else advances to the next
// candidate.
func (o *Optimizer) attempt(ctx context.Context, iter, problemSize int, preferred backends.Tier, maxAttempts int, req *circuit.Request) (*circuit.Result, error) {
	plan := o.selector.Plan(preferred, problemSize)

	var lastErr error
	attempts := 0
	for _, desc := range plan {
		if attempts >= maxAttempts {
			break
		}
		attempts++

		execResult, err := o.executor.Execute(ctx, desc, req)
		if err == nil {
			return execResult, nil
		}
		if circuit.IsFatal(err) {
			o.log.Error().Err(err).Str("backend", desc.ID).Int("iteration", iter).Msg("Fatal execution failure")
			return nil, err
		}

		o.log.Warn().Err(err).Str("backend", desc.ID).Int("iteration", iter).Msg("Backend attempt failed, trying next candidate")
		lastErr = err
	}

	return nil, &AllBackendsExhaustedError{Iteration: iter, Attempts: attempts, LastErr: lastErr}
}

// initialParams builds the starting angle vector: flat 0.1 for the fixed
// default, or seeded uniform in [0, 0.5).
func initialParams(params Params) []float64 {
	vector := make([]float64, 2*params.Depth)
	if params.Seed == nil {
		for i := range vector {
			vector[i] = 0.1
		}
		return vector
	}

	rng := rand.New(rand.NewSource(*params.Seed))
	for i := range vector {
		vector[i] = rng.Float64() * 0.5
	}
	return vector
}

// expectationOf computes the sample mean of the objective over the measured
// distribution. Bitstrings are visited in sorted order so the float sum is
// reproducible.
func expectationOf(problem *encoding.QUBOProblem, counts map[string]int, shots int) float64 {
	bitstrings := make([]string, 0, len(counts))
	for bitstring := range counts {
		bitstrings = append(bitstrings, bitstring)
	}
	sort.Strings(bitstrings)

	sum := 0.0
	for _, bitstring := range bitstrings {
		energy, err := problem.EnergyOfBitstring(bitstring)
		if err != nil {
			continue
		}
		sum += energy * float64(counts[bitstring])
	}
	return sum / float64(shots)
}

// bestSampled returns the lowest-energy measured bitstring, ties broken
// lexicographically for determinism.
func bestSampled(problem *encoding.QUBOProblem, counts map[string]int) (float64, string) {
	bitstrings := make([]string, 0, len(counts))
	for bitstring := range counts {
		bitstrings = append(bitstrings, bitstring)
	}
	sort.Strings(bitstrings)

	best := math.Inf(1)
	bestBitstring := ""
	for _, bitstring := range bitstrings {
		energy, err := problem.EnergyOfBitstring(bitstring)
		if err != nil {
			continue
		}
		if energy < best {
			best = energy
			bestBitstring = bitstring
		}
	}
	return best, bestBitstring
}

// converged reports whether the best objective improved by less than the
// relative tolerance over the last window iterations.
func converged(history []float64, window int, tolerance float64) bool {
	if len(history) <= window {
		return false
	}
	prior := history[len(history)-1-window]
	latest := history[len(history)-1]

	improvement := prior - latest
	scale := math.Max(math.Abs(prior), 1.0)
	return improvement/scale < tolerance
}
