package circuit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/encoding"
)

// Request binds one parameter vector to the fixed variational circuit
// template for a problem. Params holds 2×Depth angles: the cost-layer gammas
// first, then the mixer betas.
type Request struct {
	Ising  *encoding.IsingForm
	Depth  int
	Params []float64
	Shots  int

	// Seed drives measurement sampling on stochastic local engines so
	// synchronous test mode is reproducible.
	Seed int64
}

// NumQubits returns the circuit width
func (r *Request) NumQubits() int {
	return len(r.Ising.H)
}

// Gammas returns the cost-layer angles
func (r *Request) Gammas() []float64 {
	return r.Params[:r.Depth]
}

// Betas returns the mixer angles
func (r *Request) Betas() []float64 {
	return r.Params[r.Depth:]
}

// Result holds the measurement statistics of one execution attempt.
// Consumed immediately by the optimizer and discarded.
type Result struct {
	Counts        map[string]int
	BackendID     string
	Tier          backends.Tier
	Duration      time.Duration
	EstimatedCost float64
}

// Executor runs a circuit request on one chosen backend. Implementations
// perform exactly one attempt per call and classify the outcome precisely;
// retry policy lives in the caller.
type Executor interface {
	Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error)
}

// Dispatcher routes execution requests to the engine serving each tier.
type Dispatcher struct {
	engines map[backends.Tier]Executor
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher with the standard engine per tier:
// the remote gateway client for hardware and remote-simulator, the local
// statevector simulator, and the reference sampler.
func NewDispatcher(remote *RemoteClient, log zerolog.Logger) *Dispatcher {
	local := NewStatevectorSimulator(log)
	reference := NewReferenceSampler(log)

	return &Dispatcher{
		engines: map[backends.Tier]Executor{
			backends.TierHardware:         remote,
			backends.TierRemoteSimulator:  remote,
			backends.TierLocalSimulator:   local,
			backends.TierReferenceSampler: reference,
		},
		log: log.With().Str("component", "circuit_dispatcher").Logger(),
	}
}

// NewDispatcherWithEngines creates a dispatcher with explicit engines.
// Used by tests to inject failing executors.
func NewDispatcherWithEngines(engines map[backends.Tier]Executor, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		engines: engines,
		log:     log.With().Str("component", "circuit_dispatcher").Logger(),
	}
}

// Execute implements Executor
func (d *Dispatcher) Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error) {
	engine, ok := d.engines[desc.Tier]
	if !ok {
		return nil, &BackendUnavailableError{BackendID: desc.ID, Reason: "no engine for tier " + desc.Tier.String()}
	}
	return engine.Execute(ctx, desc, req)
}

// validateRequest performs the structural checks shared by all engines.
// Violations are fatal: the circuit template itself is malformed.
func validateRequest(desc backends.Descriptor, req *Request) error {
	if req.Depth < 1 {
		return &FatalExecutionError{BackendID: desc.ID, Reason: "circuit depth must be positive"}
	}
	if len(req.Params) != 2*req.Depth {
		return &FatalExecutionError{BackendID: desc.ID, Reason: "parameter vector length does not match circuit depth"}
	}
	if req.Shots < 1 {
		return &FatalExecutionError{BackendID: desc.ID, Reason: "shot count must be positive"}
	}
	if req.NumQubits() == 0 {
		return &FatalExecutionError{BackendID: desc.ID, Reason: "empty problem"}
	}
	return nil
}
