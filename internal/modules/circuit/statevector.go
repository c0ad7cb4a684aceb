package circuit

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/qpo/internal/modules/backends"
)

// StatevectorSimulator executes QAOA circuits exactly by evolving the full
// 2^n statevector: uniform superposition, then per layer a diagonal
// cost-phase from the Ising form followed by an RX mixer sweep. Measurement
// sampling is seeded so results are reproducible.
type StatevectorSimulator struct {
	log zerolog.Logger
}

// NewStatevectorSimulator creates the local simulator engine
func NewStatevectorSimulator(log zerolog.Logger) *StatevectorSimulator {
	return &StatevectorSimulator{
		log: log.With().Str("component", "statevector_simulator").Logger(),
	}
}

// Execute implements Executor
func (s *StatevectorSimulator) Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error) {
	if err := validateRequest(desc, req); err != nil {
		return nil, err
	}

	n := req.NumQubits()
	if n > desc.MaxQubits {
		return nil, &BackendUnavailableError{BackendID: desc.ID, Reason: "problem exceeds qubit capacity"}
	}

	start := time.Now()

	amps := s.evolve(req)

	probs := make([]float64, len(amps))
	for i, amp := range amps {
		probs[i] = real(amp)*real(amp) + imag(amp)*imag(amp)
	}

	counts := sampleCounts(probs, n, req.Shots, req.Seed)

	s.log.Debug().
		Int("qubits", n).
		Int("shots", req.Shots).
		Dur("duration", time.Since(start)).
		Msg("Simulated circuit")

	return &Result{
		Counts:    counts,
		BackendID: desc.ID,
		Tier:      desc.Tier,
		Duration:  time.Since(start),
	}, nil
}

// evolve applies the QAOA layers and returns the final statevector.
func (s *StatevectorSimulator) evolve(req *Request) []complex128 {
	n := req.NumQubits()
	dim := 1 << uint(n)

	// Cost phases depend only on the basis state; precompute once.
	phases := make([]float64, dim)
	bits := make([]int, n)
	for z := 0; z < dim; z++ {
		for i := 0; i < n; i++ {
			bits[i] = (z >> uint(i)) & 1
		}
		phases[z] = req.Ising.PhaseEnergy(bits)
	}

	// Uniform superposition.
	amps := make([]complex128, dim)
	initial := complex(1.0/math.Sqrt(float64(dim)), 0)
	for z := range amps {
		amps[z] = initial
	}

	gammas := req.Gammas()
	betas := req.Betas()
	for layer := 0; layer < req.Depth; layer++ {
		// Diagonal cost layer: amp_z *= exp(-i·gamma·E(z)).
		gamma := gammas[layer]
		for z := range amps {
			amps[z] *= cmplx.Exp(complex(0, -gamma*phases[z]))
		}

		// Mixer: RX(2·beta) on every qubit.
		cosB := complex(math.Cos(betas[layer]), 0)
		sinB := complex(0, -math.Sin(betas[layer]))
		for q := 0; q < n; q++ {
			bit := 1 << uint(q)
			for z := 0; z < dim; z++ {
				if z&bit != 0 {
					continue
				}
				a, b := amps[z], amps[z|bit]
				amps[z] = cosB*a + sinB*b
				amps[z|bit] = sinB*a + cosB*b
			}
		}
	}

	return amps
}

// sampleCounts draws `shots` measurements from a probability vector using a
// seeded generator and CDF inversion.
func sampleCounts(probs []float64, numQubits, shots int, seed int64) map[string]int {
	cdf := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		total += p
		cdf[i] = total
	}

	rng := rand.New(rand.NewSource(seed))
	counts := make(map[string]int)
	for s := 0; s < shots; s++ {
		u := rng.Float64() * total
		z := sort.SearchFloat64s(cdf, u)
		if z >= len(probs) {
			z = len(probs) - 1
		}
		counts[bitstringOf(z, numQubits)]++
	}
	return counts
}

// bitstringOf renders basis-state index z with position i holding qubit i.
func bitstringOf(z, numQubits int) string {
	buf := make([]byte, numQubits)
	for i := 0; i < numQubits; i++ {
		if z&(1<<uint(i)) != 0 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
