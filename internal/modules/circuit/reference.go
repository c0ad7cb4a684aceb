package circuit

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/qpo/internal/modules/backends"
)

const (
	// Above this width the exhaustive Boltzmann sweep is too expensive and
	// the sampler degrades to seeded uniform sampling.
	referenceExhaustiveLimit = 16

	// Temperature of the Boltzmann weighting over problem energies. Low
	// enough that low-energy states dominate the sample.
	referenceTemperature = 0.05
)

// ReferenceSampler is the guaranteed-terminal engine. It ignores the
// variational parameters entirely: for small problems it enumerates every
// basis state and apportions shots by Boltzmann weight deterministically, so
// the same request always yields the same counts. Larger problems fall back
// to seeded uniform sampling. The descriptor's qubit capacity is ignored;
// the sampler serves any width so the fallback chain always terminates.
type ReferenceSampler struct {
	log zerolog.Logger
}

// NewReferenceSampler creates the terminal fallback engine
func NewReferenceSampler(log zerolog.Logger) *ReferenceSampler {
	return &ReferenceSampler{
		log: log.With().Str("component", "reference_sampler").Logger(),
	}
}

// Execute implements Executor
func (s *ReferenceSampler) Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error) {
	if err := validateRequest(desc, req); err != nil {
		return nil, err
	}

	n := req.NumQubits()
	start := time.Now()

	var counts map[string]int
	if n <= referenceExhaustiveLimit {
		counts = s.boltzmannCounts(req)
	} else {
		counts = s.uniformCounts(req)
	}

	s.log.Debug().
		Int("qubits", n).
		Int("shots", req.Shots).
		Bool("exhaustive", n <= referenceExhaustiveLimit).
		Msg("Reference sampling complete")

	return &Result{
		Counts:    counts,
		BackendID: desc.ID,
		Tier:      desc.Tier,
		Duration:  time.Since(start),
	}, nil
}

// boltzmannCounts enumerates every basis state and apportions the shot budget
// by Boltzmann weight using the largest-remainder method, so the split is
// exact and deterministic.
func (s *ReferenceSampler) boltzmannCounts(req *Request) map[string]int {
	n := req.NumQubits()
	dim := 1 << uint(n)

	energies := make([]float64, dim)
	minEnergy := math.Inf(1)
	bits := make([]int, n)
	for z := 0; z < dim; z++ {
		for i := 0; i < n; i++ {
			bits[i] = (z >> uint(i)) & 1
		}
		energies[z] = req.Ising.Energy(bits)
		if energies[z] < minEnergy {
			minEnergy = energies[z]
		}
	}

	// Normalize by the range so the temperature is scale free.
	spread := 0.0
	for _, e := range energies {
		if d := e - minEnergy; d > spread {
			spread = d
		}
	}
	if spread == 0 {
		spread = 1
	}

	weights := make([]float64, dim)
	total := 0.0
	for z, e := range energies {
		weights[z] = math.Exp(-(e - minEnergy) / (referenceTemperature * spread))
		total += weights[z]
	}

	type share struct {
		state     int
		count     int
		remainder float64
	}
	shares := make([]share, dim)
	assigned := 0
	for z, w := range weights {
		exact := float64(req.Shots) * w / total
		floor := int(exact)
		shares[z] = share{state: z, count: floor, remainder: exact - float64(floor)}
		assigned += floor
	}

	// Hand leftover shots to the largest remainders, ties broken by state
	// index for determinism.
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].remainder != shares[j].remainder {
			return shares[i].remainder > shares[j].remainder
		}
		return shares[i].state < shares[j].state
	})
	for i := 0; assigned < req.Shots; i++ {
		shares[i].count++
		assigned++
	}

	counts := make(map[string]int)
	for _, sh := range shares {
		if sh.count > 0 {
			counts[bitstringOf(sh.state, n)] = sh.count
		}
	}
	return counts
}

// uniformCounts draws shots uniformly with the request seed. Widths that
// overflow a single 63-bit draw are sampled bit by bit.
func (s *ReferenceSampler) uniformCounts(req *Request) map[string]int {
	n := req.NumQubits()
	rng := rand.New(rand.NewSource(req.Seed))
	counts := make(map[string]int)

	if n < 63 {
		for i := 0; i < req.Shots; i++ {
			z := rng.Int63n(1 << uint(n))
			counts[bitstringOf(int(z), n)]++
		}
		return counts
	}

	buf := make([]byte, n)
	for i := 0; i < req.Shots; i++ {
		for j := range buf {
			buf[j] = '0' + byte(rng.Intn(2))
		}
		counts[string(buf)]++
	}
	return counts
}
