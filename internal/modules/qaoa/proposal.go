package qaoa

// ProposalPolicy generates the next parameter vector to evaluate.
// Implementations must be deterministic given the same call sequence, so a
// run with a fixed seed replays identically.
type ProposalPolicy interface {
	// Next proposes a candidate derived from the best parameters found so
	// far. improved reports whether the previous proposal beat the best
	// objective, letting the policy ride a productive direction.
	Next(best []float64, improved bool) []float64
}

// CoordinateSearch is the default proposal policy: deterministic pattern
// search that cycles through coordinates trying ±step, and shrinks the step
// after a full cycle without improvement. No gradients, no randomness.
type CoordinateSearch struct {
	step    float64
	shrink  float64
	minStep float64

	coord int
	sign  float64
	stale int
}

// NewCoordinateSearch creates the default pattern search
func NewCoordinateSearch() *CoordinateSearch {
	return &CoordinateSearch{
		step:    0.1,
		shrink:  0.5,
		minStep: 1e-3,
		sign:    1,
	}
}

// Next implements ProposalPolicy
func (c *CoordinateSearch) Next(best []float64, improved bool) []float64 {
	n := len(best)
	if improved {
		// Keep pushing the direction that just worked.
		c.stale = 0
	} else {
		c.stale++
		if c.sign > 0 {
			c.sign = -1
		} else {
			c.sign = 1
			c.coord = (c.coord + 1) % n
		}
		// A full ±cycle over every coordinate with no improvement means the
		// step is too coarse.
		if c.stale >= 2*n {
			c.step *= c.shrink
			if c.step < c.minStep {
				c.step = c.minStep
			}
			c.stale = 0
		}
	}

	candidate := make([]float64, n)
	copy(candidate, best)
	candidate[c.coord] += c.sign * c.step
	return candidate
}
