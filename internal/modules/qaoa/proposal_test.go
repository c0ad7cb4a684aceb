package qaoa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoordinateSearch_CyclesCoordinatesAndSigns(t *testing.T) {
	search := NewCoordinateSearch()
	best := []float64{0.1, 0.1}

	// No improvement: +coord0, -coord0, +coord1, -coord1, then wrap.
	assert.Equal(t, []float64{0.2, 0.1}, search.Next(best, true))
	assert.Equal(t, []float64{0.0, 0.1}, search.Next(best, false))
	assert.Equal(t, []float64{0.1, 0.2}, search.Next(best, false))
	assert.Equal(t, []float64{0.1, 0.0}, search.Next(best, false))
}

func TestCoordinateSearch_RidesImprovingDirection(t *testing.T) {
	search := NewCoordinateSearch()
	best := []float64{0.1, 0.1}

	first := search.Next(best, true)
	assert.Equal(t, []float64{0.2, 0.1}, first)

	// Improvement keeps the same coordinate and direction.
	second := search.Next(first, true)
	assert.InDeltaSlice(t, []float64{0.3, 0.1}, second, 1e-12)
}

func TestCoordinateSearch_ShrinksAfterStaleCycle(t *testing.T) {
	search := NewCoordinateSearch()
	best := []float64{0.1, 0.1}

	search.Next(best, true)
	// Three stale proposals exhaust the remaining ±directions.
	for i := 0; i < 3; i++ {
		search.Next(best, false)
	}

	// The fourth stale proposal completes the cycle and shrinks the step.
	candidate := search.Next(best, false)
	assert.InDelta(t, 0.05, candidate[0]-best[0], 1e-12)
}

func TestCoordinateSearch_DoesNotMutateInput(t *testing.T) {
	search := NewCoordinateSearch()
	best := []float64{0.1, 0.1}

	_ = search.Next(best, true)
	assert.Equal(t, []float64{0.1, 0.1}, best)
}
