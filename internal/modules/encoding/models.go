// Package encoding converts portfolio specifications into quadratic
// unconstrained binary optimization (QUBO) problems.
package encoding

import "fmt"

// PortfolioSpec describes one constrained asset-selection problem.
// Immutable once submitted.
type PortfolioSpec struct {
	// Assets is the ordered universe of asset identifiers.
	Assets []string `json:"assets"`

	// ExpectedReturns holds one expected return per asset, in asset order.
	ExpectedReturns []float64 `json:"expected_returns"`

	// Covariance is the symmetric asset covariance matrix.
	Covariance [][]float64 `json:"covariance"`

	// Budget is the exact number of assets to select.
	Budget int `json:"budget"`

	// RiskAversion trades return against risk, in [0, 1]. Higher values
	// emphasize risk.
	RiskAversion float64 `json:"risk_aversion"`

	// SectorLimits optionally caps how many assets may be selected from
	// named asset groups.
	SectorLimits []SectorLimit `json:"sector_limits,omitempty"`
}

// SectorLimit caps selections within a group of asset indices.
type SectorLimit struct {
	Name   string `json:"name"`
	Assets []int  `json:"assets"`
	Max    int    `json:"max"`
}

// QUBOProblem is a square symmetric matrix Q plus a scalar offset.
// The objective is minimizing x'Qx + offset over binary vectors x.
// Never mutated after construction.
type QUBOProblem struct {
	Size   int
	Q      [][]float64
	Offset float64
}

// Energy evaluates the QUBO objective x'Qx + offset for a binary vector.
func (p *QUBOProblem) Energy(bits []int) float64 {
	energy := p.Offset
	for i := 0; i < p.Size; i++ {
		if bits[i] == 0 {
			continue
		}
		for j := 0; j < p.Size; j++ {
			if bits[j] != 0 {
				energy += p.Q[i][j]
			}
		}
	}
	return energy
}

// EnergyOfBitstring evaluates the objective for a "0101…" bitstring where
// position i corresponds to asset i.
func (p *QUBOProblem) EnergyOfBitstring(bitstring string) (float64, error) {
	if len(bitstring) != p.Size {
		return 0, fmt.Errorf("bitstring length %d does not match problem size %d", len(bitstring), p.Size)
	}
	bits := make([]int, p.Size)
	for i, c := range bitstring {
		switch c {
		case '0':
		case '1':
			bits[i] = 1
		default:
			return 0, fmt.Errorf("invalid bitstring character %q", c)
		}
	}
	return p.Energy(bits), nil
}

// InvalidSpecError reports a malformed or infeasible portfolio specification.
type InvalidSpecError struct {
	Reason string
}

// Error implements the error interface
func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid portfolio spec: %s", e.Reason)
}

func invalidSpec(format string, args ...interface{}) *InvalidSpecError {
	return &InvalidSpecError{Reason: fmt.Sprintf(format, args...)}
}
