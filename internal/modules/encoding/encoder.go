package encoding

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

const (
	// symmetryTolerance is the maximum allowed asymmetry in the input
	// covariance matrix, relative to its largest absolute entry.
	symmetryTolerance = 1e-9

	// sectorPenaltyWeight scales the quadratic penalty applied to sector
	// limit violations.
	sectorPenaltyWeight = 750.0
)

// PenaltyPolicy computes the budget-constraint penalty coefficient for a base
// QUBO matrix. The coefficient must dominate the return/risk terms so that
// violating the budget is never optimal.
type PenaltyPolicy interface {
	BudgetWeight(base [][]float64) float64
}

// ScaledPenaltyPolicy sets the penalty to Scale times the largest absolute
// base coefficient, with a fixed floor.
type ScaledPenaltyPolicy struct {
	Scale float64
	Floor float64
}

// BudgetWeight implements PenaltyPolicy
func (p ScaledPenaltyPolicy) BudgetWeight(base [][]float64) float64 {
	maxAbs := 0.0
	for i := range base {
		for j := range base[i] {
			if abs := math.Abs(base[i][j]); abs > maxAbs {
				maxAbs = abs
			}
		}
	}
	weight := p.Scale * maxAbs
	if weight < p.Floor {
		weight = p.Floor
	}
	return weight
}

// DefaultPenaltyPolicy returns the standard penalty scaling.
func DefaultPenaltyPolicy() PenaltyPolicy {
	return ScaledPenaltyPolicy{Scale: 10.0, Floor: 1000.0}
}

// Encoder converts portfolio specifications into QUBO problems.
// Encoding is deterministic and free of side effects: the same spec always
// yields a bit-identical matrix.
type Encoder struct {
	penalty PenaltyPolicy
	log     zerolog.Logger
}

// NewEncoder creates a new problem encoder
func NewEncoder(log zerolog.Logger) *Encoder {
	return NewEncoderWithPolicy(DefaultPenaltyPolicy(), log)
}

// NewEncoderWithPolicy creates an encoder with a custom penalty policy
func NewEncoderWithPolicy(penalty PenaltyPolicy, log zerolog.Logger) *Encoder {
	return &Encoder{
		penalty: penalty,
		log:     log.With().Str("component", "encoder").Logger(),
	}
}

// Encode builds the QUBO problem for a portfolio specification.
//
// The matrix combines three terms:
//   - return term:  -2(1-λ)·diag(μ), favoring high expected returns
//   - risk term:    +2λ·(Σ+Σ')/2, penalizing co-movement
//   - budget term:  P·(Σx − k)², enforcing exactly k selected assets
//
// plus optional sector-limit penalties. Fails with *InvalidSpecError when the
// spec is malformed or infeasible.
func (e *Encoder) Encode(spec *PortfolioSpec) (*QUBOProblem, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	n := len(spec.Assets)
	lambda := spec.RiskAversion

	// Base matrix: return and risk terms over the symmetrized covariance.
	q := make([][]float64, n)
	for i := range q {
		q[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			q[i][j] = 2.0 * lambda * (spec.Covariance[i][j] + spec.Covariance[j][i]) / 2.0
		}
		q[i][i] -= 2.0 * (1.0 - lambda) * spec.ExpectedReturns[i]
	}

	penaltyWeight := e.penalty.BudgetWeight(q)
	offset := 0.0

	// Budget penalty: P·(Σx − k)² expands to P on every entry, −2Pk on the
	// diagonal, and P·k² in the offset.
	k := float64(spec.Budget)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			q[i][j] += penaltyWeight
		}
		q[i][i] -= 2.0 * penaltyWeight * k
	}
	offset += penaltyWeight * k * k

	// Sector limits: per-sector quadratic penalty on exceeding the cap.
	for _, limit := range spec.SectorLimits {
		maxSel := float64(limit.Max)
		for _, i := range limit.Assets {
			for _, j := range limit.Assets {
				q[i][j] += sectorPenaltyWeight
			}
			q[i][i] -= 2.0 * sectorPenaltyWeight * maxSel
		}
		offset += sectorPenaltyWeight * maxSel * maxSel
	}

	e.log.Debug().
		Int("assets", n).
		Int("budget", spec.Budget).
		Float64("penalty_weight", penaltyWeight).
		Msg("Encoded portfolio spec to QUBO")

	return &QUBOProblem{Size: n, Q: q, Offset: offset}, nil
}

// validateSpec checks structural and numerical validity of a spec.
func validateSpec(spec *PortfolioSpec) error {
	if spec == nil {
		return invalidSpec("spec is nil")
	}

	n := len(spec.Assets)
	if n == 0 {
		return invalidSpec("no assets provided")
	}
	if len(spec.ExpectedReturns) != n {
		return invalidSpec("expected returns length %d does not match asset count %d", len(spec.ExpectedReturns), n)
	}
	if len(spec.Covariance) != n {
		return invalidSpec("covariance matrix has %d rows, expected %d", len(spec.Covariance), n)
	}
	for i, row := range spec.Covariance {
		if len(row) != n {
			return invalidSpec("covariance row %d has %d columns, expected %d", i, len(row), n)
		}
	}
	if spec.Budget < 1 || spec.Budget > n {
		return invalidSpec("budget %d outside valid range [1, %d]", spec.Budget, n)
	}
	if spec.RiskAversion < 0 || spec.RiskAversion > 1 {
		return invalidSpec("risk aversion %v outside [0, 1]", spec.RiskAversion)
	}

	maxAbs := 0.0
	for i := 0; i < n; i++ {
		if math.IsNaN(spec.ExpectedReturns[i]) || math.IsInf(spec.ExpectedReturns[i], 0) {
			return invalidSpec("expected return for asset %d is not finite", i)
		}
		for j := 0; j < n; j++ {
			v := spec.Covariance[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalidSpec("covariance entry (%d,%d) is not finite", i, j)
			}
			if abs := math.Abs(v); abs > maxAbs {
				maxAbs = abs
			}
		}
	}

	tol := symmetryTolerance * math.Max(maxAbs, 1.0)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(spec.Covariance[i][j]-spec.Covariance[j][i]) > tol {
				return invalidSpec("covariance matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}

	if !isPositiveSemiDefinite(spec.Covariance, maxAbs) {
		return invalidSpec("covariance matrix is not positive semi-definite")
	}

	for _, limit := range spec.SectorLimits {
		if len(limit.Assets) == 0 {
			return invalidSpec("sector limit %q has no assets", limit.Name)
		}
		if limit.Max < 0 {
			return invalidSpec("sector limit %q has negative max", limit.Name)
		}
		for _, idx := range limit.Assets {
			if idx < 0 || idx >= n {
				return invalidSpec("sector limit %q references asset index %d outside universe", limit.Name, idx)
			}
		}
	}

	return nil
}

// isPositiveSemiDefinite checks PSD via Cholesky factorization with a small
// diagonal jitter so boundary cases (exactly singular covariance) pass.
func isPositiveSemiDefinite(cov [][]float64, maxAbs float64) bool {
	n := len(cov)
	jitter := 1e-9 * math.Max(maxAbs, 1.0)

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (cov[i][j] + cov[j][i]) / 2.0
			if i == j {
				v += jitter
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	return chol.Factorize(sym)
}
