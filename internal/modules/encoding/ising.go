package encoding

// IsingForm is the spin-model equivalent of a QUBO problem, used by circuit
// executors to build cost-layer phases. Spins follow the s = 2x − 1
// convention, so energy(s) equals the QUBO objective of the matching bits.
type IsingForm struct {
	H      []float64
	J      [][]float64
	Offset float64
}

// Ising converts the QUBO problem into Ising coefficients.
// The conversion substitutes x_i = (1 + s_i)/2 into x'Qx + offset, collecting
// linear (h), pairwise (J, upper-triangular) and constant terms.
func (p *QUBOProblem) Ising() *IsingForm {
	n := p.Size
	h := make([]float64, n)
	j := make([][]float64, n)
	for i := range j {
		j[i] = make([]float64, n)
	}
	offset := p.Offset

	for i := 0; i < n; i++ {
		// Diagonal: Q_ii·x_i = Q_ii·(1+s_i)/2.
		h[i] += p.Q[i][i] / 2.0
		offset += p.Q[i][i] / 2.0

		for k := i + 1; k < n; k++ {
			// Off-diagonal pair contributes (Q_ik + Q_ki)·x_i·x_k in x'Qx.
			pair := p.Q[i][k] + p.Q[k][i]
			h[i] += pair / 4.0
			h[k] += pair / 4.0
			j[i][k] = pair / 4.0
			offset += pair / 4.0
		}
	}

	return &IsingForm{H: h, J: j, Offset: offset}
}

// Energy evaluates the Ising energy for the bits of a basis state, including
// the offset. Bit i set means spin +1.
func (f *IsingForm) Energy(bits []int) float64 {
	n := len(f.H)
	spins := make([]float64, n)
	for i := 0; i < n; i++ {
		if bits[i] == 1 {
			spins[i] = 1.0
		} else {
			spins[i] = -1.0
		}
	}

	energy := f.Offset
	for i := 0; i < n; i++ {
		energy += f.H[i] * spins[i]
		for k := i + 1; k < n; k++ {
			energy += f.J[i][k] * spins[i] * spins[k]
		}
	}
	return energy
}

// PhaseEnergy evaluates the parameter-dependent part of the Ising energy
// (without the constant offset), which is what the cost layer of a QAOA
// circuit imprints as a phase.
func (f *IsingForm) PhaseEnergy(bits []int) float64 {
	return f.Energy(bits) - f.Offset
}
