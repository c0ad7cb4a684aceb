package backends

// Descriptor holds the capability metadata of one execution backend.
// Descriptors are static configuration; only availability changes at runtime.
type Descriptor struct {
	ID              string       `json:"id"`
	Tier            Tier         `json:"-"`
	TierName        string       `json:"tier"`
	MaxQubits       int          `json:"max_qubits"`
	Latency         LatencyClass `json:"latency"`
	RequiresNetwork bool         `json:"requires_network"`
	Stochastic      bool         `json:"stochastic"`
}

// Status pairs a descriptor with its current availability, as reported by
// the registry's probe cache.
type Status struct {
	Descriptor
	Available bool `json:"available"`
}

// Filter restricts the descriptors returned by Registry.List.
// Zero values match everything.
type Filter struct {
	// MinQubits keeps only backends with at least this capacity.
	MinQubits int
	// Tier keeps only backends of one tier when non-nil.
	Tier *Tier
}

func (f Filter) matches(d Descriptor) bool {
	if f.MinQubits > 0 && d.MaxQubits < f.MinQubits {
		return false
	}
	if f.Tier != nil && d.Tier != *f.Tier {
		return false
	}
	return true
}
