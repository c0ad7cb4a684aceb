// Package backends manages quantum execution backends: their capability
// descriptors, availability probing, and the fallback ordering used when a
// preferred backend cannot serve a request.
package backends

import "fmt"

// Tier is a ranked category of execution resource. Higher tiers are more
// capable (and less reliably available). The set is closed so fallback logic
// can be checked exhaustively.
type Tier int

const (
	// TierReferenceSampler is a classical, always-available stand-in for
	// quantum execution. It is the guaranteed terminal fallback.
	TierReferenceSampler Tier = iota
	// TierLocalSimulator runs circuits on an in-process statevector simulator.
	TierLocalSimulator
	// TierRemoteSimulator runs circuits on a network-hosted simulator.
	TierRemoteSimulator
	// TierHardware runs circuits on real quantum hardware.
	TierHardware
)

// String returns the canonical tier name
func (t Tier) String() string {
	switch t {
	case TierHardware:
		return "hardware"
	case TierRemoteSimulator:
		return "remote-simulator"
	case TierLocalSimulator:
		return "local-simulator"
	case TierReferenceSampler:
		return "reference-sampler"
	default:
		return "unknown"
	}
}

// ParseTier converts a tier name to its Tier value
func ParseTier(s string) (Tier, error) {
	switch s {
	case "hardware":
		return TierHardware, nil
	case "remote-simulator":
		return TierRemoteSimulator, nil
	case "local-simulator":
		return TierLocalSimulator, nil
	case "reference-sampler":
		return TierReferenceSampler, nil
	default:
		return TierReferenceSampler, fmt.Errorf("unknown backend tier: %q", s)
	}
}

// TiersDescending lists all tiers from most to least capable.
func TiersDescending() []Tier {
	return []Tier{TierHardware, TierRemoteSimulator, TierLocalSimulator, TierReferenceSampler}
}

// LatencyClass is the expected latency category for a backend.
type LatencyClass string

const (
	// LatencyFast means sub-second synchronous execution.
	LatencyFast LatencyClass = "fast"
	// LatencyModerate means seconds per execution.
	LatencyModerate LatencyClass = "moderate"
	// LatencyQueued means the backend queues jobs; minutes are possible.
	LatencyQueued LatencyClass = "queued"
)
