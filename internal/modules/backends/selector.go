package backends

import "github.com/rs/zerolog"

// Selector plans the ordered sequence of backends to attempt for one
// execution. It is stateless with respect to prior failures: every call
// recomputes the order from current availability, so a backend that recovers
// mid-run is retried on the next iteration rather than being blacklisted.
type Selector struct {
	registry  *Registry
	localOnly bool
	log       zerolog.Logger
}

// NewSelector creates a fallback selector over a registry.
// When localOnly is set, network-backed tiers are excluded from every plan
// so no remote quota is consumed.
func NewSelector(registry *Registry, localOnly bool, log zerolog.Logger) *Selector {
	return &Selector{
		registry:  registry,
		localOnly: localOnly,
		log:       log.With().Str("component", "fallback_selector").Logger(),
	}
}

// Plan returns the backends to attempt, in order: the preferred tier first,
// then each tier below it, keeping only backends whose capacity fits the
// problem and which currently probe as available. The reference sampler tier
// is always appended last as the guaranteed terminal fallback, regardless of
// its current probe state.
func (s *Selector) Plan(preferred Tier, problemSize int) []Descriptor {
	plan := make([]Descriptor, 0, 4)

	for _, tier := range TiersDescending() {
		if tier > preferred || tier == TierReferenceSampler {
			continue
		}
		for _, desc := range s.registry.List(Filter{Tier: &tier}) {
			if s.localOnly && desc.RequiresNetwork {
				continue
			}
			if desc.MaxQubits < problemSize {
				s.log.Debug().
					Str("backend", desc.ID).
					Int("capacity", desc.MaxQubits).
					Int("problem_size", problemSize).
					Msg("Skipping backend with insufficient capacity")
				continue
			}
			if !s.registry.Availability(desc.ID) {
				continue
			}
			plan = append(plan, desc)
		}
	}

	// Terminal fallback: the reference sampler never fails on capacity or
	// network grounds, so the loop can always make progress.
	reference := TierReferenceSampler
	plan = append(plan, s.registry.List(Filter{Tier: &reference})...)

	return plan
}
