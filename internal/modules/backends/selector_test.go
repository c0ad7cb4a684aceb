package backends

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullRegistry(hwAvailable, remoteAvailable bool) *Registry {
	registry := testRegistry()
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127, RequiresNetwork: true}, staticProber(hwAvailable))
	registry.Register(Descriptor{ID: "remote", Tier: TierRemoteSimulator, MaxQubits: 32, RequiresNetwork: true}, staticProber(remoteAvailable))
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20}, staticProber(true))
	registry.Register(Descriptor{ID: "ref", Tier: TierReferenceSampler, MaxQubits: 24}, AlwaysAvailable{})
	return registry
}

func planIDs(plan []Descriptor) []string {
	ids := make([]string, len(plan))
	for i, desc := range plan {
		ids[i] = desc.ID
	}
	return ids
}

func TestSelector_PlanFromHardware(t *testing.T) {
	selector := NewSelector(fullRegistry(true, true), false, zerolog.Nop())

	plan := selector.Plan(TierHardware, 8)
	assert.Equal(t, []string{"hw", "remote", "local", "ref"}, planIDs(plan))
}

func TestSelector_PlanStartsAtPreferredTier(t *testing.T) {
	selector := NewSelector(fullRegistry(true, true), false, zerolog.Nop())

	// Tiers above the preference are never attempted.
	plan := selector.Plan(TierLocalSimulator, 8)
	assert.Equal(t, []string{"local", "ref"}, planIDs(plan))
}

func TestSelector_SkipsInsufficientCapacity(t *testing.T) {
	selector := NewSelector(fullRegistry(true, true), false, zerolog.Nop())

	// 25 qubits exceeds local simulator capacity (20).
	plan := selector.Plan(TierHardware, 25)
	assert.Equal(t, []string{"hw", "remote", "ref"}, planIDs(plan))
}

func TestSelector_SkipsUnavailableBackends(t *testing.T) {
	selector := NewSelector(fullRegistry(false, false), false, zerolog.Nop())

	plan := selector.Plan(TierHardware, 8)
	assert.Equal(t, []string{"local", "ref"}, planIDs(plan))
}

func TestSelector_ReferenceSamplerAlwaysLast(t *testing.T) {
	// Everything unavailable: the reference sampler must still terminate
	// the plan so the loop can always make progress.
	registry := testRegistry()
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127}, staticProber(false))
	registry.Register(Descriptor{ID: "remote", Tier: TierRemoteSimulator, MaxQubits: 32}, staticProber(false))
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20}, staticProber(false))
	registry.Register(Descriptor{ID: "ref", Tier: TierReferenceSampler, MaxQubits: 24}, AlwaysAvailable{})

	selector := NewSelector(registry, false, zerolog.Nop())
	plan := selector.Plan(TierHardware, 8)
	require.NotEmpty(t, plan)
	assert.Equal(t, []string{"ref"}, planIDs(plan))
}

func TestSelector_LocalOnlyExcludesNetworkTiers(t *testing.T) {
	selector := NewSelector(fullRegistry(true, true), true, zerolog.Nop())

	plan := selector.Plan(TierHardware, 8)
	assert.Equal(t, []string{"local", "ref"}, planIDs(plan))
}

func TestSelector_StatelessAcrossCalls(t *testing.T) {
	registry := testRegistry()
	registry.SetCacheTTL(0)

	// A backend that recovers between calls reappears in the next plan.
	recovered := false
	registry.Register(Descriptor{ID: "remote", Tier: TierRemoteSimulator, MaxQubits: 32},
		ProberFunc(func(ctx context.Context, desc Descriptor) bool { return recovered }))
	registry.Register(Descriptor{ID: "ref", Tier: TierReferenceSampler, MaxQubits: 24}, AlwaysAvailable{})

	selector := NewSelector(registry, false, zerolog.Nop())
	assert.Equal(t, []string{"ref"}, planIDs(selector.Plan(TierRemoteSimulator, 8)))

	recovered = true
	assert.Equal(t, []string{"remote", "ref"}, planIDs(selector.Plan(TierRemoteSimulator, 8)))
}
