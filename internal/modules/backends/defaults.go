package backends

import "net/http"

// Default backend identifiers.
const (
	BackendIBMHardware      = "ibm-hardware"
	BackendCloudSimulator   = "cloud-simulator"
	BackendLocalStatevector = "statevector-simulator"
	BackendReferenceSampler = "reference-sampler"
)

// RegisterDefaults configures the standard four-tier backend set.
// Network tiers probe the runtime gateway at gatewayURL; an empty URL leaves
// them configured but unavailable.
func RegisterDefaults(registry *Registry, gatewayURL string, client *http.Client) {
	gateway := &GatewayProber{BaseURL: gatewayURL, Client: client}

	registry.Register(Descriptor{
		ID:              BackendIBMHardware,
		Tier:            TierHardware,
		MaxQubits:       127,
		Latency:         LatencyQueued,
		RequiresNetwork: true,
		Stochastic:      true,
	}, gateway)

	registry.Register(Descriptor{
		ID:              BackendCloudSimulator,
		Tier:            TierRemoteSimulator,
		MaxQubits:       32,
		Latency:         LatencyModerate,
		RequiresNetwork: true,
		Stochastic:      true,
	}, gateway)

	registry.Register(Descriptor{
		ID:              BackendLocalStatevector,
		Tier:            TierLocalSimulator,
		MaxQubits:       20,
		Latency:         LatencyFast,
		RequiresNetwork: false,
		Stochastic:      true,
	}, MemoryProber{})

	registry.Register(Descriptor{
		ID:              BackendReferenceSampler,
		Tier:            TierReferenceSampler,
		MaxQubits:       24,
		Latency:         LatencyFast,
		RequiresNetwork: false,
		Stochastic:      false,
	}, AlwaysAvailable{})
}
