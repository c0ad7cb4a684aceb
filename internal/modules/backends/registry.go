package backends

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/quantfolio/qpo/internal/events"
)

const (
	// DefaultProbeTimeout bounds a single availability probe.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultCacheTTL is how long a probe result stays fresh. Staleness is
	// tolerable because executor-side failure classification, not the cached
	// availability, is the authoritative fallback signal.
	DefaultCacheTTL = 30 * time.Second

	// statevectorBytesPerAmp is the memory footprint of one complex128
	// statevector amplitude.
	statevectorBytesPerAmp = 16
)

// Prober checks whether a backend can currently be used. Probes may touch
// the network and must respect the context deadline.
type Prober interface {
	Probe(ctx context.Context, desc Descriptor) bool
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, desc Descriptor) bool

// Probe implements Prober
func (f ProberFunc) Probe(ctx context.Context, desc Descriptor) bool {
	return f(ctx, desc)
}

type probeResult struct {
	available bool
	at        time.Time
}

// Registry enumerates configured execution backends and tracks their
// availability. Configured backends are never dropped, only marked
// unavailable. Probe results are cached for a short interval to avoid
// re-probing on every optimizer iteration.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	descs    map[string]Descriptor
	probers  map[string]Prober
	cache    map[string]probeResult
	cacheTTL time.Duration
	timeout  time.Duration
	eventMgr *events.Manager
	log      zerolog.Logger
}

// NewRegistry creates an empty backend registry
func NewRegistry(eventMgr *events.Manager, log zerolog.Logger) *Registry {
	return &Registry{
		descs:    make(map[string]Descriptor),
		probers:  make(map[string]Prober),
		cache:    make(map[string]probeResult),
		cacheTTL: DefaultCacheTTL,
		timeout:  DefaultProbeTimeout,
		eventMgr: eventMgr,
		log:      log.With().Str("component", "backend_registry").Logger(),
	}
}

// SetCacheTTL overrides the probe cache TTL. Zero disables caching.
func (r *Registry) SetCacheTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheTTL = ttl
}

// Register adds a backend with its availability prober. Re-registering an
// ID replaces the previous entry.
func (r *Registry) Register(desc Descriptor, prober Prober) {
	desc.TierName = desc.Tier.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descs[desc.ID]; !exists {
		r.order = append(r.order, desc.ID)
	}
	r.descs[desc.ID] = desc
	r.probers[desc.ID] = prober
	delete(r.cache, desc.ID)
}

// Get returns the descriptor for an ID
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descs[id]
	return desc, ok
}

// List returns descriptors matching the filter, ordered by tier (highest
// first) and then by registration order within a tier.
func (r *Registry) List(filter Filter) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		if desc := r.descs[id]; filter.matches(desc) {
			result = append(result, desc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Tier > result[j].Tier
	})
	return result
}

// Availability reports whether a backend can currently be used. Results are
// cached for the configured TTL; a cache miss triggers a synchronous probe
// bounded by the probe timeout.
func (r *Registry) Availability(id string) bool {
	r.mu.RLock()
	desc, ok := r.descs[id]
	if !ok {
		r.mu.RUnlock()
		return false
	}
	if cached, hit := r.cache[id]; hit && r.cacheTTL > 0 && time.Since(cached.at) < r.cacheTTL {
		r.mu.RUnlock()
		return cached.available
	}
	prober := r.probers[id]
	timeout := r.timeout
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	available := prober.Probe(ctx, desc)

	r.mu.Lock()
	r.cache[id] = probeResult{available: available, at: time.Now()}
	r.mu.Unlock()

	return available
}

// ProbeAll re-probes every configured backend, refreshing the cache and
// emitting one BackendProbed event per backend.
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	timeout := r.timeout
	r.mu.RUnlock()

	for _, id := range ids {
		r.mu.RLock()
		desc := r.descs[id]
		prober := r.probers[id]
		r.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		available := prober.Probe(probeCtx, desc)
		cancel()

		r.mu.Lock()
		r.cache[id] = probeResult{available: available, at: time.Now()}
		r.mu.Unlock()

		r.log.Debug().
			Str("backend", id).
			Str("tier", desc.Tier.String()).
			Bool("available", available).
			Msg("Probed backend")

		if r.eventMgr != nil {
			r.eventMgr.EmitTyped(events.BackendProbed, "backends", &events.BackendProbedData{
				BackendID: id,
				Tier:      desc.Tier.String(),
				Available: available,
			})
		}
	}
}

// Statuses returns every configured backend with its current availability.
func (r *Registry) Statuses() []Status {
	descs := r.List(Filter{})
	statuses := make([]Status, 0, len(descs))
	for _, desc := range descs {
		statuses = append(statuses, Status{
			Descriptor: desc,
			Available:  r.Availability(desc.ID),
		})
	}
	return statuses
}

// GatewayProber probes a remote quantum runtime gateway's health endpoint.
type GatewayProber struct {
	BaseURL string
	Client  *http.Client
}

// Probe implements Prober
func (p *GatewayProber) Probe(ctx context.Context, desc Descriptor) bool {
	if p.BaseURL == "" {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// MemoryProber checks that the host has enough free memory to hold a full
// statevector for the backend's qubit capacity.
type MemoryProber struct{}

// Probe implements Prober
func (MemoryProber) Probe(ctx context.Context, desc Descriptor) bool {
	stat, err := mem.VirtualMemory()
	if err != nil {
		// Probe failure should not disable the local simulator outright;
		// the executor's own classification catches real allocation issues.
		return true
	}
	required := uint64(statevectorBytesPerAmp) << uint(desc.MaxQubits)
	return stat.Available >= required
}

// AlwaysAvailable is the prober for the reference sampler tier.
type AlwaysAvailable struct{}

// Probe implements Prober
func (AlwaysAvailable) Probe(ctx context.Context, desc Descriptor) bool {
	return true
}
