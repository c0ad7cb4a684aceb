package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/qpo/internal/events"
)

func testRegistry() *Registry {
	return NewRegistry(nil, zerolog.Nop())
}

func staticProber(available bool) Prober {
	return ProberFunc(func(ctx context.Context, desc Descriptor) bool {
		return available
	})
}

func TestRegistry_ListOrdersByTier(t *testing.T) {
	registry := testRegistry()
	registry.Register(Descriptor{ID: "ref", Tier: TierReferenceSampler, MaxQubits: 24}, staticProber(true))
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20}, staticProber(true))
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127}, staticProber(true))

	descs := registry.List(Filter{})
	require.Len(t, descs, 3)
	assert.Equal(t, "hw", descs[0].ID)
	assert.Equal(t, "local", descs[1].ID)
	assert.Equal(t, "ref", descs[2].ID)
}

func TestRegistry_ListFilters(t *testing.T) {
	registry := testRegistry()
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127}, staticProber(true))
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20}, staticProber(true))

	local := TierLocalSimulator
	descs := registry.List(Filter{Tier: &local})
	require.Len(t, descs, 1)
	assert.Equal(t, "local", descs[0].ID)

	descs = registry.List(Filter{MinQubits: 32})
	require.Len(t, descs, 1)
	assert.Equal(t, "hw", descs[0].ID)
}

func TestRegistry_NeverDropsConfiguredBackends(t *testing.T) {
	registry := testRegistry()
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127}, staticProber(false))

	// Unavailable backends stay listed, only marked unavailable.
	assert.Len(t, registry.List(Filter{}), 1)
	assert.False(t, registry.Availability("hw"))
	assert.Len(t, registry.List(Filter{}), 1)
}

func TestRegistry_AvailabilityCaching(t *testing.T) {
	registry := testRegistry()

	var probes atomic.Int32
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20},
		ProberFunc(func(ctx context.Context, desc Descriptor) bool {
			probes.Add(1)
			return true
		}))

	assert.True(t, registry.Availability("local"))
	assert.True(t, registry.Availability("local"))
	assert.Equal(t, int32(1), probes.Load(), "second call must be served from cache")

	// Expired cache triggers a fresh probe.
	registry.SetCacheTTL(time.Nanosecond)
	time.Sleep(time.Millisecond)
	assert.True(t, registry.Availability("local"))
	assert.Equal(t, int32(2), probes.Load())
}

func TestRegistry_AvailabilityUnknownBackend(t *testing.T) {
	registry := testRegistry()
	assert.False(t, registry.Availability("nope"))
}

func TestRegistry_ProbeAllEmitsEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Close()
	manager := events.NewManager(bus, zerolog.Nop())

	received := make(chan *events.Event, 4)
	bus.Subscribe(events.BackendProbed, func(event *events.Event) {
		received <- event
	})

	registry := NewRegistry(manager, zerolog.Nop())
	registry.Register(Descriptor{ID: "local", Tier: TierLocalSimulator, MaxQubits: 20}, staticProber(true))
	registry.Register(Descriptor{ID: "hw", Tier: TierHardware, MaxQubits: 127}, staticProber(false))

	registry.ProbeAll(context.Background())

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case event := <-received:
			data, ok := event.GetTypedData().(*events.BackendProbedData)
			require.True(t, ok)
			seen[data.BackendID] = data.Available
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for probe events")
		}
	}
	assert.Equal(t, map[string]bool{"local": true, "hw": false}, seen)
}

func TestGatewayProber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	prober := &GatewayProber{BaseURL: server.URL}
	assert.True(t, prober.Probe(context.Background(), Descriptor{}))

	// No configured gateway means unavailable.
	empty := &GatewayProber{}
	assert.False(t, empty.Probe(context.Background(), Descriptor{}))

	down := &GatewayProber{BaseURL: "http://127.0.0.1:1"}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.False(t, down.Probe(ctx, Descriptor{}))
}

func TestParseTier(t *testing.T) {
	for _, tier := range TiersDescending() {
		parsed, err := ParseTier(tier.String())
		require.NoError(t, err)
		assert.Equal(t, tier, parsed)
	}

	_, err := ParseTier("warp-drive")
	assert.Error(t, err)
}
