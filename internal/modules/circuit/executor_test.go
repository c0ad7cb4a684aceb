package circuit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/qpo/internal/modules/backends"
	"github.com/quantfolio/qpo/internal/modules/encoding"
)

// twoAssetIsing builds a small problem where selecting exactly asset 0 is
// optimal: strong negative return on asset 0, coupling penalty between both.
func twoAssetIsing() *encoding.IsingForm {
	problem := &encoding.QUBOProblem{
		Size: 2,
		Q: [][]float64{
			{-4, 1},
			{1, -1},
		},
	}
	return problem.Ising()
}

func testRequest(depth int) *Request {
	params := make([]float64, 2*depth)
	for i := range params {
		params[i] = 0.1
	}
	return &Request{
		Ising:  twoAssetIsing(),
		Depth:  depth,
		Params: params,
		Shots:  256,
		Seed:   42,
	}
}

func localDesc(maxQubits int) backends.Descriptor {
	return backends.Descriptor{ID: "local", Tier: backends.TierLocalSimulator, MaxQubits: maxQubits}
}

type stubEngine struct {
	result *Result
	err    error
	calls  int
}

func (s *stubEngine) Execute(ctx context.Context, desc backends.Descriptor, req *Request) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestDispatcher_RoutesByTier(t *testing.T) {
	local := &stubEngine{result: &Result{BackendID: "local"}}
	reference := &stubEngine{result: &Result{BackendID: "ref"}}
	dispatcher := NewDispatcherWithEngines(map[backends.Tier]Executor{
		backends.TierLocalSimulator:   local,
		backends.TierReferenceSampler: reference,
	}, zerolog.Nop())

	result, err := dispatcher.Execute(context.Background(), localDesc(20), testRequest(1))
	require.NoError(t, err)
	assert.Equal(t, "local", result.BackendID)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, 0, reference.calls)
}

func TestDispatcher_UnknownTierUnavailable(t *testing.T) {
	dispatcher := NewDispatcherWithEngines(map[backends.Tier]Executor{}, zerolog.Nop())

	_, err := dispatcher.Execute(context.Background(), localDesc(20), testRequest(1))
	assert.True(t, IsUnavailable(err))
}

func TestValidateRequest_MalformedIsFatal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero depth", func(r *Request) { r.Depth = 0 }},
		{"params length mismatch", func(r *Request) { r.Params = r.Params[:1] }},
		{"zero shots", func(r *Request) { r.Shots = 0 }},
		{"empty problem", func(r *Request) { r.Ising = &encoding.IsingForm{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(1)
			tt.mutate(req)
			err := validateRequest(localDesc(20), req)
			require.Error(t, err)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestRequest_ParamSplit(t *testing.T) {
	req := &Request{
		Ising:  twoAssetIsing(),
		Depth:  2,
		Params: []float64{0.1, 0.2, 0.3, 0.4},
	}
	assert.Equal(t, []float64{0.1, 0.2}, req.Gammas())
	assert.Equal(t, []float64{0.3, 0.4}, req.Betas())
}
