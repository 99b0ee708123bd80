package pargo

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/interp"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/graph/graphtest"
	"github.com/gomlx/crosscheck/kernels"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/stretchr/testify/require"
)

func newPargo(t *testing.T, config string) *Backend {
	backend, err := New(config)
	require.NoError(t, err)
	return backend.(*Backend)
}

func TestRegistration(t *testing.T) {
	require.True(t, backends.IsRegistered(BackendName))
	backend := newPargo(t, "4")
	require.Equal(t, BackendName, backend.Name())
	require.Equal(t, 4, backend.pool.MaxParallelism())
	require.Contains(t, backend.Description(), "4 workers")

	_, err := New("zero")
	require.Error(t, err)
	_, err = New("0")
	require.Error(t, err)
	_, err = New("-2")
	require.Error(t, err)
}

func TestKernelCases(t *testing.T) {
	// The fixture reductions are shorter than a tile and exactly representable, so even
	// the reassociating float path must reproduce them bit-exactly.
	graphtest.RunKernelCases(t, newPargo(t, ""), 0)
}

func maxAbsDelta(want, got []float64) float64 {
	var worst float64
	for i := range want {
		if d := math.Abs(want[i] - got[i]); d > worst {
			worst = d
		}
	}
	return worst
}

// TestAgreesWithInterp runs the same randomly initialized case on the interpreter and
// on pargo: the tiled float accumulation may differ, but only within the tightest
// tolerance the equivalence judge ever applies.
func TestAgreesWithInterp(t *testing.T) {
	cases := []struct {
		family string
		params kernels.Params
	}{
		{"conv", kernels.Params{"size": 7, "depth": 8, "kernel": 3}},
		{"conv", kernels.Params{"size": 5, "depth": 8, "kernel": 3, "stride": 2, "pad": 1}},
		{"batchedmatmul", kernels.Params{"batch": 4, "rows": 12, "depth": 64}},
		{"fc", kernels.Params{"batch": 4, "depth": 512, "width": 64}},
	}
	reference := &interp.Backend{}
	candidate := newPargo(t, "")
	for _, tc := range cases {
		t.Run(tc.family+"/"+tc.params.String(), func(t *testing.T) {
			spec, err := kernels.ByName(tc.family)
			require.NoError(t, err)
			g, err := spec.Build(tc.family, tc.params, rand.New(rand.NewPCG(1, 2)))
			require.NoError(t, err)

			want, err := graph.Execute(context.Background(), g, reference, graph.ExecOptions{})
			require.NoError(t, err)
			got, err := graph.Execute(context.Background(), g, candidate, graph.ExecOptions{})
			require.NoError(t, err)

			require.True(t, want.Shape().Equal(got.Shape()))
			delta := maxAbsDelta(want.Float64Values(), got.Float64Values())
			require.LessOrEqual(t, delta, 1e-4, "max abs delta %g", delta)
		})
	}
}

func randomInt8s(rng *rand.Rand, n int) []int8 {
	out := make([]int8, n)
	for i := range out {
		out[i] = int8(rng.IntN(256) - 128)
	}
	return out
}

func randomInt32s(rng *rand.Rand, n, bound int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = rng.Int32N(2*bound+1) - bound
	}
	return out
}

// TestInt8MatchesInterpExactly checks the quantized kernels bit for bit: integer
// accumulation is order-independent, so parallel evaluation must change nothing.
func TestInt8MatchesInterpExactly(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	inQ := tensors.QuantParams{Scale: 0.05, ZeroPoint: -3}
	wQ := tensors.QuantParams{Scale: 0.02, ZeroPoint: 0}
	biasQ := tensors.QuantParams{Scale: inQ.Scale * wQ.Scale, ZeroPoint: 0}
	outQ := tensors.QuantParams{Scale: 4.0, ZeroPoint: 1}

	graphs := []*graph.Graph{
		graph.New("fc-int8", backends.KernelFullyConnected, backends.KernelAttrs{OutputQuant: &outQ}).
			AddInput("input", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 3*32), 3, 32).SetQuantParams(inQ)).
			AddWeight("weights", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 32*8), 32, 8).SetQuantParams(wQ)).
			AddWeight("bias", tensors.FromFlatDataAndDimensions(randomInt32s(rng, 8, 1000), 8).SetQuantParams(biasQ)),
		graph.New("conv-int8", backends.KernelConv2D, backends.KernelAttrs{Strides: 2, Padding: 1, OutputQuant: &outQ}).
			AddInput("input", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 5*5*4), 1, 5, 5, 4).SetQuantParams(inQ)).
			AddWeight("filter", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 4*3*3*4), 4, 3, 3, 4).SetQuantParams(wQ)).
			AddWeight("bias", tensors.FromFlatDataAndDimensions(randomInt32s(rng, 4, 1000), 4).SetQuantParams(biasQ)),
		graph.New("bmm-int8", backends.KernelBatchedMatMul, backends.KernelAttrs{OutputQuant: &outQ}).
			AddInput("lhs", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 2*4*16), 2, 4, 16).SetQuantParams(inQ)).
			AddWeight("rhs", tensors.FromFlatDataAndDimensions(randomInt8s(rng, 2*16*4), 2, 16, 4).SetQuantParams(wQ)),
	}
	reference := &interp.Backend{}
	candidate := newPargo(t, "")
	for _, g := range graphs {
		t.Run(g.Name(), func(t *testing.T) {
			require.NoError(t, g.Validate())
			want, err := graph.Execute(context.Background(), g, reference, graph.ExecOptions{})
			require.NoError(t, err)
			got, err := graph.Execute(context.Background(), g, candidate, graph.ExecOptions{})
			require.NoError(t, err)
			require.Equal(t, tensors.CopyFlatData[int8](want), tensors.CopyFlatData[int8](got))
			require.Equal(t, *want.QuantParams(), *got.QuantParams())
		})
	}
}

// TestWorkerCountDoesNotChangeResults: the accumulation tiling is fixed, not derived
// from the schedule, so any worker count produces identical bits.
func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	spec, err := kernels.ByName("fc")
	require.NoError(t, err)
	g, err := spec.Build("fc-workers", kernels.Params{"batch": 8, "depth": 300, "width": 40},
		rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)

	serial, err := graph.Execute(context.Background(), g, newPargo(t, "1"), graph.ExecOptions{})
	require.NoError(t, err)
	parallel, err := graph.Execute(context.Background(), g, newPargo(t, "8"), graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, tensors.CopyFlatData[float32](serial), tensors.CopyFlatData[float32](parallel))
}
