package interp

import (
	"context"
	"testing"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/graph/graphtest"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestRegistration(t *testing.T) {
	require.True(t, backends.IsRegistered(BackendName))
	backend, err := backends.NewWithConfig(BackendName)
	require.NoError(t, err)
	require.Equal(t, BackendName, backend.Name())
	require.NotEmpty(t, backend.Description())
	backend.Finalize()
}

func TestCapabilities(t *testing.T) {
	caps := (&Backend{}).Capabilities()
	require.True(t, caps.Supports(backends.KernelConv2D, dtypes.Float32))
	require.True(t, caps.Supports(backends.KernelBatchedMatMul, dtypes.Float16))
	require.True(t, caps.Supports(backends.KernelFullyConnected, dtypes.Int8, dtypes.Int32))
	require.False(t, caps.Supports(backends.KernelConv2D, dtypes.Float32, dtypes.Int64))
}

func TestKernelCases(t *testing.T) {
	// The fixtures are tiny and their values exactly representable, the interpreter must
	// reproduce them bit-exactly.
	graphtest.RunKernelCases(t, &Backend{}, 0)
}

func TestFullyConnectedFloat16(t *testing.T) {
	cases := graphtest.KernelCases(t)
	g16 := graphtest.Float16Graph(t, cases[0].Graph)
	got, err := graph.Execute(context.Background(), g16, &Backend{}, graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, dtypes.Float16, got.DType())
	// 4.5 and 10.5 are exactly representable in float16.
	require.Equal(t, []float64{4.5, 4.5, 10.5, 10.5}, got.Float64Values())
}

func TestFullyConnectedInt8(t *testing.T) {
	inQ := tensors.QuantParams{Scale: 0.1, ZeroPoint: -5}
	wQ := tensors.QuantParams{Scale: 0.05, ZeroPoint: 0}
	biasQ := tensors.QuantParams{Scale: inQ.Scale * wQ.Scale, ZeroPoint: 0}
	outQ := tensors.QuantParams{Scale: 0.25, ZeroPoint: 3}

	// input reals [1, 2], weights reals [[1, -1], [0.5, 2]], bias reals [0.5, -0.25]:
	// y = [1*1+2*0.5+0.5, 1*-1+2*2-0.25] = [2.5, 2.75].
	g := graph.New("fc-int8", backends.KernelFullyConnected, backends.KernelAttrs{OutputQuant: &outQ}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]int8{5, 15}, 1, 2).SetQuantParams(inQ)).
		AddWeight("weights", tensors.FromFlatDataAndDimensions([]int8{20, -20, 10, 40}, 2, 2).SetQuantParams(wQ)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]int32{100, -50}, 2).SetQuantParams(biasQ))
	require.NoError(t, g.Validate())

	got, err := graph.Execute(context.Background(), g, &Backend{}, graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, dtypes.Int8, got.DType())
	require.Equal(t, []int8{13, 14}, tensors.CopyFlatData[int8](got))
	require.NotNil(t, got.QuantParams())
	require.Equal(t, outQ, *got.QuantParams())
	require.Equal(t, []float64{2.5, 2.75}, got.Float64Values())
}

func TestBatchedMatMulInt8(t *testing.T) {
	lhsQ := tensors.QuantParams{Scale: 0.1, ZeroPoint: 0}
	rhsQ := tensors.QuantParams{Scale: 0.05, ZeroPoint: 0}
	outQ := tensors.QuantParams{Scale: 0.5, ZeroPoint: 0}

	// batch 0: [1, 2] x [1, 0.5]^T = 2;  batch 1: [-1, 4] x [1, 2]^T = 7.
	g := graph.New("bmm-int8", backends.KernelBatchedMatMul, backends.KernelAttrs{OutputQuant: &outQ}).
		AddInput("lhs", tensors.FromFlatDataAndDimensions([]int8{10, 20, -10, 40}, 2, 1, 2).SetQuantParams(lhsQ)).
		AddWeight("rhs", tensors.FromFlatDataAndDimensions([]int8{20, 10, 20, 40}, 2, 2, 1).SetQuantParams(rhsQ))
	require.NoError(t, g.Validate())

	got, err := graph.Execute(context.Background(), g, &Backend{}, graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, []int8{4, 14}, tensors.CopyFlatData[int8](got))
	require.Equal(t, []float64{2, 7}, got.Float64Values())
}

func TestConv2DInt8Padding(t *testing.T) {
	// A single real pixel with a nonzero input zero-point, fully surrounded by padding.
	// Padding must contribute real zero -- not the dequantized value of q=0, which here
	// would be -1.0 -- so each output sees exactly one filter tap.
	inQ := tensors.QuantParams{Scale: 0.5, ZeroPoint: 2}
	wQ := tensors.QuantParams{Scale: 0.25, ZeroPoint: 0}
	biasQ := tensors.QuantParams{Scale: inQ.Scale * wQ.Scale, ZeroPoint: 0}
	outQ := tensors.QuantParams{Scale: 0.125, ZeroPoint: 0}

	g := graph.New("conv-int8-padded", backends.KernelConv2D,
		backends.KernelAttrs{Padding: 1, OutputQuant: &outQ}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]int8{4}, 1, 1, 1, 1).SetQuantParams(inQ)).
		AddWeight("filter", tensors.FromFlatDataAndDimensions([]int8{2, 4, 6, 8}, 1, 2, 2, 1).SetQuantParams(wQ)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]int32{2}, 1).SetQuantParams(biasQ))
	require.NoError(t, g.Validate())

	got, err := graph.Execute(context.Background(), g, &Backend{}, graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2, 1}, got.Shape().Dimensions)
	// Real pixel 1.0, filter taps [0.5, 1.0, 1.5, 2.0], bias 0.25: the output at (oh, ow)
	// sees tap (1-oh, 1-ow), e.g. (0,0) -> 1.0*2.0+0.25 = 2.25 -> q=18.
	require.Equal(t, []int8{18, 14, 10, 6}, tensors.CopyFlatData[int8](got))
	require.Equal(t, []float64{2.25, 1.75, 1.25, 0.75}, got.Float64Values())
}

func TestConv2DStrides(t *testing.T) {
	// 4x4 input, 2x2 sum filter, stride 2: four non-overlapping windows.
	g := graph.New("conv-strides", backends.KernelConv2D, backends.KernelAttrs{Strides: 2}).
		AddInput("input", tensors.FromFlatDataAndDimensions([]float32{
			1, 2, 3, 4,
			5, 6, 7, 8,
			9, 10, 11, 12,
			13, 14, 15, 16,
		}, 1, 4, 4, 1)).
		AddWeight("filter", tensors.FromFlatDataAndDimensions([]float32{1, 1, 1, 1}, 1, 2, 2, 1)).
		AddWeight("bias", tensors.FromFlatDataAndDimensions([]float32{0}, 1))
	require.NoError(t, g.Validate())

	got, err := graph.Execute(context.Background(), g, &Backend{}, graph.ExecOptions{})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2, 1}, got.Shape().Dimensions)
	require.Equal(t, []float64{14, 22, 46, 54}, got.Float64Values())
}
