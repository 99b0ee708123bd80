package program

import (
	"context"
	"testing"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/shapeinference"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumKernel ignores the kernel semantics and returns the element count of the output:
// enough to see the plumbing deliver resolved operands and shapes.
func sumKernel(ctx context.Context, kind backends.KernelKind, attrs backends.KernelAttrs,
	operands []*tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	result := tensors.FromShape(output)
	tensors.MutableFlatData(result, func(flat []float32) {
		for i := range flat {
			flat[i] = float32(len(operands))
		}
	})
	return result, nil
}

func buildFC(t *testing.T, eval KernelFunc) (*Builder, backends.Executable) {
	b := NewBuilder("test", "testbackend", eval)
	input, err := b.Parameter("input", shapes.Make(dtypes.Float32, 2, 3))
	require.NoError(t, err)
	weights, err := b.Constant(tensors.FromShape(shapes.Make(dtypes.Float32, 3, 2)))
	require.NoError(t, err)
	bias, err := b.Constant(tensors.FromShape(shapes.Make(dtypes.Float32, 2)))
	require.NoError(t, err)
	kernel, err := b.Kernel(backends.KernelFullyConnected, backends.KernelAttrs{}, input, weights, bias)
	require.NoError(t, err)
	exec, err := b.Compile(kernel)
	require.NoError(t, err)
	return b, exec
}

func TestBuilderAndExecutable(t *testing.T) {
	b, exec := buildFC(t, sumKernel)

	names, inputShapes := exec.Inputs()
	require.Equal(t, []string{"input"}, names)
	require.Len(t, inputShapes, 1)
	assert.True(t, shapes.Make(dtypes.Float32, 2, 3).Equal(inputShapes[0]))
	outputShapes := exec.Outputs()
	require.Len(t, outputShapes, 1)
	assert.True(t, shapes.Make(dtypes.Float32, 2, 2).Equal(outputShapes[0]))

	// The builder is single-use.
	_, err := b.Parameter("late", shapes.Make(dtypes.Float32, 1))
	require.Error(t, err)

	outputs, err := exec.Execute(context.Background(), tensors.FromShape(shapes.Make(dtypes.Float32, 2, 3)))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, []float32{3, 3, 3, 3}, tensors.CopyFlatData[float32](outputs[0]))
}

func TestExecutableInputValidation(t *testing.T) {
	_, exec := buildFC(t, sumKernel)

	_, err := exec.Execute(context.Background())
	require.Error(t, err)
	_, err = exec.Execute(context.Background(), tensors.FromShape(shapes.Make(dtypes.Float32, 3, 2)))
	require.Error(t, err)
	_, err = exec.Execute(context.Background(), tensors.FromShape(shapes.Make(dtypes.Float64, 2, 3)))
	require.Error(t, err)

	exec.Finalize()
	_, err = exec.Execute(context.Background(), tensors.FromShape(shapes.Make(dtypes.Float32, 2, 3)))
	require.Error(t, err)
}

func TestBuilderRejectsForeignOps(t *testing.T) {
	b1 := NewBuilder("one", "testbackend", sumKernel)
	b2 := NewBuilder("two", "testbackend", sumKernel)
	op1, err := b1.Parameter("x", shapes.Make(dtypes.Float32, 2, 3))
	require.NoError(t, err)
	_, err = b2.Kernel(backends.KernelFullyConnected, backends.KernelAttrs{}, op1)
	require.Error(t, err)
	_, err = b2.Kernel(backends.KernelFullyConnected, backends.KernelAttrs{}, "not an op")
	require.Error(t, err)
}

func TestBuilderShapeRules(t *testing.T) {
	b := NewBuilder("bad", "testbackend", sumKernel)
	lhs, err := b.Parameter("lhs", shapes.Make(dtypes.Float32, 4, 10, 32))
	require.NoError(t, err)
	rhs, err := b.Constant(tensors.FromShape(shapes.Make(dtypes.Float32, 4, 64, 10)))
	require.NoError(t, err)
	_, err = b.Kernel(backends.KernelBatchedMatMul, backends.KernelAttrs{}, lhs, rhs)
	require.ErrorIs(t, err, shapeinference.ErrInvalidConfiguration)
}

func TestExecuteHonorsContext(t *testing.T) {
	_, exec := buildFC(t, sumKernel)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := exec.Execute(ctx, tensors.FromShape(shapes.Make(dtypes.Float32, 2, 3)))
	require.ErrorIs(t, err, context.Canceled)
}
