package shapeinference

import (
	"testing"

	. "github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	I8  = dtypes.Int8
	I32 = dtypes.Int32
	F16 = dtypes.Float16
	F32 = dtypes.Float32

	MS = shapes.Make
)

func TestConv2DOp(t *testing.T) {
	// size=5, depth=8, kernel=3, no stride/padding: 5x5 -> 3x3.
	output, err := Conv2DOp(KernelAttrs{},
		MS(F32, 1, 5, 5, 8), MS(F32, 8, 3, 3, 8), MS(F32, 8))
	require.NoError(t, err)
	require.True(t, MS(F32, 1, 3, 3, 8).Equal(output))

	// kernel=1 keeps the spatial dims.
	output, err = Conv2DOp(KernelAttrs{},
		MS(F32, 2, 7, 7, 64), MS(F32, 64, 1, 1, 64), MS(F32, 64))
	require.NoError(t, err)
	require.True(t, MS(F32, 2, 7, 7, 64).Equal(output))

	// Strides and padding: (5 + 2*1 - 3)/2 + 1 = 3.
	output, err = Conv2DOp(KernelAttrs{Strides: 2, Padding: 1},
		MS(F32, 1, 5, 5, 8), MS(F32, 8, 3, 3, 8), MS(F32, 8))
	require.NoError(t, err)
	require.True(t, MS(F32, 1, 3, 3, 8).Equal(output))

	// Quantized convs accumulate the bias in Int32.
	output, err = Conv2DOp(KernelAttrs{},
		MS(I8, 1, 5, 5, 8), MS(I8, 8, 3, 3, 8), MS(I32, 8))
	require.NoError(t, err)
	require.True(t, MS(I8, 1, 3, 3, 8).Equal(output))
	_, err = Conv2DOp(KernelAttrs{},
		MS(I8, 1, 5, 5, 8), MS(I8, 8, 3, 3, 8), MS(I8, 8))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	// A filter larger than the padded input cannot run.
	_, err = Conv2DOp(KernelAttrs{},
		MS(F32, 1, 5, 5, 8), MS(F32, 8, 15, 15, 8), MS(F32, 8))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	// Channel mismatch between input and filter.
	_, err = Conv2DOp(KernelAttrs{},
		MS(F32, 1, 5, 5, 8), MS(F32, 8, 3, 3, 4), MS(F32, 8))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	// Mixed float dtypes are rejected.
	_, err = Conv2DOp(KernelAttrs{},
		MS(F32, 1, 5, 5, 8), MS(F16, 8, 3, 3, 8), MS(F32, 8))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestBatchedMatMulOp(t *testing.T) {
	output, err := BatchedMatMulOp(MS(F32, 4, 10, 32), MS(F32, 4, 32, 10))
	require.NoError(t, err)
	require.True(t, MS(F32, 4, 10, 10).Equal(output))

	_, err = BatchedMatMulOp(MS(F32, 4, 10, 32), MS(F32, 2, 32, 10))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = BatchedMatMulOp(MS(F32, 4, 10, 32), MS(F32, 4, 64, 10))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = BatchedMatMulOp(MS(F32, 10, 32), MS(F32, 32, 10))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestFullyConnectedOp(t *testing.T) {
	output, err := FullyConnectedOp(MS(F32, 4, 256), MS(F32, 256, 64), MS(F32, 64))
	require.NoError(t, err)
	require.True(t, MS(F32, 4, 64).Equal(output))

	output, err = FullyConnectedOp(MS(I8, 4, 256), MS(I8, 256, 64), MS(I32, 64))
	require.NoError(t, err)
	require.True(t, MS(I8, 4, 64).Equal(output))

	_, err = FullyConnectedOp(MS(F32, 4, 256), MS(F32, 512, 64), MS(F32, 64))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = FullyConnectedOp(MS(F32, 4, 256), MS(F32, 256, 64), MS(F32, 32))
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestKernelOutputShape(t *testing.T) {
	output, err := KernelOutputShape(KernelFullyConnected, KernelAttrs{},
		MS(F32, 1, 256), MS(F32, 256, 64), MS(F32, 64))
	require.NoError(t, err)
	require.True(t, MS(F32, 1, 64).Equal(output))

	// Wrong number of inputs.
	_, err = KernelOutputShape(KernelBatchedMatMul, KernelAttrs{}, MS(F32, 4, 10, 32))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	// Unknown kinds are a caller bug, not a configuration skip.
	_, err = KernelOutputShape(KernelInvalid, KernelAttrs{}, MS(F32, 2, 2))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInvalidConfiguration))
}
