package tensors

import (
	"testing"

	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, 6, tensor.Size())
	require.Equal(t, dtypes.Float32, tensor.DType())
	ConstFlatData(tensor, func(flat []float32) {
		for _, v := range flat {
			assert.Zero(t, v)
		}
	})
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]int8{1, 2, 3, 4}, 2, 2)
	require.True(t, tensor.Shape().Equal(shapes.Make(dtypes.Int8, 2, 2)))
	require.Equal(t, []int8{1, 2, 3, 4}, CopyFlatData[int8](tensor))

	// Wrong data size must panic.
	require.Panics(t, func() { FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 2) })

	// Accessing with the wrong generics type must panic.
	require.Panics(t, func() {
		ConstFlatData(tensor, func(flat []float32) {})
	})
}

func TestFromScalarAndDimensions(t *testing.T) {
	tensor := FromScalarAndDimensions(float32(0.1), 3, 2)
	ConstFlatData(tensor, func(flat []float32) {
		for _, v := range flat {
			assert.Equal(t, float32(0.1), v)
		}
	})
}

func TestCloneAndEqual(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	clone := tensor.Clone()
	require.True(t, tensor.Equal(clone))

	MutableFlatData(clone, func(flat []float32) {
		flat[0] = 7
	})
	require.False(t, tensor.Equal(clone))
	require.Equal(t, float32(1), CopyFlatData[float32](tensor)[0])

	// Different shapes are never equal, even with the same data.
	other := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	require.False(t, tensor.Equal(other))
}

func TestQuantParams(t *testing.T) {
	q := QuantParams{Scale: 0.1, ZeroPoint: 3}
	assert.Equal(t, int8(6), q.QuantizeInt8(0.25))
	assert.InDelta(t, 0.3, q.Dequantize(6), 1e-12)

	// Clamping at the int8 limits.
	assert.Equal(t, int8(127), q.QuantizeInt8(1e6))
	assert.Equal(t, int8(-128), q.QuantizeInt8(-1e6))

	tensor := FromFlatDataAndDimensions([]int8{-3, 3, 13}, 3)
	tensor.SetQuantParams(q)
	require.NotNil(t, tensor.QuantParams())
	assert.InDeltaSlice(t, []float64{-0.6, 0, 1}, tensor.Float64Values(), 1e-12)

	clone := tensor.Clone()
	require.True(t, tensor.Equal(clone))
	require.NotNil(t, clone.QuantParams())

	// Float tensors cannot carry quantization parameters.
	require.Panics(t, func() {
		FromShape(shapes.Make(dtypes.Float32, 2)).SetQuantParams(q)
	})
	// Scale must be positive.
	require.Panics(t, func() {
		FromShape(shapes.Make(dtypes.Int8, 2)).SetQuantParams(QuantParams{Scale: 0})
	})
}

func TestMinMax(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{0.5, -1.5, 3, 0}, 2, 2)
	minV, maxV := tensor.MinMax()
	assert.Equal(t, -1.5, minV)
	assert.Equal(t, 3.0, maxV)

	constant := FromScalarAndDimensions(float32(0.1), 4)
	minV, maxV = constant.MinMax()
	assert.Equal(t, minV, maxV)
}

func TestConvertTo(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 0.1, -2.5}, 3)
	half := tensor.ConvertTo(dtypes.Float16)
	require.Equal(t, dtypes.Float16, half.DType())
	ConstFlatData(half, func(flat []float16.Float16) {
		assert.Equal(t, float16.Fromfloat32(0.1), flat[1])
	})

	// 0.1 is not representable in half precision: the round trip moves it.
	back := half.ConvertTo(dtypes.Float32)
	values := back.Float64Values()
	assert.NotEqual(t, 0.1, values[1])
	assert.InDelta(t, 0.1, values[1], 1e-4)

	// Exactly representable values round trip unchanged.
	assert.Equal(t, 1.0, values[0])
	assert.Equal(t, -2.5, values[2])

	require.Panics(t, func() {
		FromFlatDataAndDimensions([]int8{1}, 1).ConvertTo(dtypes.Float32)
	})
}
