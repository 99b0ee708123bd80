package tensors

import (
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// ConvertTo returns a new tensor with the same dimensions and the values converted to
// the given float dtype. Converting to Float16 rounds the values to their nearest
// half-precision representation (IEEE 754 round-to-nearest-even), which is where the
// reduced-precision numerical differences come from.
//
// Only float-to-float conversions are supported; quantization to integers is a
// separate operation (see the precisions package).
func (t *Tensor) ConvertTo(dtype dtypes.DType) *Tensor {
	t.AssertValid()
	if !t.DType().IsFloat() || !dtype.IsFloat() {
		exceptions.Panicf("tensors.ConvertTo(%s): only float conversions are supported, tensor is %s",
			dtype, t.shape)
	}
	if dtype == t.DType() {
		return t.Clone()
	}
	t2 := FromShape(shapes.Make(dtype, t.shape.Dimensions...))
	values := t.Float64Values()
	switch flat := t2.flat.(type) {
	case []float32:
		for ii, v := range values {
			flat[ii] = float32(v)
		}
	case []float64:
		copy(flat, values)
	case []float16.Float16:
		for ii, v := range values {
			flat[ii] = float16.Fromfloat32(float32(v))
		}
	default:
		exceptions.Panicf("tensors.ConvertTo(%s): unsupported conversion", dtype)
	}
	return t2
}
