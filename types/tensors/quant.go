package tensors

import (
	"fmt"
	"math"

	"github.com/gomlx/crosscheck/types/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// QuantParams hold the affine quantization parameters of an integer tensor:
// real = Scale * (quantized - ZeroPoint).
//
// Scale is always > 0. Symmetric quantization (used for weights) has ZeroPoint == 0.
// Int32 bias tensors carry QuantParams with Scale = inputScale*weightScale and
// ZeroPoint == 0.
type QuantParams struct {
	Scale     float64
	ZeroPoint int32
}

// String implements fmt.Stringer.
func (q QuantParams) String() string {
	return fmt.Sprintf("{scale=%g, zeroPoint=%d}", q.Scale, q.ZeroPoint)
}

// Dequantize converts a quantized value back to its real value.
func (q QuantParams) Dequantize(value int32) float64 {
	return q.Scale * float64(value-q.ZeroPoint)
}

// QuantizeInt8 converts a real value to its int8 quantized form: round half away from
// zero, then clamp to the int8 range.
func (q QuantParams) QuantizeInt8(value float64) int8 {
	v := math.Round(value/q.Scale) + float64(q.ZeroPoint)
	if v > math.MaxInt8 {
		return math.MaxInt8
	}
	if v < math.MinInt8 {
		return math.MinInt8
	}
	return int8(v)
}

// QuantizeInt32 converts a real value to its int32 quantized form (used for biases).
func (q QuantParams) QuantizeInt32(value float64) int32 {
	v := math.Round(value/q.Scale) + float64(q.ZeroPoint)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// QuantParams returns the quantization parameters of the tensor, or nil if the tensor
// is not quantized.
func (t *Tensor) QuantParams() *QuantParams {
	return t.quant
}

// SetQuantParams attaches quantization parameters to the tensor. Only integer tensors
// can be quantized, and scale must be > 0.
func (t *Tensor) SetQuantParams(q QuantParams) *Tensor {
	t.AssertValid()
	dtype := t.DType()
	if dtype != dtypes.Int8 && dtype != dtypes.Int32 {
		exceptions.Panicf("tensors.SetQuantParams: dtype %s cannot carry quantization parameters", dtype)
	}
	if q.Scale <= 0 || math.IsNaN(q.Scale) || math.IsInf(q.Scale, 0) {
		exceptions.Panicf("tensors.SetQuantParams: invalid scale %g", q.Scale)
	}
	t.quant = &q
	return t
}

// Float64Values materializes the tensor contents as a []float64 slice: floats are
// upcast, quantized integers are dequantized with the tensor's QuantParams, and plain
// integers are cast. This is the input format of the equivalence judge.
func (t *Tensor) Float64Values() []float64 {
	t.AssertValid()
	out := make([]float64, t.Size())
	switch flat := t.flat.(type) {
	case []float64:
		copy(out, flat)
	case []float32:
		for ii, v := range flat {
			out[ii] = float64(v)
		}
	case []float16.Float16:
		for ii, v := range flat {
			out[ii] = float64(v.Float32())
		}
	case []int8:
		if t.quant != nil {
			for ii, v := range flat {
				out[ii] = t.quant.Dequantize(int32(v))
			}
		} else {
			for ii, v := range flat {
				out[ii] = float64(v)
			}
		}
	case []int32:
		if t.quant != nil {
			for ii, v := range flat {
				out[ii] = t.quant.Dequantize(v)
			}
		} else {
			for ii, v := range flat {
				out[ii] = float64(v)
			}
		}
	default:
		exceptions.Panicf("tensors: unsupported flat data type %T", t.flat)
	}
	return out
}

// MinMax returns the smallest and largest real value in the tensor. Float16 values are
// widened, quantized integers are dequantized. It panics on an empty tensor.
func (t *Tensor) MinMax() (minValue, maxValue float64) {
	values := t.Float64Values()
	if len(values) == 0 {
		exceptions.Panicf("tensors.MinMax: tensor %s has no values", t.shape)
	}
	return xslices.Min(values), xslices.Max(values)
}
