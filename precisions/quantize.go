package precisions

import (
	"math"

	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrDegenerateRange reports that a realized value range was a single point and had to
// be repaired before quantization. It rides a notice, not a failure: the returned
// parameters are valid and the case proceeds normally.
var ErrDegenerateRange = errors.New("degenerate quantization range")

// minimalRange substitutes an all-zero realized range.
const minimalRange = 1e-6

// ChooseQuantParams maps the realized value range [minValue, maxValue] onto the int8
// grid under the given policy. The returned scale is always > 0 and real zero is always
// exactly representable.
//
// A single-point range is repaired deterministically: widened to include zero, and if
// still a point (every value zero) substituted by the minimal range [0, 1e-6]
// (symmetric: ±1e-6). The repair is reported by returning the valid parameters together
// with an error wrapping ErrDegenerateRange.
func ChooseQuantParams(minValue, maxValue float64, policy RangePolicy) (tensors.QuantParams, error) {
	if math.IsNaN(minValue) || math.IsNaN(maxValue) || math.IsInf(minValue, 0) || math.IsInf(maxValue, 0) {
		return tensors.QuantParams{}, errors.Errorf("quantization range [%g, %g] is not finite", minValue, maxValue)
	}
	if minValue > maxValue {
		return tensors.QuantParams{}, errors.Errorf("inverted quantization range [%g, %g]", minValue, maxValue)
	}
	var notice error
	if minValue == maxValue {
		notice = errors.Wrapf(ErrDegenerateRange, "realized range is the single point %g", minValue)
	}

	var q tensors.QuantParams
	switch policy {
	case Symmetric:
		bound := max(math.Abs(minValue), math.Abs(maxValue))
		if bound == 0 {
			bound = minimalRange
		}
		q = tensors.QuantParams{Scale: bound / 127}
	case Asymmetric:
		lo, hi := min(minValue, 0), max(maxValue, 0)
		if lo == 0 && hi == 0 {
			hi = minimalRange
		}
		scale := (hi - lo) / 255
		zeroPoint := math.Round(-128 - lo/scale)
		q = tensors.QuantParams{Scale: scale, ZeroPoint: int32(max(-128, min(127, zeroPoint)))}
	default:
		return tensors.QuantParams{}, errors.Errorf("unknown range policy %s", policy)
	}
	return q, notice
}

// Quantize returns the int8 quantization of a float tensor under the given parameters,
// with the parameters attached. Values are rounded half away from zero and clamped to
// the int8 range.
func Quantize(t *tensors.Tensor, q tensors.QuantParams) *tensors.Tensor {
	if !t.DType().IsFloat() {
		exceptions.Panicf("precisions.Quantize: tensor dtype %s is not a float type", t.DType())
	}
	values := t.Float64Values()
	data := make([]int8, len(values))
	for i, v := range values {
		data[i] = q.QuantizeInt8(v)
	}
	return tensors.FromFlatDataAndDimensions(data, t.Shape().Dimensions...).SetQuantParams(q)
}

// QuantizeBias returns the int32 quantization of a float bias tensor: the scale is the
// product of the input and weight scales, zero-point 0, the contract the integer kernels
// accumulate under.
func QuantizeBias(t *tensors.Tensor, inputScale, weightScale float64) *tensors.Tensor {
	if !t.DType().IsFloat() {
		exceptions.Panicf("precisions.QuantizeBias: tensor dtype %s is not a float type", t.DType())
	}
	q := tensors.QuantParams{Scale: inputScale * weightScale}
	values := t.Float64Values()
	data := make([]int32, len(values))
	for i, v := range values {
		data[i] = q.QuantizeInt32(v)
	}
	return tensors.FromFlatDataAndDimensions(data, t.Shape().Dimensions...).SetQuantParams(q)
}

// Dequantize materializes the real values of a quantized tensor as a float32 tensor.
func Dequantize(t *tensors.Tensor) *tensors.Tensor {
	if t.QuantParams() == nil {
		exceptions.Panicf("precisions.Dequantize: tensor %s carries no quantization parameters", t.Shape())
	}
	values := t.Float64Values()
	data := make([]float32, len(values))
	for i, v := range values {
		data[i] = float32(v)
	}
	return tensors.FromFlatDataAndDimensions(data, t.Shape().Dimensions...)
}
