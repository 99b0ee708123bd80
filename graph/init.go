package graph

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/crosscheck/types/xslices"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Host-side tensor initializers used by the kernel families to materialize operands.
//
// They take the *rand.Rand explicitly: the per-case PCG comes from the case seed, there
// is no global randomness anywhere, so the same configuration produces the same tensors
// on every backend and every run.

// InitXavier fills t with values sampled uniformly from ±√(3/fanIn), the classic
// Glorot/Xavier range. Only float tensors can be initialized this way.
func InitXavier(t *tensors.Tensor, fanIn float64, rng *rand.Rand) {
	if fanIn <= 0 {
		exceptions.Panicf("InitXavier: fanIn must be > 0, got %g", fanIn)
	}
	bound := math.Sqrt(3.0 / fanIn)
	InitUniform(t, -bound, bound, rng)
}

// InitUniform fills t with values sampled uniformly from [low, high).
func InitUniform(t *tensors.Tensor, low, high float64, rng *rand.Rand) {
	if high < low {
		exceptions.Panicf("InitUniform: invalid range [%g, %g)", low, high)
	}
	switch t.DType() {
	case dtypes.Float32:
		tensors.MutableFlatData(t, func(flat []float32) {
			for i := range flat {
				flat[i] = float32(low + rng.Float64()*(high-low))
			}
		})
	case dtypes.Float64:
		tensors.MutableFlatData(t, func(flat []float64) {
			for i := range flat {
				flat[i] = low + rng.Float64()*(high-low)
			}
		})
	default:
		exceptions.Panicf("InitUniform: cannot initialize dtype %s, only Float32 or Float64", t.DType())
	}
}

// InitConstant fills t with the given value everywhere.
func InitConstant(t *tensors.Tensor, value float64) {
	switch t.DType() {
	case dtypes.Float32:
		tensors.MutableFlatData(t, func(flat []float32) {
			xslices.FillSlice(flat, float32(value))
		})
	case dtypes.Float64:
		tensors.MutableFlatData(t, func(flat []float64) {
			xslices.FillSlice(flat, value)
		})
	default:
		exceptions.Panicf("InitConstant: cannot initialize dtype %s, only Float32 or Float64", t.DType())
	}
}
