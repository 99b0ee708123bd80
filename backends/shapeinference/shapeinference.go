// Package shapeinference calculates the output shape of each kernel kind and validates
// its inputs.
//
// It is the single authority on kernel shape rules: the graph package uses it when
// building a case, and backends use it to plan output buffers. Keeping it in one place
// guarantees every backend agrees on what shape a kernel produces, so a shape difference
// at comparison time always means a backend bug, never a disagreement about the rules.
//
// Validation failures return errors wrapping ErrInvalidConfiguration. The sweep treats
// those as skips: the configuration cannot produce a computation, there is nothing to
// compare.
package shapeinference

import (
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/gomlx/crosscheck/backends"
)

// ErrInvalidConfiguration tags errors for kernel configurations that cannot produce a
// valid computation, e.g. a convolution kernel larger than its padded input. Callers
// classify with errors.Is and record a skip.
var ErrInvalidConfiguration = errors.New("invalid kernel configuration")

// KernelOutputShape returns the output shape for the given kernel and input shapes.
//
// The expected inputs per kind are:
//
//	KernelConv2D:         input {N, H, W, C}, filter {O, KH, KW, C}, bias {O}
//	KernelBatchedMatMul:  lhs {N, A, Z}, rhs {N, Z, B}
//	KernelFullyConnected: input {A, Z}, weights {Z, B}, bias {B}
//
// Any validation failure wraps ErrInvalidConfiguration.
func KernelOutputShape(kind backends.KernelKind, attrs backends.KernelAttrs, inputs ...shapes.Shape) (shapes.Shape, error) {
	switch kind {
	case backends.KernelConv2D:
		if len(inputs) != 3 {
			return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "%s takes input, filter and bias, got %d inputs", kind, len(inputs))
		}
		return Conv2DOp(attrs, inputs[0], inputs[1], inputs[2])
	case backends.KernelBatchedMatMul:
		if len(inputs) != 2 {
			return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "%s takes lhs and rhs, got %d inputs", kind, len(inputs))
		}
		return BatchedMatMulOp(inputs[0], inputs[1])
	case backends.KernelFullyConnected:
		if len(inputs) != 3 {
			return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "%s takes input, weights and bias, got %d inputs", kind, len(inputs))
		}
		return FullyConnectedOp(inputs[0], inputs[1], inputs[2])
	default:
		return shapes.Invalid(), errors.Errorf("unknown kernel kind %s", kind)
	}
}

// checkDTypes validates that all operand dtypes agree, with the quantized exception:
// Int8 operands carry an Int32 bias (the accumulator type).
func checkDTypes(kind backends.KernelKind, operands []shapes.Shape, bias *shapes.Shape) error {
	dtype := operands[0].DType
	for _, s := range operands[1:] {
		if s.DType != dtype {
			return errors.Wrapf(ErrInvalidConfiguration, "%s operands must share one dtype, got %s and %s", kind, operands[0], s)
		}
	}
	if bias == nil {
		return nil
	}
	wantBias := dtype
	if dtype == dtypes.Int8 {
		wantBias = dtypes.Int32
	}
	if bias.DType != wantBias {
		return errors.Wrapf(ErrInvalidConfiguration, "%s with %s operands requires a %s bias, got %s", kind, dtype, wantBias, bias)
	}
	return nil
}

// Conv2DOp returns the output shape of a 2D convolution: input {N, H, W, C} convolved
// with filter {O, KH, KW, C} plus bias {O}, giving {N, H', W', O} where
// H' = (H + 2*padding - KH)/strides + 1 (and similarly W').
func Conv2DOp(attrs backends.KernelAttrs, input, filter, bias shapes.Shape) (shapes.Shape, error) {
	errorf := func(format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "Conv2DOp: "+format, args...)
	}

	if !input.Ok() || !filter.Ok() || !bias.Ok() {
		return errorf("invalid shape among input=%s, filter=%s, bias=%s", input, filter, bias)
	}
	if input.Rank() != 4 {
		return errorf("input must be rank-4 {batch, height, width, channels}, got %s", input)
	}
	if filter.Rank() != 4 {
		return errorf("filter must be rank-4 {outChannels, kernelH, kernelW, inChannels}, got %s", filter)
	}
	if bias.Rank() != 1 {
		return errorf("bias must be rank-1 {outChannels}, got %s", bias)
	}
	if err := checkDTypes(backends.KernelConv2D, []shapes.Shape{input, filter}, &bias); err != nil {
		return shapes.Invalid(), err
	}

	batch, height, width, channels := input.Dim(0), input.Dim(1), input.Dim(2), input.Dim(3)
	outChannels, kernelH, kernelW, filterChannels := filter.Dim(0), filter.Dim(1), filter.Dim(2), filter.Dim(3)
	if filterChannels != channels {
		return errorf("input has %d channels but filter expects %d -- input=%s, filter=%s", channels, filterChannels, input, filter)
	}
	if bias.Dim(0) != outChannels {
		return errorf("bias has %d values but filter produces %d channels", bias.Dim(0), outChannels)
	}

	strides := attrs.EffectiveStrides()
	padding := attrs.Padding
	if padding < 0 {
		return errorf("padding must be >= 0, got %d", padding)
	}
	outHeight := (height+2*padding-kernelH)/strides + 1
	outWidth := (width+2*padding-kernelW)/strides + 1
	if outHeight <= 0 || outWidth <= 0 {
		return errorf("filter %dx%d does not fit the %dx%d input with padding %d", kernelH, kernelW, height, width, padding)
	}
	return shapes.Make(input.DType, batch, outHeight, outWidth, outChannels), nil
}

// BatchedMatMulOp returns the output shape of a batched matrix multiplication:
// lhs {N, A, Z} times rhs {N, Z, B}, giving {N, A, B}.
func BatchedMatMulOp(lhs, rhs shapes.Shape) (shapes.Shape, error) {
	errorf := func(format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "BatchedMatMulOp: "+format, args...)
	}

	if !lhs.Ok() || !rhs.Ok() {
		return errorf("invalid shape among lhs=%s, rhs=%s", lhs, rhs)
	}
	if lhs.Rank() != 3 || rhs.Rank() != 3 {
		return errorf("operands must be rank-3 {batch, rows, cols}, got lhs=%s, rhs=%s", lhs, rhs)
	}
	if err := checkDTypes(backends.KernelBatchedMatMul, []shapes.Shape{lhs, rhs}, nil); err != nil {
		return shapes.Invalid(), err
	}
	if lhs.Dim(0) != rhs.Dim(0) {
		return errorf("batch dimensions must match, got lhs=%s, rhs=%s", lhs, rhs)
	}
	if lhs.Dim(2) != rhs.Dim(1) {
		return errorf("contracting dimensions must match, got lhs=%s, rhs=%s", lhs, rhs)
	}
	return shapes.Make(lhs.DType, lhs.Dim(0), lhs.Dim(1), rhs.Dim(2)), nil
}

// FullyConnectedOp returns the output shape of a fully-connected layer:
// input {A, Z} times weights {Z, B} plus bias {B}, giving {A, B}.
func FullyConnectedOp(input, weights, bias shapes.Shape) (shapes.Shape, error) {
	errorf := func(format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), errors.Wrapf(ErrInvalidConfiguration, "FullyConnectedOp: "+format, args...)
	}

	if !input.Ok() || !weights.Ok() || !bias.Ok() {
		return errorf("invalid shape among input=%s, weights=%s, bias=%s", input, weights, bias)
	}
	if input.Rank() != 2 || weights.Rank() != 2 {
		return errorf("input and weights must be rank-2, got input=%s, weights=%s", input, weights)
	}
	if bias.Rank() != 1 {
		return errorf("bias must be rank-1, got %s", bias)
	}
	if err := checkDTypes(backends.KernelFullyConnected, []shapes.Shape{input, weights}, &bias); err != nil {
		return shapes.Invalid(), err
	}
	if input.Dim(1) != weights.Dim(0) {
		return errorf("input depth %d does not match weights depth %d -- input=%s, weights=%s",
			input.Dim(1), weights.Dim(0), input, weights)
	}
	if bias.Dim(0) != weights.Dim(1) {
		return errorf("bias has %d values but weights produce %d", bias.Dim(0), weights.Dim(1))
	}
	return shapes.Make(input.DType, input.Dim(0), weights.Dim(1)), nil
}
