package interp

import (
	"context"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/internal/program"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// evalFullyConnected computes input {A, Z} x weights {Z, B} + bias {B} into {A, B}.
func evalFullyConnected(ctx context.Context, attrs backends.KernelAttrs,
	input, weights, bias *tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	result := tensors.FromShape(output)
	batch, width := output.Dim(0), output.Dim(1)
	shapes.AssertRank(input, 2)
	depth := input.Shape().Dim(1)

	var err error
	switch input.DType() {
	case dtypes.Float32:
		err = fcFloat(ctx, tensors.Flat[float32](input), tensors.Flat[float32](weights),
			tensors.Flat[float32](bias), tensors.Flat[float32](result), batch, depth, width)
	case dtypes.Float64:
		err = fcFloat(ctx, tensors.Flat[float64](input), tensors.Flat[float64](weights),
			tensors.Flat[float64](bias), tensors.Flat[float64](result), batch, depth, width)
	case dtypes.Float16:
		err = fcFloat16(ctx, tensors.Flat[float16.Float16](input), tensors.Flat[float16.Float16](weights),
			tensors.Flat[float16.Float16](bias), tensors.Flat[float16.Float16](result), batch, depth, width)
	case dtypes.Int8:
		err = fcInt8(ctx, attrs, input, weights, bias, result, batch, depth, width)
	default:
		return nil, errors.Errorf("interp: FullyConnected does not support dtype %s", input.DType())
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func fcFloat[T constraints.Float](ctx context.Context, x, w, b, out []T, batch, depth, width int) error {
	for a := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c := range width {
			var acc T
			for z := range depth {
				acc += x[a*depth+z] * w[z*width+c]
			}
			out[a*width+c] = acc + b[c]
		}
	}
	return nil
}

// fcFloat16 accumulates in float32 and rounds once at the end.
func fcFloat16(ctx context.Context, x, w, b, out []float16.Float16, batch, depth, width int) error {
	for a := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c := range width {
			var acc float32
			for z := range depth {
				acc += x[a*depth+z].Float32() * w[z*width+c].Float32()
			}
			out[a*width+c] = float16.Fromfloat32(acc + b[c].Float32())
		}
	}
	return nil
}

// fcInt8 accumulates zero-point-corrected products exactly in int32, adds the int32
// bias (scaled by inputScale x weightScale, per the adapter's contract) and requantizes
// each element to the output parameters.
func fcInt8(ctx context.Context, attrs backends.KernelAttrs,
	input, weights, bias, result *tensors.Tensor, batch, depth, width int) error {
	params, outQuant, err := program.QuantizedOperands(attrs, input, weights)
	if err != nil {
		return err
	}
	inQ, wQ := params[0], params[1]
	realScale := inQ.Scale * wQ.Scale
	inZP, wZP := inQ.ZeroPoint, wQ.ZeroPoint

	x := tensors.Flat[int8](input)
	w := tensors.Flat[int8](weights)
	b := tensors.Flat[int32](bias)
	out := tensors.Flat[int8](result)
	for a := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c := range width {
			var acc int32
			for z := range depth {
				acc += (int32(x[a*depth+z]) - inZP) * (int32(w[z*width+c]) - wZP)
			}
			acc += b[c]
			out[a*width+c] = outQuant.QuantizeInt8(realScale * float64(acc))
		}
	}
	result.SetQuantParams(outQuant)
	return nil
}
