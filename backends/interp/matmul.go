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

// evalBatchedMatMul computes lhs {N, A, Z} x rhs {N, Z, B} into {N, A, B}.
func evalBatchedMatMul(ctx context.Context, attrs backends.KernelAttrs,
	lhs, rhs *tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	result := tensors.FromShape(output)
	batch, rows, cols := output.Dim(0), output.Dim(1), output.Dim(2)
	shapes.AssertRank(lhs, 3)
	depth := lhs.Shape().Dim(2)

	var err error
	switch lhs.DType() {
	case dtypes.Float32:
		err = bmmFloat(ctx, tensors.Flat[float32](lhs), tensors.Flat[float32](rhs),
			tensors.Flat[float32](result), batch, rows, depth, cols)
	case dtypes.Float64:
		err = bmmFloat(ctx, tensors.Flat[float64](lhs), tensors.Flat[float64](rhs),
			tensors.Flat[float64](result), batch, rows, depth, cols)
	case dtypes.Float16:
		err = bmmFloat16(ctx, tensors.Flat[float16.Float16](lhs), tensors.Flat[float16.Float16](rhs),
			tensors.Flat[float16.Float16](result), batch, rows, depth, cols)
	case dtypes.Int8:
		err = bmmInt8(ctx, attrs, lhs, rhs, result, batch, rows, depth, cols)
	default:
		return nil, errors.Errorf("interp: BatchedMatMul does not support dtype %s", lhs.DType())
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func bmmFloat[T constraints.Float](ctx context.Context, l, r, out []T, batch, rows, depth, cols int) error {
	for n := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for a := range rows {
			for c := range cols {
				var acc T
				for z := range depth {
					acc += l[(n*rows+a)*depth+z] * r[(n*depth+z)*cols+c]
				}
				out[(n*rows+a)*cols+c] = acc
			}
		}
	}
	return nil
}

func bmmFloat16(ctx context.Context, l, r, out []float16.Float16, batch, rows, depth, cols int) error {
	for n := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for a := range rows {
			for c := range cols {
				var acc float32
				for z := range depth {
					acc += l[(n*rows+a)*depth+z].Float32() * r[(n*depth+z)*cols+c].Float32()
				}
				out[(n*rows+a)*cols+c] = float16.Fromfloat32(acc)
			}
		}
	}
	return nil
}

func bmmInt8(ctx context.Context, attrs backends.KernelAttrs,
	lhs, rhs, result *tensors.Tensor, batch, rows, depth, cols int) error {
	params, outQuant, err := program.QuantizedOperands(attrs, lhs, rhs)
	if err != nil {
		return err
	}
	lQ, rQ := params[0], params[1]
	realScale := lQ.Scale * rQ.Scale
	lZP, rZP := lQ.ZeroPoint, rQ.ZeroPoint

	l := tensors.Flat[int8](lhs)
	r := tensors.Flat[int8](rhs)
	out := tensors.Flat[int8](result)
	for n := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for a := range rows {
			for c := range cols {
				var acc int32
				for z := range depth {
					acc += (int32(l[(n*rows+a)*depth+z]) - lZP) * (int32(r[(n*depth+z)*cols+c]) - rZP)
				}
				out[(n*rows+a)*cols+c] = outQuant.QuantizeInt8(realScale * float64(acc))
			}
		}
	}
	result.SetQuantParams(outQuant)
	return nil
}
