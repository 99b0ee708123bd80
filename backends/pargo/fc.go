package pargo

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

// colBlock is how many output columns one unit of work covers: with single-row batches
// the column blocks are what keep the workers busy.
const colBlock = 256

func numBlocks(n, block int) int { return (n + block - 1) / block }

// tiledDot sums x[z]*w[z*stride] over z in [0, depth), accumulating each tile of
// reduceTile terms separately and combining the per-tile partial sums at the end.
func tiledDot[T constraints.Float](x, w []T, depth, stride int) T {
	var total T
	for z0 := 0; z0 < depth; z0 += reduceTile {
		z1 := min(z0+reduceTile, depth)
		var partial T
		for z := z0; z < z1; z++ {
			partial += x[z] * w[z*stride]
		}
		total += partial
	}
	return total
}

// tiledDotFloat16 is tiledDot with float32 accumulators; the caller rounds the final
// sum back to float16 once.
func tiledDotFloat16(x, w []float16.Float16, depth, stride int) float32 {
	var total float32
	for z0 := 0; z0 < depth; z0 += reduceTile {
		z1 := min(z0+reduceTile, depth)
		var partial float32
		for z := z0; z < z1; z++ {
			partial += x[z].Float32() * w[z*stride].Float32()
		}
		total += partial
	}
	return total
}

func (b *Backend) evalFullyConnected(ctx context.Context, attrs backends.KernelAttrs,
	input, weights, bias *tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	result := tensors.FromShape(output)
	batch, width := output.Dimensions[0], output.Dimensions[1]
	depth := input.Shape().Dimensions[1]

	var err error
	switch output.DType {
	case dtypes.Float32:
		err = fcFloat(ctx, b, tensors.Flat[float32](input), tensors.Flat[float32](weights),
			tensors.Flat[float32](bias), tensors.Flat[float32](result), batch, depth, width)
	case dtypes.Float64:
		err = fcFloat(ctx, b, tensors.Flat[float64](input), tensors.Flat[float64](weights),
			tensors.Flat[float64](bias), tensors.Flat[float64](result), batch, depth, width)
	case dtypes.Float16:
		err = fcFloat16(ctx, b, tensors.Flat[float16.Float16](input), tensors.Flat[float16.Float16](weights),
			tensors.Flat[float16.Float16](bias), tensors.Flat[float16.Float16](result), batch, depth, width)
	case dtypes.Int8:
		err = b.fcInt8(ctx, attrs, input, weights, bias, result, batch, depth, width)
	default:
		err = errors.Errorf("pargo FullyConnected does not support dtype %s", output.DType)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func fcFloat[T constraints.Float](ctx context.Context, b *Backend, x, w, bias, out []T,
	batch, depth, width int) error {
	blocks := numBlocks(width, colBlock)
	return b.parallelize(ctx, batch*blocks, func(unit int) {
		a, block := unit/blocks, unit%blocks
		c0, c1 := block*colBlock, min((block+1)*colBlock, width)
		row := x[a*depth : (a+1)*depth]
		for c := c0; c < c1; c++ {
			out[a*width+c] = tiledDot(row, w[c:], depth, width) + bias[c]
		}
	})
}

func fcFloat16(ctx context.Context, b *Backend, x, w, bias, out []float16.Float16,
	batch, depth, width int) error {
	blocks := numBlocks(width, colBlock)
	return b.parallelize(ctx, batch*blocks, func(unit int) {
		a, block := unit/blocks, unit%blocks
		c0, c1 := block*colBlock, min((block+1)*colBlock, width)
		row := x[a*depth : (a+1)*depth]
		for c := c0; c < c1; c++ {
			out[a*width+c] = float16.Fromfloat32(tiledDotFloat16(row, w[c:], depth, width) + bias[c].Float32())
		}
	})
}

// fcInt8 accumulates zero-point-corrected products exactly in int32, like the
// interpreter: the association order of an integer sum does not matter, so the two
// backends agree bit for bit at this precision.
func (b *Backend) fcInt8(ctx context.Context, attrs backends.KernelAttrs,
	input, weights, bias, result *tensors.Tensor, batch, depth, width int) error {
	quants, outQuant, err := program.QuantizedOperands(attrs, input, weights)
	if err != nil {
		return err
	}
	inZP, wZP := quants[0].ZeroPoint, quants[1].ZeroPoint
	realScale := quants[0].Scale * quants[1].Scale
	x := tensors.Flat[int8](input)
	w := tensors.Flat[int8](weights)
	bb := tensors.Flat[int32](bias)
	out := tensors.Flat[int8](result)

	blocks := numBlocks(width, colBlock)
	err = b.parallelize(ctx, batch*blocks, func(unit int) {
		a, block := unit/blocks, unit%blocks
		c0, c1 := block*colBlock, min((block+1)*colBlock, width)
		for c := c0; c < c1; c++ {
			var acc int32
			for z := 0; z < depth; z++ {
				acc += (int32(x[a*depth+z]) - inZP) * (int32(w[z*width+c]) - wZP)
			}
			acc += bb[c]
			out[a*width+c] = outQuant.QuantizeInt8(realScale * float64(acc))
		}
	})
	if err != nil {
		return err
	}
	result.SetQuantParams(outQuant)
	return nil
}
