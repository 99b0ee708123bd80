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

// convGeometry gathers the loop bounds of one Conv2D evaluation.
type convGeometry struct {
	batch, inH, inW, channels     int
	outChannels, kernelH, kernelW int
	outH, outW, strides, padding  int
}

func convGeometryOf(attrs backends.KernelAttrs, input, filter *tensors.Tensor, output shapes.Shape) convGeometry {
	shapes.AssertRank(input, 4)
	shapes.AssertRank(filter, 4)
	in, f := input.Shape(), filter.Shape()
	return convGeometry{
		batch: in.Dim(0), inH: in.Dim(1), inW: in.Dim(2), channels: in.Dim(3),
		outChannels: f.Dim(0), kernelH: f.Dim(1), kernelW: f.Dim(2),
		outH: output.Dim(1), outW: output.Dim(2),
		strides: attrs.EffectiveStrides(), padding: attrs.Padding,
	}
}

// evalConv2D computes input {N, H, W, C} * filter {O, KH, KW, C} + bias {O} into
// {N, H', W', O}. Out-of-bounds positions under padding contribute zero.
func evalConv2D(ctx context.Context, attrs backends.KernelAttrs,
	input, filter, bias *tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	result := tensors.FromShape(output)
	geom := convGeometryOf(attrs, input, filter, output)

	var err error
	switch input.DType() {
	case dtypes.Float32:
		err = convFloat(ctx, geom, tensors.Flat[float32](input), tensors.Flat[float32](filter),
			tensors.Flat[float32](bias), tensors.Flat[float32](result))
	case dtypes.Float64:
		err = convFloat(ctx, geom, tensors.Flat[float64](input), tensors.Flat[float64](filter),
			tensors.Flat[float64](bias), tensors.Flat[float64](result))
	case dtypes.Float16:
		err = convFloat16(ctx, geom, tensors.Flat[float16.Float16](input), tensors.Flat[float16.Float16](filter),
			tensors.Flat[float16.Float16](bias), tensors.Flat[float16.Float16](result))
	case dtypes.Int8:
		err = convInt8(ctx, attrs, geom, input, filter, bias, result)
	default:
		return nil, errors.Errorf("interp: Conv2D does not support dtype %s", input.DType())
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func convFloat[T constraints.Float](ctx context.Context, g convGeometry, x, w, b, out []T) error {
	for n := range g.batch {
		for oh := range g.outH {
			if err := ctx.Err(); err != nil {
				return err
			}
			for ow := range g.outW {
				for o := range g.outChannels {
					var acc T
					for kh := range g.kernelH {
						ih := oh*g.strides - g.padding + kh
						if ih < 0 || ih >= g.inH {
							continue
						}
						for kw := range g.kernelW {
							iw := ow*g.strides - g.padding + kw
							if iw < 0 || iw >= g.inW {
								continue
							}
							xBase := ((n*g.inH+ih)*g.inW + iw) * g.channels
							wBase := ((o*g.kernelH+kh)*g.kernelW + kw) * g.channels
							for c := range g.channels {
								acc += x[xBase+c] * w[wBase+c]
							}
						}
					}
					out[((n*g.outH+oh)*g.outW+ow)*g.outChannels+o] = acc + b[o]
				}
			}
		}
	}
	return nil
}

func convFloat16(ctx context.Context, g convGeometry, x, w, b, out []float16.Float16) error {
	for n := range g.batch {
		for oh := range g.outH {
			if err := ctx.Err(); err != nil {
				return err
			}
			for ow := range g.outW {
				for o := range g.outChannels {
					var acc float32
					for kh := range g.kernelH {
						ih := oh*g.strides - g.padding + kh
						if ih < 0 || ih >= g.inH {
							continue
						}
						for kw := range g.kernelW {
							iw := ow*g.strides - g.padding + kw
							if iw < 0 || iw >= g.inW {
								continue
							}
							xBase := ((n*g.inH+ih)*g.inW + iw) * g.channels
							wBase := ((o*g.kernelH+kh)*g.kernelW + kw) * g.channels
							for c := range g.channels {
								acc += x[xBase+c].Float32() * w[wBase+c].Float32()
							}
						}
					}
					out[((n*g.outH+oh)*g.outW+ow)*g.outChannels+o] = float16.Fromfloat32(acc + b[o].Float32())
				}
			}
		}
	}
	return nil
}

// convInt8 skips padded positions entirely, which is the real-space zero contribution
// regardless of the input's zero-point.
func convInt8(ctx context.Context, attrs backends.KernelAttrs, g convGeometry,
	input, filter, bias, result *tensors.Tensor) error {
	params, outQuant, err := program.QuantizedOperands(attrs, input, filter)
	if err != nil {
		return err
	}
	inQ, wQ := params[0], params[1]
	realScale := inQ.Scale * wQ.Scale
	inZP, wZP := inQ.ZeroPoint, wQ.ZeroPoint

	x := tensors.Flat[int8](input)
	w := tensors.Flat[int8](filter)
	b := tensors.Flat[int32](bias)
	out := tensors.Flat[int8](result)
	for n := range g.batch {
		for oh := range g.outH {
			if err := ctx.Err(); err != nil {
				return err
			}
			for ow := range g.outW {
				for o := range g.outChannels {
					var acc int32
					for kh := range g.kernelH {
						ih := oh*g.strides - g.padding + kh
						if ih < 0 || ih >= g.inH {
							continue
						}
						for kw := range g.kernelW {
							iw := ow*g.strides - g.padding + kw
							if iw < 0 || iw >= g.inW {
								continue
							}
							xBase := ((n*g.inH+ih)*g.inW + iw) * g.channels
							wBase := ((o*g.kernelH+kh)*g.kernelW + kw) * g.channels
							for c := range g.channels {
								acc += (int32(x[xBase+c]) - inZP) * (int32(w[wBase+c]) - wZP)
							}
						}
					}
					acc += b[o]
					out[((n*g.outH+oh)*g.outW+ow)*g.outChannels+o] = outQuant.QuantizeInt8(realScale * float64(acc))
				}
			}
		}
	}
	result.SetQuantParams(outQuant)
	return nil
}
