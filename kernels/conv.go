package kernels

import (
	"math/rand/v2"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// The "conv" family: a square 2D convolution with as many output as input channels.
//
// Input {1, size, size, depth} is Xavier-initialized with fanIn 1, spreading values over
// roughly ±1.73; filter {depth, kernel, kernel, depth} and bias {depth} are filled with
// the constant 0.1. A kernel larger than the padded input is an invalid configuration.
var convSpec = Spec{
	Name: "conv",
	Kind: backends.KernelConv2D,
	Params: []ParamSpec{
		{Name: "size", Required: true, Min: 1},
		{Name: "depth", Required: true, Min: 1},
		{Name: "kernel", Required: true, Min: 1},
		{Name: "stride", Default: 1, Min: 1},
		{Name: "pad", Default: 0, Min: 0},
	},
	build: buildConv,
}

func buildConv(name string, p Params, rng *rand.Rand) (*graph.Graph, error) {
	size, depth, kernel := p["size"], p["depth"], p["kernel"]
	attrs := backends.KernelAttrs{Strides: p["stride"], Padding: p["pad"]}

	input := tensors.FromShape(shapes.Make(dtypes.Float32, 1, size, size, depth))
	graph.InitXavier(input, 1, rng)
	filter := tensors.FromShape(shapes.Make(dtypes.Float32, depth, kernel, kernel, depth))
	graph.InitConstant(filter, 0.1)
	bias := tensors.FromShape(shapes.Make(dtypes.Float32, depth))
	graph.InitConstant(bias, 0.1)

	g := graph.New(name, backends.KernelConv2D, attrs).
		AddInput("input", input).
		AddWeight("filter", filter).
		AddWeight("bias", bias)
	return g, nil
}
