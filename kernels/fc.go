package kernels

import (
	"math/rand/v2"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// The "fc" family: a fully-connected layer {batch, depth} x {depth, width} + {width}.
//
// Input values are uniform in [-0.2, 0.2), weights in [-0.4, 0.4) and the bias in
// [0, 5e-6); the near-zero bias makes the accumulated products dominate the result,
// which is what the family's tolerances assume.
var fullyConnectedSpec = Spec{
	Name: "fc",
	Kind: backends.KernelFullyConnected,
	Params: []ParamSpec{
		{Name: "batch", Required: true, Min: 1},
		{Name: "depth", Required: true, Min: 1},
		{Name: "width", Required: true, Min: 1},
	},
	build: buildFullyConnected,
}

func buildFullyConnected(name string, p Params, rng *rand.Rand) (*graph.Graph, error) {
	batch, depth, width := p["batch"], p["depth"], p["width"]

	input := tensors.FromShape(shapes.Make(dtypes.Float32, batch, depth))
	graph.InitUniform(input, -0.2, 0.2, rng)
	weights := tensors.FromShape(shapes.Make(dtypes.Float32, depth, width))
	graph.InitUniform(weights, -0.4, 0.4, rng)
	bias := tensors.FromShape(shapes.Make(dtypes.Float32, width))
	graph.InitUniform(bias, 0, 5e-6, rng)

	g := graph.New(name, backends.KernelFullyConnected, backends.KernelAttrs{}).
		AddInput("input", input).
		AddWeight("weights", weights).
		AddWeight("bias", bias)
	return g, nil
}
