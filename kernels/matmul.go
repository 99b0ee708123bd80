package kernels

import (
	"math/rand/v2"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// The "batchedmatmul" family: {batch, rows, depth} x {batch, depth, rows}, so the output
// is always square per batch entry. Both operands are Xavier-initialized with fanIn 10
// (values within roughly ±0.55). The left side is fed as a parameter, the right side is
// baked in as a constant, exercising both lowering paths.
var batchedMatMulSpec = Spec{
	Name: "batchedmatmul",
	Kind: backends.KernelBatchedMatMul,
	Params: []ParamSpec{
		{Name: "batch", Required: true, Min: 1},
		{Name: "rows", Required: true, Min: 1},
		{Name: "depth", Required: true, Min: 1},
	},
	build: buildBatchedMatMul,
}

func buildBatchedMatMul(name string, p Params, rng *rand.Rand) (*graph.Graph, error) {
	batch, rows, depth := p["batch"], p["rows"], p["depth"]

	lhs := tensors.FromShape(shapes.Make(dtypes.Float32, batch, rows, depth))
	graph.InitXavier(lhs, 10, rng)
	rhs := tensors.FromShape(shapes.Make(dtypes.Float32, batch, depth, rows))
	graph.InitXavier(rhs, 10, rng)

	g := graph.New(name, backends.KernelBatchedMatMul, backends.KernelAttrs{}).
		AddInput("lhs", lhs).
		AddWeight("rhs", rhs)
	return g, nil
}
