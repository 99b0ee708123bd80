// Package interp is the reference backend: every kernel is evaluated with plain scalar
// loops in the most straightforward order. It is deliberately unsophisticated -- no
// blocking, no vectorization, no goroutine fan-out -- its job is to be obviously
// correct, the numerics other backends are judged against.
//
// Float16 operands are accumulated in float32 and rounded once at the end, and Int8
// operands accumulate exactly in int32 before requantization, so the interpreter stays
// meaningful as a comparison baseline at every precision.
//
// Import it for side effects to register it:
//
//	import _ "github.com/gomlx/crosscheck/backends/interp"
package interp

import (
	"context"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/internal/program"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// BackendName to use in CROSSCHECK_BACKEND to select this backend.
const BackendName = "interp"

func init() {
	backends.Register(BackendName, New)
}

// New constructs the interpreter backend. It has no configuration, the string is
// ignored.
func New(_ string) (backends.Backend, error) {
	return &Backend{}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct{}

// Compile-time check.
var _ backends.Backend = &Backend{}

var capabilities = backends.Capabilities{
	Kernels: map[backends.KernelKind]bool{
		backends.KernelConv2D:         true,
		backends.KernelBatchedMatMul:  true,
		backends.KernelFullyConnected: true,
	},
	DTypes: map[dtypes.DType]bool{
		dtypes.Float32: true,
		dtypes.Float64: true,
		dtypes.Float16: true,
		dtypes.Int8:    true,
		dtypes.Int32:   true, // quantized bias accumulator
	},
}

// Name returns the short name the backend was registered under.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Scalar-loop reference interpreter"
}

// Capabilities returns what the backend supports.
func (b *Backend) Capabilities() backends.Capabilities {
	return capabilities.Clone()
}

// Builder creates a new builder used to define a new named computation.
func (b *Backend) Builder(name string) backends.Builder {
	return program.NewBuilder(name, BackendName, evalKernel)
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {}

// evalKernel dispatches one kernel evaluation. The operand count and shapes were
// validated at build time.
func evalKernel(ctx context.Context, kind backends.KernelKind, attrs backends.KernelAttrs,
	operands []*tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	switch kind {
	case backends.KernelConv2D:
		return evalConv2D(ctx, attrs, operands[0], operands[1], operands[2], output)
	case backends.KernelBatchedMatMul:
		return evalBatchedMatMul(ctx, attrs, operands[0], operands[1], output)
	case backends.KernelFullyConnected:
		return evalFullyConnected(ctx, attrs, operands[0], operands[1], operands[2], output)
	default:
		return nil, errors.Errorf("interp does not implement kernel %s", kind)
	}
}
