// Package pargo is the goroutine-parallel candidate backend: each kernel splits its
// output into coarse units of work and fans them out over a bounded workers pool.
//
// Float reductions accumulate in fixed-size tiles whose partial sums are combined at
// the end, deliberately associating the additions differently from the reference
// interpreter: agreement between the two then shows the comparison tolerances absorb
// reassociation noise. Quantized kernels accumulate exactly in int32 and match the
// interpreter bit for bit.
//
// Import it for side effects to register it:
//
//	import _ "github.com/gomlx/crosscheck/backends/pargo"
package pargo

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/internal/program"
	"github.com/gomlx/crosscheck/internal/workerspool"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// BackendName to use in CROSSCHECK_BACKEND to select this backend.
const BackendName = "pargo"

func init() {
	backends.Register(BackendName, New)
}

// New constructs the parallel backend. The configuration, if not empty, is the worker
// count as a decimal number ("pargo:8"); empty defaults to runtime.NumCPU().
func New(config string) (backends.Backend, error) {
	maxParallelism := 0
	if config != "" {
		v, err := strconv.Atoi(config)
		if err != nil || v <= 0 {
			return nil, errors.Errorf("invalid pargo configuration %q: want a positive worker count", config)
		}
		maxParallelism = v
	}
	return &Backend{pool: workerspool.New(maxParallelism)}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	pool *workerspool.Pool
}

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
	return fmt.Sprintf("Goroutine-parallel backend (%d workers)", b.pool.MaxParallelism())
}

// Capabilities returns what the backend supports.
func (b *Backend) Capabilities() backends.Capabilities {
	return capabilities.Clone()
}

// Builder creates a new builder used to define a new named computation.
func (b *Backend) Builder(name string) backends.Builder {
	return program.NewBuilder(name, BackendName, b.evalKernel)
}

// Finalize releases all the associated resources immediately, and makes the backend invalid.
func (b *Backend) Finalize() {}

// evalKernel dispatches one kernel evaluation. The operand count and shapes were
// validated at build time.
func (b *Backend) evalKernel(ctx context.Context, kind backends.KernelKind, attrs backends.KernelAttrs,
	operands []*tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error) {
	switch kind {
	case backends.KernelConv2D:
		return b.evalConv2D(ctx, attrs, operands[0], operands[1], operands[2], output)
	case backends.KernelBatchedMatMul:
		return b.evalBatchedMatMul(ctx, attrs, operands[0], operands[1], output)
	case backends.KernelFullyConnected:
		return b.evalFullyConnected(ctx, attrs, operands[0], operands[1], operands[2], output)
	default:
		return nil, errors.Errorf("pargo does not implement kernel %s", kind)
	}
}

// parallelize runs fn(unit) for every unit in [0, numUnits) through the workers pool
// and waits for all of them. Units write disjoint output regions, so no synchronization
// beyond the final join is needed.
//
// If the context is done before every unit was scheduled, the remaining units are
// dropped and the context's error returned; units already started run to completion
// before parallelize returns.
func (b *Backend) parallelize(ctx context.Context, numUnits int, fn func(unit int)) error {
	var wg sync.WaitGroup
	var err error
	for unit := 0; unit < numUnits; unit++ {
		if err = ctx.Err(); err != nil {
			break
		}
		wg.Add(1)
		b.pool.WaitToStart(func() {
			defer wg.Done()
			fn(unit)
		})
	}
	wg.Wait()
	return err
}

// reduceTile is the tile length of float reductions: each tile is summed on its own
// and the per-tile partial sums combined at the end.
const reduceTile = 128
