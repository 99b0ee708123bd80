package graph

import (
	"context"
	"time"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds a single case execution when ExecOptions.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrExecutionTimeout tags errors for cases whose execution exceeded its deadline.
// The sweep fails the case but keeps going.
var ErrExecutionTimeout = errors.New("execution timeout")

// ExecOptions configures one dispatch of a Graph to a backend.
type ExecOptions struct {
	// Timeout is the wall-clock budget for the backend execution. Zero means
	// DefaultTimeout; negative disables the deadline.
	Timeout time.Duration
}

// Execute lowers g to the given backend, compiles it and runs it, returning the single
// output tensor.
//
// Before any backend work it checks the backend's Capabilities for the graph's kernel
// kind and operand dtypes; unsupported combinations return an error wrapping
// backends.ErrBackendUnavailable so the sweep records a skip rather than a failure.
// Executions that exceed the deadline return an error wrapping ErrExecutionTimeout.
func Execute(ctx context.Context, g *Graph, backend backends.Backend, opts ExecOptions) (*tensors.Tensor, error) {
	if !g.validated {
		return nil, errors.Errorf("graph %q must be validated before execution", g.name)
	}

	dts := g.OperandDTypes()
	if !backend.Capabilities().Supports(g.kind, dts...) {
		return nil, errors.Wrapf(backends.ErrBackendUnavailable,
			"backend %q does not support kernel %s over dtypes %v", backend.Name(), g.kind, dts)
	}

	builder := backend.Builder(g.name)
	operandOps := make([]backends.Op, 0, len(g.inputs)+len(g.weights))
	feed := make([]*tensors.Tensor, 0, len(g.inputs))
	for _, in := range g.inputs {
		op, err := builder.Parameter(in.Name, in.Tensor.Shape())
		if err != nil {
			return nil, errors.WithMessagef(err, "backend %q: parameter %q", backend.Name(), in.Name)
		}
		operandOps = append(operandOps, op)
		feed = append(feed, in.Tensor)
	}
	for _, w := range g.weights {
		op, err := builder.Constant(w.Tensor)
		if err != nil {
			return nil, errors.WithMessagef(err, "backend %q: constant %q", backend.Name(), w.Name)
		}
		operandOps = append(operandOps, op)
	}
	kernelOp, err := builder.Kernel(g.kind, g.attrs, operandOps...)
	if err != nil {
		return nil, errors.WithMessagef(err, "backend %q: kernel %s", backend.Name(), g.kind)
	}
	exec, err := builder.Compile(kernelOp)
	if err != nil {
		return nil, errors.WithMessagef(err, "backend %q: compiling %q", backend.Name(), g.name)
	}
	defer exec.Finalize()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type execResult struct {
		outputs []*tensors.Tensor
		err     error
	}
	// Buffered so a late finisher never blocks after we gave up on it.
	done := make(chan execResult, 1)
	go func() {
		outputs, err := exec.Execute(ctx, feed...)
		done <- execResult{outputs: outputs, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrExecutionTimeout,
				"case %q on backend %q exceeded its %s deadline", g.name, backend.Name(), timeout)
		}
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, errors.Wrapf(ErrExecutionTimeout,
					"case %q on backend %q exceeded its %s deadline", g.name, backend.Name(), timeout)
			}
			return nil, errors.WithMessagef(r.err, "executing case %q on backend %q", g.name, backend.Name())
		}
		if len(r.outputs) != 1 {
			return nil, errors.Errorf("backend %q returned %d outputs for case %q, expected 1",
				backend.Name(), len(r.outputs), g.name)
		}
		return r.outputs[0], nil
	}
}

// ExecuteByName resolves backendName in the registry and calls Execute. The backend is
// finalized before returning. Unregistered names return an error wrapping
// backends.ErrBackendUnavailable.
func ExecuteByName(ctx context.Context, g *Graph, backendName string, opts ExecOptions) (*tensors.Tensor, error) {
	backend, err := backends.NewWithConfig(backendName)
	if err != nil {
		return nil, err
	}
	defer backend.Finalize()
	return Execute(ctx, g, backend, opts)
}
