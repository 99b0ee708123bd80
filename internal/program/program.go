// Package program holds the program representation shared by the in-tree backends: a
// small DAG of parameter, constant and kernel nodes, the builder that assembles it, and
// the executable that evaluates it.
//
// Backends provide only their kernel evaluation function; operand resolution, input
// validation and context checks live here, so the interpreter and the parallel backend
// cannot drift apart on plumbing. Shape rules come from backends/shapeinference, the
// same rules the graph layer applied, so a backend can never silently produce an output
// the caller did not expect.
package program

import (
	"context"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/shapeinference"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/pkg/errors"
)

// KernelFunc evaluates one kernel over resolved operand tensors into a fresh tensor of
// the given output shape. Implementations must honor ctx between units of work.
type KernelFunc func(ctx context.Context, kind backends.KernelKind, attrs backends.KernelAttrs,
	operands []*tensors.Tensor, output shapes.Shape) (*tensors.Tensor, error)

type nodeKind int

const (
	nodeInvalid nodeKind = iota
	nodeParameter
	nodeConstant
	nodeKernel
)

// Node is one value in the program DAG.
type Node struct {
	builder *Builder
	kind    nodeKind
	shape   shapes.Shape

	// Parameter nodes.
	paramName string
	paramIdx  int

	// Constant nodes.
	value *tensors.Tensor

	// Kernel nodes.
	kernelKind  backends.KernelKind
	kernelAttrs backends.KernelAttrs
	inputs      []*Node
}

// Shape of the node's value.
func (n *Node) Shape() shapes.Shape { return n.shape }

// Builder implements backends.Builder on top of a backend's KernelFunc.
type Builder struct {
	name        string
	backendName string
	eval        KernelFunc
	compiled    bool

	nodes  []*Node
	params []*Node
}

// Compile-time check.
var _ backends.Builder = (*Builder)(nil)

// NewBuilder creates a Builder for the named computation. The backendName only
// decorates error messages.
func NewBuilder(name, backendName string, eval KernelFunc) *Builder {
	return &Builder{name: name, backendName: backendName, eval: eval}
}

// Name implements backends.Builder.
func (b *Builder) Name() string { return b.name }

func (b *Builder) usable(op string) error {
	if b.compiled {
		return errors.Errorf("%s: builder %q was already compiled, create a new one from the backend", op, b.name)
	}
	return nil
}

// Parameter implements backends.Builder.
func (b *Builder) Parameter(name string, shape shapes.Shape) (backends.Op, error) {
	if err := b.usable("Parameter"); err != nil {
		return nil, err
	}
	if !shape.Ok() {
		return nil, errors.Errorf("Parameter %q: invalid shape %s", name, shape)
	}
	n := &Node{builder: b, kind: nodeParameter, shape: shape, paramName: name, paramIdx: len(b.params)}
	b.nodes = append(b.nodes, n)
	b.params = append(b.params, n)
	return n, nil
}

// Constant implements backends.Builder.
func (b *Builder) Constant(t *tensors.Tensor) (backends.Op, error) {
	if err := b.usable("Constant"); err != nil {
		return nil, err
	}
	if t == nil || !t.Shape().Ok() {
		return nil, errors.Errorf("Constant: nil or invalid tensor")
	}
	n := &Node{builder: b, kind: nodeConstant, shape: t.Shape(), value: t}
	b.nodes = append(b.nodes, n)
	return n, nil
}

// Kernel implements backends.Builder. The output shape is derived (and the operands
// validated) through shapeinference.
func (b *Builder) Kernel(kind backends.KernelKind, attrs backends.KernelAttrs, inputs ...backends.Op) (backends.Op, error) {
	if err := b.usable("Kernel"); err != nil {
		return nil, err
	}
	inputNodes, err := b.checkOps("Kernel", inputs...)
	if err != nil {
		return nil, err
	}
	inputShapes := make([]shapes.Shape, len(inputNodes))
	for i, in := range inputNodes {
		inputShapes[i] = in.shape
	}
	output, err := shapeinference.KernelOutputShape(kind, attrs, inputShapes...)
	if err != nil {
		return nil, err
	}
	n := &Node{builder: b, kind: nodeKernel, shape: output, kernelKind: kind, kernelAttrs: attrs, inputs: inputNodes}
	b.nodes = append(b.nodes, n)
	return n, nil
}

// Compile implements backends.Builder. It invalidates the Builder.
func (b *Builder) Compile(outputs ...backends.Op) (backends.Executable, error) {
	if err := b.usable("Compile"); err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.Errorf("Compile: computation %q has no outputs", b.name)
	}
	outputNodes, err := b.checkOps("Compile", outputs...)
	if err != nil {
		return nil, err
	}
	b.compiled = true
	return &Executable{
		name:        b.name,
		backendName: b.backendName,
		eval:        b.eval,
		params:      b.params,
		outputs:     outputNodes,
	}, nil
}

// checkOps casts the given ops to Nodes, verifying they belong to this builder.
func (b *Builder) checkOps(op string, ops ...backends.Op) ([]*Node, error) {
	nodes := make([]*Node, len(ops))
	for i, anyOp := range ops {
		n, ok := anyOp.(*Node)
		if !ok || n == nil {
			return nil, errors.Errorf("%s: op #%d is not a value of this backend (%T)", op, i, anyOp)
		}
		if n.builder != b {
			return nil, errors.Errorf("%s: op #%d belongs to a different computation (%q vs %q)", op, i, n.builder.name, b.name)
		}
		nodes[i] = n
	}
	return nodes, nil
}

// Executable evaluates a compiled program.
type Executable struct {
	name        string
	backendName string
	eval        KernelFunc
	params      []*Node
	outputs     []*Node
}

// Compile-time check.
var _ backends.Executable = (*Executable)(nil)

// Inputs implements backends.Executable.
func (e *Executable) Inputs() (names []string, inputShapes []shapes.Shape) {
	names = make([]string, len(e.params))
	inputShapes = make([]shapes.Shape, len(e.params))
	for i, p := range e.params {
		names[i] = p.paramName
		inputShapes[i] = p.shape
	}
	return
}

// Outputs implements backends.Executable.
func (e *Executable) Outputs() []shapes.Shape {
	outputShapes := make([]shapes.Shape, len(e.outputs))
	for i, o := range e.outputs {
		outputShapes[i] = o.shape
	}
	return outputShapes
}

// Finalize implements backends.Executable.
func (e *Executable) Finalize() {
	e.params = nil
	e.outputs = nil
}

// Execute implements backends.Executable: it checks the fed inputs against the declared
// parameters and evaluates each output.
func (e *Executable) Execute(ctx context.Context, inputs ...*tensors.Tensor) ([]*tensors.Tensor, error) {
	if e.outputs == nil {
		return nil, errors.Errorf("executable %q was finalized", e.name)
	}
	if len(inputs) != len(e.params) {
		return nil, errors.Errorf("executable %q takes %d inputs, got %d", e.name, len(e.params), len(inputs))
	}
	for i, in := range inputs {
		if in == nil {
			return nil, errors.Errorf("executable %q: input #%d is nil", e.name, i)
		}
		if !in.Shape().Equal(e.params[i].shape) {
			return nil, errors.Errorf("executable %q: input #%d (%q) must have shape %s, got %s",
				e.name, i, e.params[i].paramName, e.params[i].shape, in.Shape())
		}
	}
	memo := make(map[*Node]*tensors.Tensor)
	results := make([]*tensors.Tensor, len(e.outputs))
	for i, out := range e.outputs {
		value, err := e.evalNode(ctx, out, inputs, memo)
		if err != nil {
			return nil, errors.WithMessagef(err, "backend %q executing %q", e.backendName, e.name)
		}
		results[i] = value
	}
	return results, nil
}

// QuantizedOperands extracts the quantization parameters the integer kernels need:
// per-operand params from the tensors and the output params from the kernel attributes.
// Operands without params (e.g. an Int32 bias, whose scale is implied by the others)
// can be skipped by listing fewer operands.
func QuantizedOperands(attrs backends.KernelAttrs, operands ...*tensors.Tensor) ([]tensors.QuantParams, tensors.QuantParams, error) {
	params := make([]tensors.QuantParams, len(operands))
	for i, op := range operands {
		q := op.QuantParams()
		if q == nil {
			return nil, tensors.QuantParams{}, errors.Errorf("quantized kernel operand #%d has no quantization parameters", i)
		}
		params[i] = *q
	}
	if attrs.OutputQuant == nil {
		return nil, tensors.QuantParams{}, errors.New("quantized kernel is missing output quantization parameters")
	}
	return params, *attrs.OutputQuant, nil
}

func (e *Executable) evalNode(ctx context.Context, n *Node, inputs []*tensors.Tensor, memo map[*Node]*tensors.Tensor) (*tensors.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value, found := memo[n]; found {
		return value, nil
	}
	var value *tensors.Tensor
	switch n.kind {
	case nodeParameter:
		value = inputs[n.paramIdx]
	case nodeConstant:
		value = n.value
	case nodeKernel:
		operands := make([]*tensors.Tensor, len(n.inputs))
		for i, in := range n.inputs {
			operand, err := e.evalNode(ctx, in, inputs, memo)
			if err != nil {
				return nil, err
			}
			operands[i] = operand
		}
		var err error
		value, err = e.eval(ctx, n.kernelKind, n.kernelAttrs, operands, n.shape)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, errors.Errorf("kernel %s produced no output, expected %s", n.kernelKind, n.shape)
		}
		if !value.Shape().Equal(n.shape) {
			return nil, errors.Errorf("kernel %s produced shape %s, expected %s", n.kernelKind, value.Shape(), n.shape)
		}
	default:
		return nil, errors.Errorf("invalid node in computation %q", e.name)
	}
	memo[n] = value
	return value, nil
}
