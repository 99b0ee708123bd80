// Package graph holds the backend-independent description of one test case computation
// and dispatches it for execution.
//
// A Graph is a single kernel with its concrete operand tensors: inputs (fed to the
// compiled computation as parameters) and weights (baked in as constants). Each case
// builds a fresh Graph and never shares or mutates it afterward, so cases stay isolated
// no matter how the sweep schedules them.
//
// Graph building follows the panic-on-misuse convention: structural misuse (nil tensors,
// duplicate names, adding operands after validation) panics with a stack trace. Data
// driven problems -- a configuration whose shapes cannot produce a computation -- are
// returned by Validate as errors wrapping shapeinference.ErrInvalidConfiguration, so the
// sweep can classify them as skips.
package graph

import (
	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/shapeinference"
	"github.com/gomlx/crosscheck/types"
	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// NamedTensor is one operand of a Graph: a tensor and the name it is lowered under.
type NamedTensor struct {
	Name   string
	Tensor *tensors.Tensor
}

// Graph describes one case computation: a kernel kind with attributes and its concrete
// operand tensors.
//
// Operand order is the kernel's canonical order: all inputs in insertion order followed
// by all weights in insertion order. The kernel families arrange their AddInput/AddWeight
// calls to match (e.g. a convolution adds the input image as input, then filter and bias
// as weights).
type Graph struct {
	name  string
	kind  backends.KernelKind
	attrs backends.KernelAttrs

	inputs  []NamedTensor
	weights []NamedTensor

	output    shapes.Shape
	validated bool
}

// New creates an empty Graph for the given kernel. The name identifies the case in
// logs and backend builders; it is usually the case key.
func New(name string, kind backends.KernelKind, attrs backends.KernelAttrs) *Graph {
	if !kind.IsAKernelKind() || kind == backends.KernelInvalid {
		exceptions.Panicf("graph.New: invalid kernel kind %s", kind)
	}
	return &Graph{name: name, kind: kind, attrs: attrs}
}

// Name returns the graph name given to New.
func (g *Graph) Name() string { return g.name }

// Kind returns the kernel kind.
func (g *Graph) Kind() backends.KernelKind { return g.kind }

// Attrs returns the kernel attributes.
func (g *Graph) Attrs() backends.KernelAttrs { return g.attrs }

// AddInput appends an operand that will be lowered as a parameter and fed at execution
// time. It returns g to allow chaining. Panics on structural misuse.
func (g *Graph) AddInput(name string, t *tensors.Tensor) *Graph {
	g.addOperand(&g.inputs, name, t)
	return g
}

// AddWeight appends an operand that will be lowered as an immutable constant.
// It returns g to allow chaining. Panics on structural misuse.
func (g *Graph) AddWeight(name string, t *tensors.Tensor) *Graph {
	g.addOperand(&g.weights, name, t)
	return g
}

func (g *Graph) addOperand(list *[]NamedTensor, name string, t *tensors.Tensor) {
	if g.validated {
		exceptions.Panicf("graph %q: cannot add operand %q after Validate", g.name, name)
	}
	if t == nil {
		exceptions.Panicf("graph %q: operand %q is nil", g.name, name)
	}
	t.AssertValid()
	for _, op := range g.inputs {
		if op.Name == name {
			exceptions.Panicf("graph %q: duplicate operand name %q", g.name, name)
		}
	}
	for _, op := range g.weights {
		if op.Name == name {
			exceptions.Panicf("graph %q: duplicate operand name %q", g.name, name)
		}
	}
	*list = append(*list, NamedTensor{Name: name, Tensor: t})
}

// Inputs returns the input operands, in insertion order. The caller must not mutate
// the returned tensors.
func (g *Graph) Inputs() []NamedTensor { return g.inputs }

// Weights returns the weight operands, in insertion order. The caller must not mutate
// the returned tensors.
func (g *Graph) Weights() []NamedTensor { return g.weights }

// operands returns inputs followed by weights, the kernel's canonical operand order.
func (g *Graph) operands() []NamedTensor {
	all := make([]NamedTensor, 0, len(g.inputs)+len(g.weights))
	all = append(all, g.inputs...)
	all = append(all, g.weights...)
	return all
}

// OperandShapes returns the shapes of all operands in canonical order.
func (g *Graph) OperandShapes() []shapes.Shape {
	ops := g.operands()
	ss := make([]shapes.Shape, len(ops))
	for i, op := range ops {
		ss[i] = op.Tensor.Shape()
	}
	return ss
}

// OperandDTypes returns the distinct dtypes used by the operands, in first-use order.
func (g *Graph) OperandDTypes() []dtypes.DType {
	var dts []dtypes.DType
	seen := types.MakeSet[dtypes.DType]()
	for _, op := range g.operands() {
		dt := op.Tensor.DType()
		if !seen.Has(dt) {
			seen.Insert(dt)
			dts = append(dts, dt)
		}
	}
	return dts
}

// Validate checks the operands against the kernel's shape rules and records the output
// shape. It must be called (once) before the graph is executed or adapted.
//
// Configurations that cannot produce a computation return an error wrapping
// shapeinference.ErrInvalidConfiguration.
func (g *Graph) Validate() error {
	output, err := shapeinference.KernelOutputShape(g.kind, g.attrs, g.OperandShapes()...)
	if err != nil {
		return err
	}
	g.output = output
	g.validated = true
	return nil
}

// Validated reports whether Validate succeeded on this graph.
func (g *Graph) Validated() bool { return g.validated }

// OutputShape returns the shape recorded by Validate. Panics if the graph was not
// validated.
func (g *Graph) OutputShape() shapes.Shape {
	if !g.validated {
		exceptions.Panicf("graph %q: OutputShape called before Validate", g.name)
	}
	return g.output
}

// Clone returns a deep copy of the graph: attributes, operand tensors and validation
// state. Precision adapters transform a clone, never the base graph.
func (g *Graph) Clone() *Graph {
	g2 := &Graph{
		name:      g.name,
		kind:      g.kind,
		attrs:     g.attrs,
		output:    g.output.Clone(),
		validated: g.validated,
	}
	if g.attrs.OutputQuant != nil {
		quant := *g.attrs.OutputQuant
		g2.attrs.OutputQuant = &quant
	}
	g2.inputs = make([]NamedTensor, len(g.inputs))
	for i, op := range g.inputs {
		g2.inputs[i] = NamedTensor{Name: op.Name, Tensor: op.Tensor.Clone()}
	}
	g2.weights = make([]NamedTensor, len(g.weights))
	for i, op := range g.weights {
		g2.weights[i] = NamedTensor{Name: op.Name, Tensor: op.Tensor.Clone()}
	}
	return g2
}
