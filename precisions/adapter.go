package precisions

import (
	"context"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// CalibrateFn provides the realized output value range of the base graph. The
// orchestrator wires it to the reference execution it performs anyway; standalone users
// can run the base graph on any backend inside it.
type CalibrateFn func(ctx context.Context, base *graph.Graph) (minValue, maxValue float64, err error)

// Adapter lowers validated Full-precision graphs into a Precision's numeric regime.
type Adapter struct {
	// WeightPolicy maps weight value ranges onto the int8 grid.
	WeightPolicy RangePolicy
	// ActivationPolicy maps input and output value ranges onto the int8 grid.
	ActivationPolicy RangePolicy
	// Calibrate provides the output range for Quantized adaptations.
	Calibrate CalibrateFn
}

// NewAdapter returns an Adapter with the standard policies: symmetric weights,
// asymmetric activations.
func NewAdapter(calibrate CalibrateFn) Adapter {
	return Adapter{WeightPolicy: Symmetric, ActivationPolicy: Asymmetric, Calibrate: calibrate}
}

// Adapt returns the graph a candidate backend executes for precision p. The base graph
// must be validated and is never mutated.
//
// Notices are non-fatal findings (quantization range repairs wrapping
// ErrDegenerateRange) the caller should log; they never fail the case.
func (a Adapter) Adapt(ctx context.Context, base *graph.Graph, p Precision) (adapted *graph.Graph, notices []error, err error) {
	if !base.Validated() {
		return nil, nil, errors.Errorf("precision adaptation needs a validated graph, %q is not", base.Name())
	}
	switch p {
	case Full:
		return base.Clone(), nil, nil
	case Reduced:
		return a.reduce(base)
	case Quantized:
		return a.quantize(ctx, base)
	default:
		return nil, nil, errors.Errorf("unknown precision %s", p)
	}
}

// reduce converts every operand to float16 storage. Backends accumulate their float16
// kernels in float32, so only the operand and output storage loses precision.
func (a Adapter) reduce(base *graph.Graph) (*graph.Graph, []error, error) {
	g := graph.New(base.Name(), base.Kind(), base.Attrs())
	for _, op := range base.Inputs() {
		g.AddInput(op.Name, op.Tensor.ConvertTo(dtypes.Float16))
	}
	for _, op := range base.Weights() {
		g.AddWeight(op.Name, op.Tensor.ConvertTo(dtypes.Float16))
	}
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	return g, nil, nil
}

// quantize lowers the graph to int8 operands: asymmetric activations over their
// realized range widened to include zero, symmetric weights, int32 bias under the
// input-times-weight scale, and an output requantization range from Calibrate.
func (a Adapter) quantize(ctx context.Context, base *graph.Graph) (*graph.Graph, []error, error) {
	if a.Calibrate == nil {
		return nil, nil, errors.Errorf("quantized adaptation of %q needs a Calibrate function", base.Name())
	}
	var notices []error
	choose := func(operand string, minValue, maxValue float64, policy RangePolicy) (tensors.QuantParams, error) {
		q, err := ChooseQuantParams(minValue, maxValue, policy)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrDegenerateRange) {
			return q, errors.WithMessagef(err, "operand %q of %q", operand, base.Name())
		}
		notices = append(notices, errors.WithMessagef(err, "operand %q of %q", operand, base.Name()))
		return q, nil
	}

	outMin, outMax, err := a.Calibrate(ctx, base)
	if err != nil {
		return nil, notices, errors.WithMessagef(err, "calibrating output range of %q", base.Name())
	}
	outQuant, err := choose("output", outMin, outMax, a.ActivationPolicy)
	if err != nil {
		return nil, notices, err
	}
	attrs := base.Attrs()
	attrs.OutputQuant = &outQuant

	g := graph.New(base.Name(), base.Kind(), attrs)
	var inScale, weightScale float64
	for _, op := range base.Inputs() {
		lo, hi := op.Tensor.MinMax()
		q, err := choose(op.Name, lo, hi, a.ActivationPolicy)
		if err != nil {
			return nil, notices, err
		}
		inScale = q.Scale
		g.AddInput(op.Name, Quantize(op.Tensor, q))
	}
	weights := base.Weights()
	bias := biasIndex(base.Kind(), len(weights))
	for i, op := range weights {
		if i == bias {
			g.AddWeight(op.Name, QuantizeBias(op.Tensor, inScale, weightScale))
			continue
		}
		lo, hi := op.Tensor.MinMax()
		q, err := choose(op.Name, lo, hi, a.WeightPolicy)
		if err != nil {
			return nil, notices, err
		}
		weightScale = q.Scale
		g.AddWeight(op.Name, Quantize(op.Tensor, q))
	}
	if err := g.Validate(); err != nil {
		return nil, notices, err
	}
	return g, notices, nil
}

// biasIndex returns the position of the bias in the weights list, or -1 when the kernel
// has none. Conv2D and FullyConnected carry (main weight, bias); BatchedMatMul has no
// bias operand.
func biasIndex(kind backends.KernelKind, numWeights int) int {
	switch kind {
	case backends.KernelConv2D, backends.KernelFullyConnected:
		return numWeights - 1
	default:
		return -1
	}
}
