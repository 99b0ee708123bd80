// Package precisions lowers a Full-precision case graph into the numeric regime a
// candidate backend is judged under.
//
// The reference backend always runs the Full graph: precision loss introduced by an
// adaptation is absorbed by the per-precision comparison tolerances, not by degrading
// the reference.
package precisions

import "fmt"

//go:generate go tool enumer -type=Precision -transform=lower -output=gen_precision_enumer.go precisions.go

// Precision selects the numeric regime of a candidate run.
type Precision int

const (
	// Full runs the unmodified float32 graph.
	Full Precision = iota

	// Reduced stores every operand in float16. Backends accumulate in float32 and
	// round once at the end.
	Reduced

	// Quantized stores operands as int8 with affine quantization parameters (biases as
	// int32) and requantizes the kernel output to int8.
	Quantized
)

// RangePolicy decides how a realized value range maps onto the int8 grid.
type RangePolicy int

const (
	// Asymmetric covers [min, max] widened to include zero, so zero stays exactly
	// representable. Used for activations.
	Asymmetric RangePolicy = iota

	// Symmetric covers ±max|v| with zero-point 0. Used for weights, where a zero
	// zero-point keeps the kernels' inner products cheap.
	Symmetric
)

// String implements fmt.Stringer.
func (p RangePolicy) String() string {
	switch p {
	case Asymmetric:
		return "asymmetric"
	case Symmetric:
		return "symmetric"
	default:
		return fmt.Sprintf("RangePolicy(%d)", int(p))
	}
}
