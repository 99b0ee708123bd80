// Package compare is the equivalence judge: it decides whether a candidate backend's
// output matches a reference output within a tolerance, and reports the worst offending
// element either way.
//
// Comparison always happens in real space: tensors are materialized as float64, with
// float16 upcast and quantized integers dequantized first, so a quantized candidate is
// judged against a full-precision reference on the same scale.
package compare

import (
	"fmt"
	"math"

	"github.com/gomlx/crosscheck/types/shapes"
	"github.com/gomlx/crosscheck/types/tensors"
	"github.com/pkg/errors"
)

// Tolerance bounds the allowed element-wise deviation: an element passes when
// |actual-expected| <= Abs or |actual-expected| <= Rel*|expected|.
type Tolerance struct {
	Abs float64
	Rel float64
}

// IsZero reports whether the tolerance admits no deviation at all.
func (tol Tolerance) IsZero() bool { return tol.Abs == 0 && tol.Rel == 0 }

// String implements fmt.Stringer.
func (tol Tolerance) String() string {
	return fmt.Sprintf("{abs=%g, rel=%g}", tol.Abs, tol.Rel)
}

// ErrShapeMismatch reports that the two outputs do not even agree on dimensions.
// It is a hard case failure, never absorbed by tolerances.
var ErrShapeMismatch = errors.New("output shape mismatch")

// Result is the verdict of one comparison. The worst-offender fields are populated
// whether the comparison passed or not: on a pass they show how much headroom was left.
type Result struct {
	Passed     bool
	Compared   int
	Mismatches int

	MaxAbsDelta         float64
	MaxAbsDeltaIndex    []int
	MaxAbsDeltaExpected float64
	MaxAbsDeltaActual   float64
}

// String implements fmt.Stringer, a one-line summary for logs.
func (r Result) String() string {
	status := "passed"
	if !r.Passed {
		status = fmt.Sprintf("FAILED (%d of %d elements mismatched)", r.Mismatches, r.Compared)
	}
	return fmt.Sprintf("%s: max |delta| %.4g at %v (expected %.6g, actual %.6g)",
		status, r.MaxAbsDelta, r.MaxAbsDeltaIndex, r.MaxAbsDeltaExpected, r.MaxAbsDeltaActual)
}

// Tensors compares the candidate output against the reference output under the
// tolerance. Dimension disagreement returns an error wrapping ErrShapeMismatch; dtypes
// may differ, values are compared in float64 real space.
func Tensors(expected, actual *tensors.Tensor, tol Tolerance) (Result, error) {
	if !expected.Shape().EqualDimensions(actual.Shape()) {
		return Result{}, errors.Wrapf(ErrShapeMismatch, "expected %s, actual %s",
			expected.Shape(), actual.Shape())
	}
	expectedValues := expected.Float64Values()
	actualValues := actual.Float64Values()

	r := Result{Passed: true, Compared: len(expectedValues)}
	worst := -1
	for i := range expectedValues {
		delta, ok := elementDelta(expectedValues[i], actualValues[i], tol)
		if !ok {
			r.Passed = false
			r.Mismatches++
		}
		if worst < 0 || delta > r.MaxAbsDelta {
			worst = i
			r.MaxAbsDelta = delta
			r.MaxAbsDeltaExpected = expectedValues[i]
			r.MaxAbsDeltaActual = actualValues[i]
		}
	}
	if worst >= 0 {
		r.MaxAbsDeltaIndex = multiIndex(expected.Shape(), worst)
	}
	return r, nil
}

// elementDelta returns the absolute deviation of one element and whether it is within
// tolerance. Non-finite values are equal only to themselves -- both NaN, or infinities
// of the same sign; any other pairing counts as an infinite deviation.
func elementDelta(expected, actual float64, tol Tolerance) (delta float64, ok bool) {
	if math.IsNaN(expected) || math.IsNaN(actual) {
		if math.IsNaN(expected) && math.IsNaN(actual) {
			return 0, true
		}
		return math.Inf(1), false
	}
	if math.IsInf(expected, 0) || math.IsInf(actual, 0) {
		if expected == actual {
			return 0, true
		}
		return math.Inf(1), false
	}
	delta = math.Abs(actual - expected)
	return delta, delta <= tol.Abs || delta <= tol.Rel*math.Abs(expected)
}

// multiIndex converts a flat row-major index into per-axis indices.
func multiIndex(s shapes.Shape, flat int) []int {
	idx := make([]int, s.Rank())
	for axis := s.Rank() - 1; axis >= 0; axis-- {
		dim := s.Dimensions[axis]
		idx[axis] = flat % dim
		flat /= dim
	}
	return idx
}
