package sweep

import (
	"github.com/gomlx/crosscheck/compare"
	"github.com/gomlx/crosscheck/precisions"
	"github.com/pkg/errors"
)

// Tolerances is the per-family, per-precision tolerance table the judge applies.
type Tolerances map[string]map[precisions.Precision]compare.Tolerance

// DefaultTolerances returns the standard table. The absolute bounds are family
// specific; the relative bounds follow the precision alone.
func DefaultTolerances() Tolerances {
	return Tolerances{
		"conv": {
			precisions.Full:      {Abs: 0.0001},
			precisions.Reduced:   {Abs: 0.005, Rel: 0.001},
			precisions.Quantized: {Abs: 0.045, Rel: 0.01},
		},
		"batchedmatmul": {
			precisions.Full:      {Abs: 0.0001},
			precisions.Reduced:   {Abs: 0.005, Rel: 0.001},
			precisions.Quantized: {Abs: 0.06, Rel: 0.01},
		},
		"fc": {
			precisions.Full:      {Abs: 0.0001},
			precisions.Reduced:   {Abs: 0.004, Rel: 0.001},
			precisions.Quantized: {Abs: 0.065, Rel: 0.01},
		},
	}
}

// Lookup returns the tolerance for a family at a precision.
func (t Tolerances) Lookup(family string, p precisions.Precision) (compare.Tolerance, error) {
	byPrecision, ok := t[family]
	if !ok {
		return compare.Tolerance{}, errors.Errorf("no tolerances for family %q", family)
	}
	tol, ok := byPrecision[p]
	if !ok {
		return compare.Tolerance{}, errors.Errorf("no %s tolerance for family %q", p, family)
	}
	return tol, nil
}

// Validate checks that every family carries all precisions and orders them from
// tightest to loosest: lower precision may only widen the bounds, never tighten them.
func (t Tolerances) Validate() error {
	order := []precisions.Precision{precisions.Full, precisions.Reduced, precisions.Quantized}
	for family, byPrecision := range t {
		var prev compare.Tolerance
		for i, p := range order {
			tol, ok := byPrecision[p]
			if !ok {
				return errors.Errorf("family %q is missing the %s tolerance", family, p)
			}
			if tol.Abs <= 0 {
				return errors.Errorf("family %q has a non-positive %s absolute bound", family, p)
			}
			if i > 0 && (tol.Abs < prev.Abs || tol.Rel < prev.Rel) {
				return errors.Errorf("family %q tightens bounds from %s %s to %s %s",
					family, order[i-1], prev, p, tol)
			}
			prev = tol
		}
	}
	return nil
}
