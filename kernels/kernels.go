// Package kernels is the catalog of kernel families the harness can sweep over.
//
// A Spec describes one family: its kernel kind, its named integer parameters, and how to
// materialize a concrete case graph from a parameter assignment. Operand contents are
// drawn from the *rand.Rand the caller provides, so the same parameters and seed always
// produce the same graph.
//
// The three families and their operand initialization mirror a classic convolution /
// batched-matmul / fully-connected sweep: inputs cover the value ranges the tolerances
// were calibrated for.
package kernels

import (
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/shapeinference"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/types/xslices"
	"github.com/pkg/errors"
)

// Params is one assignment of values to a family's named parameters.
type Params map[string]int

// Clone returns a copy of the parameter assignment.
func (p Params) Clone() Params {
	p2 := make(Params, len(p))
	for k, v := range p {
		p2[k] = v
	}
	return p2
}

// String formats the assignment as "k1=v1,k2=v2,..." with keys sorted, so equal
// assignments always format identically.
func (p Params) String() string {
	var sb strings.Builder
	for i, k := range xslices.SortedKeys(p) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(p[k]))
	}
	return sb.String()
}

// ParamSpec declares one named parameter of a family.
type ParamSpec struct {
	Name string

	// Default applies when the parameter is absent from an assignment. Only meaningful
	// when Required is false.
	Default int

	// Required parameters must be present in every assignment.
	Required bool

	// Min is the smallest acceptable value.
	Min int
}

// Spec describes one kernel family.
type Spec struct {
	// Name of the family, e.g. "conv". Also its key in the catalog.
	Name string

	// Kind of the kernel the family builds.
	Kind backends.KernelKind

	// Params declares the family's parameters, in canonical order.
	Params []ParamSpec

	build func(name string, p Params, rng *rand.Rand) (*graph.Graph, error)
}

// Build materializes a validated case graph for the given parameter assignment.
// The name becomes the graph name, usually the case key.
//
// Assignments that are incomplete, out of range, or fail the kernel's shape rules
// return an error wrapping shapeinference.ErrInvalidConfiguration; the sweep records
// those as skips.
func (s Spec) Build(name string, p Params, rng *rand.Rand) (*graph.Graph, error) {
	resolved, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	g, err := s.build(name, resolved, rng)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// resolve validates an assignment against the family's parameter specs and fills in
// defaults. Unknown parameter names are rejected; they signal a mis-built grid.
func (s Spec) resolve(p Params) (Params, error) {
	names := make(map[string]bool, len(s.Params))
	resolved := make(Params, len(s.Params))
	for _, ps := range s.Params {
		names[ps.Name] = true
		value, present := p[ps.Name]
		if !present {
			if ps.Required {
				return nil, errors.Wrapf(shapeinference.ErrInvalidConfiguration,
					"family %q requires parameter %q", s.Name, ps.Name)
			}
			value = ps.Default
		}
		if value < ps.Min {
			return nil, errors.Wrapf(shapeinference.ErrInvalidConfiguration,
				"family %q parameter %q must be >= %d, got %d", s.Name, ps.Name, ps.Min, value)
		}
		resolved[ps.Name] = value
	}
	for name := range p {
		if !names[name] {
			return nil, errors.Wrapf(shapeinference.ErrInvalidConfiguration,
				"family %q has no parameter %q", s.Name, name)
		}
	}
	return resolved, nil
}

// ParamNames returns the family's parameter names in canonical order.
func (s Spec) ParamNames() []string {
	names := make([]string, len(s.Params))
	for i, ps := range s.Params {
		names[i] = ps.Name
	}
	return names
}

// Catalog returns all registered families, in a stable order.
func Catalog() []Spec {
	return []Spec{convSpec, batchedMatMulSpec, fullyConnectedSpec}
}

// ByName returns the family with the given name.
func ByName(name string) (Spec, error) {
	for _, s := range Catalog() {
		if s.Name == name {
			return s, nil
		}
	}
	known := make([]string, 0, len(Catalog()))
	for _, s := range Catalog() {
		known = append(known, s.Name)
	}
	return Spec{}, errors.Errorf("unknown kernel family %q (known: %s)", name, strings.Join(known, ", "))
}
