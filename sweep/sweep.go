// Package sweep enumerates kernel configurations, runs each one on a reference and a
// candidate backend across precisions, and collects the verdicts into a report.
//
// Enumeration order is deterministic: grids in declaration order, configurations in
// odometer order (last domain fastest), then precisions, then candidate backends. The
// report lists results in exactly that order regardless of how workers interleave.
package sweep

import (
	"github.com/gomlx/crosscheck/kernels"
	"github.com/gomlx/crosscheck/types/xslices"
)

// Domain is one named axis of a parameter grid.
type Domain struct {
	Name   string
	Values []int
}

// Vals returns a domain over the given values.
func Vals(name string, values ...int) Domain {
	return Domain{Name: name, Values: values}
}

// Range returns a domain over the half-open interval [lo, hi).
func Range(name string, lo, hi int) Domain {
	if hi <= lo {
		return Domain{Name: name}
	}
	return Domain{Name: name, Values: xslices.Iota(lo, hi-lo)}
}

// Grid is the configuration space of one kernel family: the cartesian product of its
// domains.
type Grid struct {
	Family  string
	Domains []Domain
}

// Size returns the number of configurations the grid enumerates.
func (g Grid) Size() int {
	if len(g.Domains) == 0 {
		return 0
	}
	total := 1
	for _, d := range g.Domains {
		total *= len(d.Values)
	}
	return total
}

// Configurations enumerates the cartesian product in odometer order: the last domain
// advances fastest. Duplicates are impossible by construction.
func (g Grid) Configurations() []kernels.Params {
	total := g.Size()
	if total == 0 {
		return nil
	}
	out := make([]kernels.Params, 0, total)
	odometer := make([]int, len(g.Domains))
	for {
		p := make(kernels.Params, len(g.Domains))
		for i, d := range g.Domains {
			p[d.Name] = d.Values[odometer[i]]
		}
		out = append(out, p)

		axis := len(odometer) - 1
		for axis >= 0 {
			odometer[axis]++
			if odometer[axis] < len(g.Domains[axis].Values) {
				break
			}
			odometer[axis] = 0
			axis--
		}
		if axis < 0 {
			return out
		}
	}
}

// DefaultGrids returns the standard sweep: the dimensions the kernel families are
// exercised over.
func DefaultGrids() []Grid {
	return []Grid{
		{Family: "conv", Domains: []Domain{
			Vals("size", 5, 7, 15),
			Vals("depth", 8, 64),
			Vals("kernel", 1, 3),
		}},
		{Family: "batchedmatmul", Domains: []Domain{
			Vals("batch", 1, 4, 16, 24),
			Range("rows", 10, 16),
			Vals("depth", 32, 64, 128, 256),
		}},
		{Family: "fc", Domains: []Domain{
			Vals("batch", 1, 4, 16, 64),
			Vals("depth", 256, 512, 1024, 2048, 4096),
			Vals("width", 64, 256, 1024),
		}},
	}
}
