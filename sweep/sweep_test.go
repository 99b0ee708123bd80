package sweep

import (
	"testing"

	"github.com/gomlx/crosscheck/compare"
	"github.com/gomlx/crosscheck/kernels"
	"github.com/gomlx/crosscheck/precisions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridConfigurations(t *testing.T) {
	grid := Grid{
		Family: "conv",
		Domains: []Domain{
			Vals("size", 5, 7),
			Range("kernel", 1, 4),
		},
	}
	require.Equal(t, 6, grid.Size())
	configurations := grid.Configurations()
	require.Len(t, configurations, 6)

	want := []kernels.Params{
		{"size": 5, "kernel": 1},
		{"size": 5, "kernel": 2},
		{"size": 5, "kernel": 3},
		{"size": 7, "kernel": 1},
		{"size": 7, "kernel": 2},
		{"size": 7, "kernel": 3},
	}
	assert.Equal(t, want, configurations)

	// Each configuration owns its map.
	configurations[0]["size"] = 99
	assert.Equal(t, 5, configurations[1]["size"])

	assert.Zero(t, Grid{Family: "conv"}.Size())
	assert.Nil(t, Grid{Family: "conv"}.Configurations())
}

func TestRangeDomain(t *testing.T) {
	assert.Equal(t, Domain{Name: "rows", Values: []int{10, 11, 12}}, Range("rows", 10, 13))
	assert.Empty(t, Range("rows", 5, 5).Values)
}

func TestDefaultGridsMatchCatalog(t *testing.T) {
	grids := DefaultGrids()
	require.Len(t, grids, 3)
	for _, grid := range grids {
		spec, err := kernels.ByName(grid.Family)
		require.NoError(t, err, "grid family %q", grid.Family)
		require.Greater(t, grid.Size(), 0)
		for _, d := range grid.Domains {
			found := false
			for _, ps := range spec.Params {
				if ps.Name == d.Name {
					found = true
					break
				}
			}
			assert.True(t, found, "grid %q uses undeclared parameter %q", grid.Family, d.Name)
		}
	}
}

func TestCaseKey(t *testing.T) {
	c := Case{
		Family:    "conv",
		Params:    kernels.Params{"size": 7, "depth": 8, "kernel": 3},
		Precision: precisions.Reduced,
		Backend:   "pargo:4",
	}
	assert.Equal(t, "conv[depth=8,kernel=3,size=7]/reduced@pargo:4", c.Key())
}

func TestCaseSeed(t *testing.T) {
	base := Case{
		Family:    "fc",
		Params:    kernels.Params{"batch": 4, "depth": 256, "width": 64},
		Precision: precisions.Full,
		Backend:   "interp",
	}
	first, second := base.Seed()
	assert.NotEqual(t, first, second)

	// Precision and backend do not participate: every variant of a configuration
	// sees the same tensors.
	variant := base
	variant.Precision = precisions.Quantized
	variant.Backend = "pargo"
	variantFirst, variantSecond := variant.Seed()
	assert.Equal(t, first, variantFirst)
	assert.Equal(t, second, variantSecond)

	// Any parameter change does.
	other := base
	other.Params = kernels.Params{"batch": 4, "depth": 256, "width": 65}
	otherFirst, _ := other.Seed()
	assert.NotEqual(t, first, otherFirst)
}

func TestTolerancesLookup(t *testing.T) {
	table := DefaultTolerances()

	tol, err := table.Lookup("conv", precisions.Quantized)
	require.NoError(t, err)
	assert.Equal(t, compare.Tolerance{Abs: 0.045, Rel: 0.01}, tol)

	_, err = table.Lookup("pooling", precisions.Full)
	require.ErrorContains(t, err, "pooling")

	delete(table["fc"], precisions.Reduced)
	_, err = table.Lookup("fc", precisions.Reduced)
	require.ErrorContains(t, err, "reduced")
}

func TestTolerancesValidate(t *testing.T) {
	require.NoError(t, DefaultTolerances().Validate())

	missing := DefaultTolerances()
	delete(missing["conv"], precisions.Reduced)
	require.ErrorContains(t, missing.Validate(), "missing")

	zero := DefaultTolerances()
	zero["fc"][precisions.Full] = compare.Tolerance{}
	require.ErrorContains(t, zero.Validate(), "non-positive")

	// Lowering precision may only widen the bounds.
	tightened := DefaultTolerances()
	tightened["batchedmatmul"][precisions.Quantized] = compare.Tolerance{Abs: 0.001, Rel: 0.01}
	require.ErrorContains(t, tightened.Validate(), "tightens")
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "pass", StatusPass.String())
	assert.Equal(t, "fail", StatusFail.String())
	assert.Equal(t, "skip", StatusSkip.String())

	s, err := StatusString("skip")
	require.NoError(t, err)
	assert.Equal(t, StatusSkip, s)
	_, err = StatusString("exploded")
	require.Error(t, err)
}

func reportFixture() *Report {
	mk := func(family string, p precisions.Precision, status Status, maxDelta float64, compared int) CaseResult {
		return CaseResult{
			Case:   Case{Family: family, Params: kernels.Params{"n": 1}, Precision: p, Backend: "pargo"},
			Status: status,
			Result: compare.Result{Passed: status == StatusPass, Compared: compared, MaxAbsDelta: maxDelta},
		}
	}
	return &Report{
		RunID: "fixture",
		Results: []CaseResult{
			mk("conv", precisions.Full, StatusPass, 0.00001, 100),
			mk("conv", precisions.Full, StatusPass, 0.00003, 100),
			mk("conv", precisions.Full, StatusFail, 0.5, 100),
			mk("conv", precisions.Reduced, StatusSkip, 0, 0),
			mk("fc", precisions.Full, StatusPass, 0.00002, 64),
		},
	}
}

func TestReportCounts(t *testing.T) {
	report := reportFixture()
	passed, failed, skipped := report.Counts()
	assert.Equal(t, 3, passed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.True(t, report.Failed())

	clean := &Report{Results: []CaseResult{{Status: StatusPass}, {Status: StatusSkip}}}
	assert.False(t, clean.Failed())
}

func TestReportSummary(t *testing.T) {
	groups := reportFixture().Summary()
	require.Len(t, groups, 3)

	// Groups appear in first-appearance order of the results.
	assert.Equal(t, "conv", groups[0].Family)
	assert.Equal(t, precisions.Full, groups[0].Precision)
	assert.Equal(t, "conv", groups[1].Family)
	assert.Equal(t, precisions.Reduced, groups[1].Precision)
	assert.Equal(t, "fc", groups[2].Family)

	convFull := groups[0]
	assert.Equal(t, 3, convFull.Cases)
	assert.Equal(t, 2, convFull.Passed)
	assert.Equal(t, 1, convFull.Failed)
	assert.Equal(t, 0.5, convFull.MaxAbsDelta)
	assert.InDelta(t, (0.00001+0.00003+0.5)/3, convFull.MeanMaxAbsDelta, 1e-12)
	assert.Greater(t, convFull.StdDevMaxAbsDelta, 0.0)

	// The skipped case never reached comparison, so its group has no delta stats.
	convReduced := groups[1]
	assert.Equal(t, 1, convReduced.Skipped)
	assert.Zero(t, convReduced.MaxAbsDelta)
	assert.Zero(t, convReduced.MeanMaxAbsDelta)

	// A single compared case has a mean but no spread.
	fcFull := groups[2]
	assert.Equal(t, 0.00002, fcFull.MaxAbsDelta)
	assert.Equal(t, 0.00002, fcFull.MeanMaxAbsDelta)
	assert.Zero(t, fcFull.StdDevMaxAbsDelta)
}
