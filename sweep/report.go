package sweep

import (
	"time"

	"github.com/gomlx/crosscheck/compare"
	"github.com/gomlx/crosscheck/precisions"
	"gonum.org/v1/gonum/stat"
)

//go:generate go tool enumer -type=Status -trimprefix=Status -transform=lower -output=gen_status_enumer.go report.go

// Status classifies the outcome of one case.
type Status int

const (
	// StatusPass: the candidate output matched the reference within tolerance.
	StatusPass Status = iota

	// StatusFail: the candidate diverged (tolerance, shape, timeout) or the case hit
	// an unexpected error.
	StatusFail

	// StatusSkip: the configuration cannot run here (invalid kernel configuration or a
	// backend without the capability); not a defect.
	StatusSkip
)

// CaseResult is the recorded outcome of one case.
type CaseResult struct {
	Case      Case
	Status    Status
	Tolerance compare.Tolerance

	// Result carries the element-wise comparison diagnostics. It is the zero value
	// when the case never reached comparison (skips, execution failures).
	Result compare.Result

	// Err is the failure or skip reason; empty on a clean pass.
	Err string

	Elapsed time.Duration
}

// Compared reports whether the case went all the way through comparison.
func (cr CaseResult) Compared() bool { return cr.Result.Compared > 0 }

// Report is the plain-data outcome of a sweep run: results in enumeration order plus
// identity and timing. Rendering is the caller's business.
type Report struct {
	RunID     string
	Reference string
	Started   time.Time
	Elapsed   time.Duration
	Results   []CaseResult
}

// Counts tallies the results by status.
func (r *Report) Counts() (passed, failed, skipped int) {
	for _, cr := range r.Results {
		switch cr.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusSkip:
			skipped++
		}
	}
	return
}

// Failed reports whether any case failed.
func (r *Report) Failed() bool {
	for _, cr := range r.Results {
		if cr.Status == StatusFail {
			return true
		}
	}
	return false
}

// GroupStats summarizes the cases of one family at one precision.
type GroupStats struct {
	Family    string
	Precision precisions.Precision

	Cases   int
	Passed  int
	Failed  int
	Skipped int

	// MaxAbsDelta is the worst deviation any compared case in the group saw;
	// MeanMaxAbsDelta and StdDevMaxAbsDelta aggregate the per-case worst deviations.
	MaxAbsDelta       float64
	MeanMaxAbsDelta   float64
	StdDevMaxAbsDelta float64
}

// Summary aggregates the results by family and precision, in first-appearance order
// of the groups. Delta statistics cover only the cases that reached comparison.
func (r *Report) Summary() []GroupStats {
	type groupKey struct {
		family    string
		precision precisions.Precision
	}
	index := make(map[groupKey]int)
	var groups []GroupStats
	deltas := make(map[groupKey][]float64)

	for _, cr := range r.Results {
		key := groupKey{cr.Case.Family, cr.Case.Precision}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, GroupStats{Family: key.family, Precision: key.precision})
		}
		g := &groups[i]
		g.Cases++
		switch cr.Status {
		case StatusPass:
			g.Passed++
		case StatusFail:
			g.Failed++
		case StatusSkip:
			g.Skipped++
		}
		if cr.Compared() {
			deltas[key] = append(deltas[key], cr.Result.MaxAbsDelta)
			if cr.Result.MaxAbsDelta > g.MaxAbsDelta {
				g.MaxAbsDelta = cr.Result.MaxAbsDelta
			}
		}
	}
	for key, i := range index {
		if ds := deltas[key]; len(ds) > 0 {
			mean, std := stat.MeanStdDev(ds, nil)
			groups[i].MeanMaxAbsDelta = mean
			if len(ds) > 1 {
				groups[i].StdDevMaxAbsDelta = std
			}
		}
	}
	return groups
}
