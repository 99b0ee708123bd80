package sweep

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/backends/shapeinference"
	"github.com/gomlx/crosscheck/compare"
	"github.com/gomlx/crosscheck/graph"
	"github.com/gomlx/crosscheck/kernels"
	"github.com/gomlx/crosscheck/precisions"
	"github.com/gomlx/crosscheck/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config parametrizes a sweep run. NewRunner fills the defaults documented on each
// field and validates the rest.
type Config struct {
	// Grids to enumerate. Defaults to DefaultGrids().
	Grids []Grid

	// Precisions every configuration is checked at, in report order. Defaults to all
	// of them.
	Precisions []precisions.Precision

	// Reference is the backend configuration (see backends.NewWithConfig) whose Full
	// execution defines the expected values. Defaults to "interp". An unavailable
	// reference fails NewRunner: without it no case can be judged.
	Reference string

	// Candidates are the backend configurations under test. At least one is required.
	// An unavailable candidate does not fail the sweep; its cases are recorded
	// individually as skips.
	Candidates []string

	// Tolerances bound the comparison per family and precision. Defaults to
	// DefaultTolerances(). Must pass Tolerances.Validate.
	Tolerances Tolerances

	// Timeout bounds each backend execution of a case. Zero means
	// graph.DefaultTimeout; negative disables the deadline.
	Timeout time.Duration

	// Parallelism is the number of cases in flight at once. Zero or negative means
	// runtime.NumCPU().
	Parallelism int

	// Progress, if set, is called after each finished case with the number done so
	// far and the total. Calls are serialized; keep it cheap.
	Progress func(done, total int)
}

// Runner executes sweeps: it owns the reference and candidate backend instances for
// the duration of the run. Create with NewRunner and release with Finalize.
type Runner struct {
	config    Config
	reference backends.Backend

	// candidates holds the constructed backends by configuration string; candidates
	// that failed to construct are in candidateErrs instead and skip their cases.
	candidates    map[string]backends.Backend
	candidateErrs map[string]error
}

// NewRunner validates config, applies defaults and constructs the backends.
func NewRunner(config Config) (*Runner, error) {
	if len(config.Grids) == 0 {
		config.Grids = DefaultGrids()
	}
	if len(config.Precisions) == 0 {
		config.Precisions = precisions.PrecisionValues()
	}
	if config.Reference == "" {
		config.Reference = "interp"
	}
	if len(config.Candidates) == 0 {
		return nil, errors.New("sweep needs at least one candidate backend")
	}
	if config.Tolerances == nil {
		config.Tolerances = DefaultTolerances()
	}
	if err := config.Tolerances.Validate(); err != nil {
		return nil, err
	}
	if config.Parallelism <= 0 {
		config.Parallelism = runtime.NumCPU()
	}

	reference, err := backends.NewWithConfig(config.Reference)
	if err != nil {
		return nil, errors.WithMessagef(err, "reference backend %q", config.Reference)
	}

	r := &Runner{
		config:        config,
		reference:     reference,
		candidates:    make(map[string]backends.Backend, len(config.Candidates)),
		candidateErrs: make(map[string]error),
	}
	deduped := make([]string, 0, len(config.Candidates))
	seen := types.MakeSet[string](len(config.Candidates))
	for _, name := range config.Candidates {
		if seen.Has(name) {
			continue
		}
		seen.Insert(name)
		deduped = append(deduped, name)
		candidate, err := backends.NewWithConfig(name)
		if err != nil {
			klog.Warningf("candidate backend %q unavailable, its cases will be skipped: %v", name, err)
			r.candidateErrs[name] = err
			continue
		}
		r.candidates[name] = candidate
	}
	r.config.Candidates = deduped
	return r, nil
}

// Finalize releases the reference and candidate backends. The Runner must not be used
// afterwards.
func (r *Runner) Finalize() {
	if r.reference != nil {
		r.reference.Finalize()
		r.reference = nil
	}
	for name, candidate := range r.candidates {
		candidate.Finalize()
		delete(r.candidates, name)
	}
}

// Cases enumerates the sweep in its canonical order: grids as configured, each grid's
// parameter assignments in odometer order, then precisions, then candidates. The
// report's results follow this order, so runs with the same config line up
// case-for-case.
func (r *Runner) Cases() []Case {
	var cases []Case
	for _, grid := range r.config.Grids {
		for _, params := range grid.Configurations() {
			for _, p := range r.config.Precisions {
				for _, candidate := range r.config.Candidates {
					cases = append(cases, Case{
						Family:    grid.Family,
						Params:    params,
						Precision: p,
						Backend:   candidate,
					})
				}
			}
		}
	}
	return cases
}

// Run executes every case and assembles the report. A fixed pool of
// Config.Parallelism workers consumes the cases; results land at their enumeration
// index, so scheduling order never shows in the report.
//
// Case-level problems are contained in their CaseResult and never abort the run. On
// context cancellation the cases not yet started are recorded as skips and Run
// returns the partial report together with the context's error.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cases := r.Cases()
	report := &Report{
		RunID:     uuid.NewString(),
		Reference: r.config.Reference,
		Started:   time.Now(),
		Results:   make([]CaseResult, len(cases)),
	}
	klog.V(1).Infof("sweep %s: %d cases on reference %q with %d workers",
		report.RunID, len(cases), r.config.Reference, r.config.Parallelism)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	indices := make(chan int)
	for range min(r.config.Parallelism, len(cases)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indices {
				c := cases[idx]
				var cr CaseResult
				if err := ctx.Err(); err != nil {
					cr = CaseResult{Case: c, Status: StatusSkip, Err: err.Error()}
				} else {
					cr = r.runCase(ctx, c)
				}
				report.Results[idx] = cr
				casesTotal.WithLabelValues(c.Family, c.Precision.String(), c.Backend, cr.Status.String()).Inc()
				caseDuration.Observe(cr.Elapsed.Seconds())

				mu.Lock()
				done++
				if r.config.Progress != nil {
					r.config.Progress(done, len(cases))
				}
				mu.Unlock()
			}
		}()
	}
	for idx := range cases {
		indices <- idx
	}
	close(indices)
	wg.Wait()

	report.Elapsed = time.Since(report.Started)
	passed, failed, skipped := report.Counts()
	klog.V(1).Infof("sweep %s: %d passed, %d failed, %d skipped in %s",
		report.RunID, passed, failed, skipped, report.Elapsed.Round(time.Millisecond))
	return report, ctx.Err()
}

// classify maps an error from building or running a case to the status it is recorded
// under: configurations the harness cannot realize and capabilities a backend does not
// claim are skips, everything else is a failure.
func classify(err error) Status {
	if errors.Is(err, shapeinference.ErrInvalidConfiguration) ||
		errors.Is(err, backends.ErrBackendUnavailable) {
		return StatusSkip
	}
	return StatusFail
}

// runCase takes one case end to end: build the seeded base graph, run it on the
// reference, adapt it to the case precision, run the adapted graph on the candidate
// and compare.
func (r *Runner) runCase(ctx context.Context, c Case) (cr CaseResult) {
	start := time.Now()
	cr.Case = c
	defer func() {
		cr.Elapsed = time.Since(start)
		if cr.Err == "" {
			klog.V(1).Infof("%s: %s in %s", c.Key(), cr.Status, cr.Elapsed.Round(time.Microsecond))
		} else {
			klog.V(1).Infof("%s: %s in %s: %s", c.Key(), cr.Status, cr.Elapsed.Round(time.Microsecond), cr.Err)
		}
	}()
	abort := func(status Status, err error) CaseResult {
		cr.Status = status
		cr.Err = err.Error()
		return cr
	}

	tol, err := r.config.Tolerances.Lookup(c.Family, c.Precision)
	if err != nil {
		return abort(StatusFail, err)
	}
	cr.Tolerance = tol

	candidate, found := r.candidates[c.Backend]
	if !found {
		err := r.candidateErrs[c.Backend]
		if err == nil {
			err = errors.Wrapf(backends.ErrBackendUnavailable, "candidate %q was not configured", c.Backend)
		}
		return abort(classify(err), err)
	}

	spec, err := kernels.ByName(c.Family)
	if err != nil {
		return abort(StatusFail, err)
	}
	first, second := c.Seed()
	base, err := spec.Build(c.Key(), c.Params, rand.New(rand.NewPCG(first, second)))
	if err != nil {
		return abort(classify(err), err)
	}

	opts := graph.ExecOptions{Timeout: r.config.Timeout}
	refOut, err := graph.Execute(ctx, base, r.reference, opts)
	if err != nil {
		// The reference defines the expected values; a case it cannot run is broken,
		// not skippable.
		return abort(StatusFail, errors.WithMessage(err, "reference"))
	}

	adapter := precisions.NewAdapter(func(context.Context, *graph.Graph) (float64, float64, error) {
		minValue, maxValue := refOut.MinMax()
		return minValue, maxValue, nil
	})
	adapted, notices, err := adapter.Adapt(ctx, base, c.Precision)
	if err != nil {
		return abort(classify(err), err)
	}
	for _, notice := range notices {
		rangeRepairsTotal.Inc()
		klog.V(1).Infof("%s: %v", c.Key(), notice)
	}

	candOut, err := graph.Execute(ctx, adapted, candidate, opts)
	if err != nil {
		return abort(classify(err), err)
	}

	result, err := compare.Tensors(refOut, candOut, tol)
	if err != nil {
		return abort(StatusFail, err)
	}
	cr.Result = result
	if !result.Passed {
		cr.Status = StatusFail
		cr.Err = fmt.Sprintf("%d of %d elements outside tolerance %s",
			result.Mismatches, result.Compared, tol)
		return cr
	}
	cr.Status = StatusPass
	return cr
}
