// crosscheck sweeps kernel configurations across precisions and backends, comparing
// every candidate output against the reference backend, and reports where the
// numerics drift outside tolerance.
//
// Examples:
//
//	crosscheck -backends=pargo
//	crosscheck -backends=pargo:8 -families=conv,fc -precisions=quantized -v=1
//	crosscheck -list
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/crosscheck/precisions"
	"github.com/gomlx/crosscheck/sweep"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/crosscheck/backends/interp"
	_ "github.com/gomlx/crosscheck/backends/pargo"
)

var (
	flagBackends = flag.String("backends", "pargo", "Comma-separated candidate backend configurations to check. "+
		"Each entry is a registered backend name, optionally followed by a colon and its configuration, e.g. \"pargo:8\".")
	flagReference = flag.String("reference", "interp", "Backend configuration whose outputs define the expected values.")
	flagFamilies  = flag.String("families", "", "Comma-separated kernel families to sweep (see -list). Empty sweeps all of them.")
	flagPrecisions = flag.String("precisions", "", "Comma-separated precisions to sweep: "+
		strings.Join(precisions.PrecisionStrings(), ", ")+". Empty sweeps all of them.")
	flagParallelism = flag.Int("parallelism", 0, "Number of cases in flight at once. 0 uses one per CPU.")
	flagTimeout     = flag.Duration("timeout", 0, "Deadline for each backend execution of a case. 0 uses the default.")
	flagList        = flag.Bool("list", false, "List the registered backends with their capabilities and exit.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'crosscheck -help'.", flag.Args())
		os.Exit(1)
	}

	if *flagList {
		listBackends()
		return
	}

	config := sweep.Config{
		Reference:   *flagReference,
		Candidates:  splitList(*flagBackends),
		Grids:       selectGrids(splitList(*flagFamilies)),
		Precisions:  selectPrecisions(splitList(*flagPrecisions)),
		Timeout:     *flagTimeout,
		Parallelism: *flagParallelism,
	}

	// The bar is created only once the runner tells us how many cases there are.
	var bar *progressbar.ProgressBar
	config.Progress = func(done, total int) {
		if bar != nil {
			_ = bar.Set(done)
		}
	}

	runner := must.M1(sweep.NewRunner(config))
	defer runner.Finalize()

	total := len(runner.Cases())
	bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(fmt.Sprintf("Checking %s cases: ", humanize.Comma(int64(total)))),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("cases"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := runner.Run(ctx)
	_ = bar.Finish()

	output := termenv.NewOutput(os.Stdout)
	output.ClearLine()
	fmt.Println()
	printReport(report)

	if err != nil {
		klog.Errorf("Sweep interrupted: %v", err)
		os.Exit(1)
	}
	if report.Failed() {
		os.Exit(1)
	}
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// selectGrids returns the default grids of the requested families, or all of them for
// an empty request.
func selectGrids(families []string) []sweep.Grid {
	all := sweep.DefaultGrids()
	if len(families) == 0 {
		return all
	}
	byFamily := make(map[string]sweep.Grid, len(all))
	known := make([]string, 0, len(all))
	for _, grid := range all {
		byFamily[grid.Family] = grid
		known = append(known, grid.Family)
	}
	grids := make([]sweep.Grid, 0, len(families))
	for _, family := range families {
		grid, found := byFamily[family]
		if !found {
			klog.Errorf("Unknown family %q in -families, known families are %s.", family, strings.Join(known, ", "))
			os.Exit(1)
		}
		grids = append(grids, grid)
	}
	return grids
}

func selectPrecisions(names []string) []precisions.Precision {
	selected := make([]precisions.Precision, 0, len(names))
	for _, name := range names {
		p, err := precisions.PrecisionString(name)
		if err != nil {
			klog.Errorf("Invalid precision %q in -precisions, valid values are %s.",
				name, strings.Join(precisions.PrecisionStrings(), ", "))
			os.Exit(1)
		}
		selected = append(selected, p)
	}
	return selected
}
