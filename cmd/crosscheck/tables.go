package main

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/crosscheck/backends"
	"github.com/gomlx/crosscheck/sweep"
	"github.com/gomlx/crosscheck/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)

	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	failedRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// reportTable is a lipgloss table whose rows can be marked as failed, rendering in red.
type reportTable struct {
	table  *lgtable.Table
	count  int
	failed map[int]bool
}

func newReportTable(alignments ...lipgloss.Position) *reportTable {
	t := &reportTable{failed: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case t.failed[row]:
				s = failedRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	return t
}

func (t *reportTable) Headers(header ...string) {
	t.table.Headers(header...)
}

func (t *reportTable) Row(failed bool, row ...string) {
	if failed {
		t.failed[t.count] = true
	}
	t.table.Row(row...)
	t.count++
}

func (t *reportTable) Render() string { return t.table.Render() }

func formatDelta(d float64) string {
	return fmt.Sprintf("%.3g", d)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func printReport(report *sweep.Report) {
	passed, failed, skipped := report.Counts()

	fmt.Println(titleStyle.Render("Summary"))
	totals := newReportTable(lipgloss.Right, lipgloss.Left)
	totals.Row(false, "run", report.RunID)
	totals.Row(false, "reference", report.Reference)
	totals.Row(false, "started", report.Started.Format(time.RFC3339))
	totals.Row(false, "elapsed", formatElapsed(report.Elapsed))
	totals.Row(false, "cases", humanize.Comma(int64(len(report.Results))))
	totals.Row(false, "passed", humanize.Comma(int64(passed)))
	totals.Row(failed > 0, "failed", humanize.Comma(int64(failed)))
	totals.Row(false, "skipped", humanize.Comma(int64(skipped)))
	fmt.Println(totals.Render())

	fmt.Println(titleStyle.Render("By family and precision"))
	groups := newReportTable(lipgloss.Left, lipgloss.Left, lipgloss.Right)
	groups.Headers("Family", "Precision", "Cases", "Passed", "Failed", "Skipped", "Max Delta", "Mean ± Std")
	for _, g := range report.Summary() {
		groups.Row(g.Failed > 0,
			g.Family, g.Precision.String(),
			humanize.Comma(int64(g.Cases)),
			humanize.Comma(int64(g.Passed)),
			humanize.Comma(int64(g.Failed)),
			humanize.Comma(int64(g.Skipped)),
			formatDelta(g.MaxAbsDelta),
			fmt.Sprintf("%s ± %s", formatDelta(g.MeanMaxAbsDelta), formatDelta(g.StdDevMaxAbsDelta)))
	}
	fmt.Println(groups.Render())

	printOffenders(report, 10)
	printBroken(report, 10)
}

// printOffenders lists the failed cases that reached comparison, worst divergence
// first.
func printOffenders(report *sweep.Report, limit int) {
	var offenders []sweep.CaseResult
	for _, cr := range report.Results {
		if cr.Status == sweep.StatusFail && cr.Compared() {
			offenders = append(offenders, cr)
		}
	}
	if len(offenders) == 0 {
		return
	}
	slices.SortFunc(offenders, func(a, b sweep.CaseResult) int {
		if c := cmp.Compare(b.Result.MaxAbsDelta, a.Result.MaxAbsDelta); c != 0 {
			return c
		}
		return strings.Compare(a.Case.Key(), b.Case.Key())
	})
	total := len(offenders)
	if total > limit {
		offenders = offenders[:limit]
	}

	fmt.Println(titleStyle.Render("Worst offenders"))
	table := newReportTable(lipgloss.Left, lipgloss.Right)
	table.Headers("Case", "Max Delta", "At", "Expected", "Actual", "Tolerance")
	for _, cr := range offenders {
		table.Row(true,
			cr.Case.Key(),
			formatDelta(cr.Result.MaxAbsDelta),
			fmt.Sprint(cr.Result.MaxAbsDeltaIndex),
			fmt.Sprintf("%.6g", cr.Result.MaxAbsDeltaExpected),
			fmt.Sprintf("%.6g", cr.Result.MaxAbsDeltaActual),
			cr.Tolerance.String())
	}
	fmt.Println(table.Render())
	if total > limit {
		fmt.Printf("    ... and %s more failed cases; re-run with -v=1 for the full list.\n",
			humanize.Comma(int64(total-limit)))
	}
}

// printBroken lists the cases that failed before producing a comparable output, e.g.
// execution errors or timeouts.
func printBroken(report *sweep.Report, limit int) {
	var broken []sweep.CaseResult
	for _, cr := range report.Results {
		if cr.Status == sweep.StatusFail && !cr.Compared() {
			broken = append(broken, cr)
		}
	}
	if len(broken) == 0 {
		return
	}
	total := len(broken)
	if total > limit {
		broken = broken[:limit]
	}

	fmt.Println(titleStyle.Render("Failed before comparison"))
	table := newReportTable(lipgloss.Left, lipgloss.Left)
	table.Headers("Case", "Error")
	for _, cr := range broken {
		table.Row(true, cr.Case.Key(), cr.Err)
	}
	fmt.Println(table.Render())
	if total > limit {
		fmt.Printf("    ... and %s more.\n", humanize.Comma(int64(total-limit)))
	}
}

func listBackends() {
	fmt.Println(titleStyle.Render("Registered Backends"))
	table := newReportTable(lipgloss.Left)
	table.Headers("Name", "Description", "Kernels", "DTypes")
	for _, name := range backends.Registered() {
		backend, err := backends.NewWithConfig(name)
		if err != nil {
			table.Row(true, name, fmt.Sprintf("unavailable: %v", err), "", "")
			continue
		}
		capabilities := backend.Capabilities()
		table.Row(false,
			name,
			backend.Description(),
			strings.Join(xslices.Map(xslices.SortedKeys(capabilities.Kernels), backends.KernelKind.String), ", "),
			strings.Join(xslices.Map(xslices.SortedKeys(capabilities.DTypes), dtypes.DType.String), ", "))
		backend.Finalize()
	}
	fmt.Println(table.Render())
}
