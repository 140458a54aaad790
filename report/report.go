package report

// Package report renders the comparison table. Rendering is a pure
// function of the points and frontier; it never mutates either.

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/icscript/optimized-builds/pareto"
)

// BaselineLabel marks the configuration the percent deltas are computed
// against, when the campaign declares one.
const BaselineLabel = "official"

// Render writes the rows × metrics table sorted by the primary objective
// (best first, sequence id tie-break) with a frontier-membership flag per
// row, followed by the incomplete points that could not be compared.
func Render(w io.Writer, points, incomplete, frontier []pareto.Point, objectives []pareto.Objective) error {
	rows := make([]pareto.Point, len(points))
	copy(rows, points)

	primary := primaryObjective(objectives)
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i].Values[primary.Metric], rows[j].Values[primary.Metric]
		if vi != vj {
			if primary.Maximize {
				return vi > vj
			}
			return vi < vj
		}
		return rows[i].Seq() < rows[j].Seq()
	})

	onFrontier := map[int]bool{}
	for _, p := range frontier {
		onFrontier[p.Seq()] = true
	}

	baseline, hasBaseline := lo.Find(rows, func(p pareto.Point) bool {
		return p.Record.Config.Label == BaselineLabel
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	header := []string{"SEQ", "LABEL", "TOOLCHAIN", "CPU", "CGU", "LTO", "OPT", "PARETO"}
	for _, o := range objectives {
		header = append(header, o.Metric)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, p := range rows {
		cfg := p.Record.Config
		flag := ""
		if onFrontier[p.Seq()] {
			flag = "*"
		}
		cols := []string{
			fmt.Sprintf("%d", p.Seq()),
			cfg.Label,
			string(cfg.Toolchain),
			cfg.TargetCPU,
			fmt.Sprintf("%d", cfg.CodegenUnits),
			string(cfg.LTO),
			fmt.Sprintf("%d", cfg.OptLevel),
			flag,
		}
		for _, o := range objectives {
			cols = append(cols, formatCell(p, o, baseline, hasBaseline))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if len(incomplete) > 0 {
		fmt.Fprintf(w, "\nIncomplete (excluded from frontier):\n")
		inc := make([]pareto.Point, len(incomplete))
		copy(inc, incomplete)
		sort.Slice(inc, func(i, j int) bool { return inc[i].Seq() < inc[j].Seq() })
		for _, p := range inc {
			fmt.Fprintf(w, "  %d  %s: %s\n", p.Seq(), p.Record.Config.Label, incompleteReason(p, objectives))
		}
	}
	return nil
}

func primaryObjective(objectives []pareto.Objective) pareto.Objective {
	for _, o := range objectives {
		if o.Primary {
			return o
		}
	}
	if len(objectives) > 0 {
		return objectives[0]
	}
	return pareto.Objective{}
}

func formatCell(p pareto.Point, o pareto.Objective, baseline pareto.Point, hasBaseline bool) string {
	v, ok := p.Values[o.Metric]
	if !ok {
		return "-"
	}
	cell := fmt.Sprintf("%.2f", v)

	if agg, ok := p.Record.Aggregate(o.Metric); ok {
		cell += fmt.Sprintf(" ±%.2f", agg.Stddev)
		if agg.HighVariance {
			cell += "!"
		}
	}

	if hasBaseline && p.Seq() != baseline.Seq() {
		if base, ok := baseline.Values[o.Metric]; ok && base != 0 {
			cell += fmt.Sprintf(" (%+.1f%%)", (v-base)/base*100)
		}
	}
	return cell
}

func incompleteReason(p pareto.Point, objectives []pareto.Objective) string {
	var missing []string
	for _, o := range objectives {
		if _, ok := p.Values[o.Metric]; !ok {
			missing = append(missing, o.Metric)
		}
	}
	reason := fmt.Sprintf("missing %s", strings.Join(missing, ", "))

	var failures []string
	for _, sr := range p.Record.Benchmarks {
		if sr.Failed {
			failures = append(failures, fmt.Sprintf("%s: %s", sr.Suite, sr.FailureReason))
		}
	}
	if len(failures) > 0 {
		sort.Strings(failures)
		reason += " (" + strings.Join(failures, "; ") + ")"
	}
	return reason
}
