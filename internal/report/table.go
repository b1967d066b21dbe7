package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"ma-screener/internal/model"
	"ma-screener/internal/rank"
)

// WriteTable prints records as an aligned console table. Nothing but a
// notice is printed for an empty list.
func WriteTable(w io.Writer, l Layout, records []model.SignalRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No matches found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(l.Header(), "\t")+"\t")
	for _, r := range records {
		fmt.Fprintln(tw, strings.Join(l.Row(r), "\t")+"\t")
	}
	return tw.Flush()
}

// WriteIssues lists failed and skipped symbols so none disappears
// silently.
func WriteIssues(w io.Writer, res *model.ScanResult) error {
	if len(res.Failures) == 0 && len(res.Skipped) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "symbol\tstatus\treason")
	for _, f := range res.Failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Symbol, f.Kind, f.Reason)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(tw, "%s\tSKIPPED\t%s\n", s.Symbol, s.Reason)
	}
	return tw.Flush()
}

// PrintSummary prints the backtest summary box.
func PrintSummary(w io.Writer, res *model.ScanResult, s rank.Summary, prec Precision) {
	pct := prec.PctPlaces
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Strategy:          %-16s ║\n", res.Strategy)
	fmt.Fprintf(w, "║  Symbols scanned:   %-16d ║\n", res.Universe)
	fmt.Fprintf(w, "║  Failed / skipped:  %-16s ║\n", fmt.Sprintf("%d / %d", len(res.Failures), len(res.Skipped)))
	fmt.Fprintf(w, "║  Total signals:     %-16d ║\n", s.Signals)
	fmt.Fprintf(w, "║  Win rate:          %-16s ║\n", Round(s.WinRate*100, pct)+"%")
	fmt.Fprintf(w, "║  Avg next-day ret:  %-16s ║\n", Round(s.MeanReturn, pct)+"%")
	fmt.Fprintf(w, "║  Cumulative ret:    %-16s ║\n", Round(s.Total(), pct)+"%")
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
}

// WriteBySymbol prints per-symbol backtest statistics, best total first.
func WriteBySymbol(w io.Writer, by map[string]rank.Summary, prec Precision) error {
	syms := make([]string, 0, len(by))
	for s := range by {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		ti, tj := by[syms[i]].Total(), by[syms[j]].Total()
		if ti != tj {
			return ti > tj
		}
		return syms[i] < syms[j]
	})

	pct := prec.PctPlaces
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "symbol\tsignals\twin_rate\tmean_return\tbest\tworst\ttotal\t")
	for _, sym := range syms {
		s := by[sym]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			sym, s.Signals,
			Round(s.WinRate*100, pct),
			Round(s.MeanReturn, pct),
			RoundValue(s.Best, pct),
			RoundValue(s.Worst, pct),
			Round(s.Total(), pct),
		)
	}
	return tw.Flush()
}
