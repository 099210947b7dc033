// Package report renders benchmark results for humans. Accuracies are
// fractions in [0, 1] everywhere else; only this package converts them
// to percentages.
package report

import (
	"fmt"
	"io"

	"github.com/jingmouren/gallerybench/internal/models"
)

// Percent renders an accuracy fraction as a percentage with two decimals.
func Percent(v float64) string {
	return fmt.Sprintf("%.2f", v*100)
}

// FormatReport renders an aggregate as "mean ± std dev" percentages.
func FormatReport(r models.AggregateReport) string {
	return fmt.Sprintf("%s ± %s", Percent(r.Mean), Percent(r.StdDev))
}

// WriteSummary writes the per-combination lines and run totals.
func WriteSummary(w io.Writer, result *models.BenchResult) {
	fmt.Fprintf(w, "\nBench: %s\n", result.BenchName)

	for _, combo := range result.Combinations {
		label := fmt.Sprintf("%s/%s/%s", combo.Dataset, combo.Backend, combo.Arch)
		switch {
		case combo.Report != nil:
			fmt.Fprintf(w, "  %s: %s\n", label, FormatReport(*combo.Report))
		case combo.Error != nil:
			fmt.Fprintf(w, "  %s: failed (%s)\n", label, combo.Error.Type)
		}
	}

	fmt.Fprintf(w, "Combinations: %d/%d completed", result.Completed, result.TotalCombinations)
	if result.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", result.Failed)
	}
	fmt.Fprintln(w)

	if result.Cancelled {
		fmt.Fprintln(w, "Cancelled before all combinations finished")
	}
	fmt.Fprintf(w, "Duration: %.2fs\n", result.TotalDurationSec)
	if result.TotalCost > 0 {
		fmt.Fprintf(w, "Cost: $%.4f\n", result.TotalCost)
	}
}
