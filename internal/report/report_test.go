package report

import (
	"strings"
	"testing"

	"github.com/jingmouren/gallerybench/internal/models"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0.8345, "83.45"},
		{0.71, "71.00"},
		{0.008164965809, "0.82"},
		{0.0, "0.00"},
		{1.0, "100.00"},
	}

	for _, tt := range tests {
		if got := Percent(tt.value); got != tt.want {
			t.Errorf("Percent(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatReport(t *testing.T) {
	r := models.AggregateReport{Mean: 0.8345, StdDev: 0.0057, SampleCount: 10}
	if got := FormatReport(r); got != "83.45 ± 0.57" {
		t.Errorf("FormatReport = %q", got)
	}
}

func TestWriteSummary(t *testing.T) {
	result := &models.BenchResult{
		BenchName:         "nightly",
		TotalCombinations: 2,
		Completed:         1,
		Failed:            1,
		TotalDurationSec:  12.5,
		TotalCost:         0.75,
		Combinations: []models.CombinationSummary{
			{
				Dataset: "cora",
				Backend: "tensorflow",
				Arch:    "gcn",
				Report:  &models.AggregateReport{Mean: 0.8345, StdDev: 0.0057, SampleCount: 10},
			},
			{
				Dataset: "cora",
				Backend: "pytorch",
				Arch:    "gcn",
				Error:   models.NewBenchError(models.ErrModelTrainFailed, "train exited with code 1"),
			},
		},
	}

	var sb strings.Builder
	WriteSummary(&sb, result)
	out := sb.String()

	for _, want := range []string{
		"Bench: nightly",
		"cora/tensorflow/gcn: 83.45 ± 0.57",
		"cora/pytorch/gcn: failed (model_train_failed)",
		"Combinations: 1/2 completed, 1 failed",
		"Duration: 12.50s",
		"Cost: $0.7500",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q in:\n%s", want, out)
		}
	}
}

func TestWriteSummaryCancelled(t *testing.T) {
	result := &models.BenchResult{
		BenchName:         "partial",
		TotalCombinations: 4,
		Completed:         1,
		Cancelled:         true,
	}

	var sb strings.Builder
	WriteSummary(&sb, result)

	if !strings.Contains(sb.String(), "Cancelled") {
		t.Errorf("summary should mention cancellation:\n%s", sb.String())
	}
}
