// Package bench executes benchmark runs: the Runner drives the repeated
// seeded trials of one combination and aggregates their test accuracy;
// the Suite enumerates combinations from a bench configuration.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jingmouren/gallerybench/internal/backend"
	"github.com/jingmouren/gallerybench/internal/graph"
	"github.com/jingmouren/gallerybench/internal/models"
)

// ModelFactory constructs the model for one trial. The seed is the
// trial's single source of randomness.
type ModelFactory func(ctx context.Context, seed int64) (backend.Model, error)

// ProgressFunc observes each completed trial. index counts from zero;
// total is the configured trial count.
type ProgressFunc func(result models.TrialResult, index, total int)

// TrialConfig describes the trial run of one benchmark combination.
type TrialConfig struct {
	BaseSeed   int64
	TrialCount int
	Factory    ModelFactory
	Train      models.TrainConfig
	Splits     models.Splits
	Observer   ProgressFunc
}

// Runner executes repeated seeded trials strictly sequentially.
type Runner struct{}

// NewRunner creates a trial runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes cfg.TrialCount trials with seeds BaseSeed..BaseSeed+N-1
// and aggregates their test accuracy. The first failing trial aborts the
// run and discards all partial results. With a deterministic factory the
// returned report is identical across repeated runs.
func (r *Runner) Run(ctx context.Context, cfg TrialConfig) (*models.AggregateReport, error) {
	if err := validateTrialConfig(cfg); err != nil {
		return nil, err
	}

	results := make([]models.TrialResult, 0, cfg.TrialCount)
	for i := 0; i < cfg.TrialCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}

		seed := cfg.BaseSeed + int64(i)
		result, err := r.runTrial(ctx, cfg, seed)
		if err != nil {
			return nil, fmt.Errorf("trial %d (seed %d): %w", i+1, seed, err)
		}

		results = append(results, *result)
		if cfg.Observer != nil {
			cfg.Observer(*result, i, cfg.TrialCount)
		}
	}

	return aggregate(results), nil
}

func validateTrialConfig(cfg TrialConfig) error {
	if cfg.TrialCount <= 0 {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("trial count must be positive, got %d", cfg.TrialCount))
	}
	if cfg.Factory == nil {
		return models.NewBenchError(models.ErrConfigInvalid, "no model factory provided")
	}
	if cfg.Train.Epochs <= 0 {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("epochs must be positive, got %d", cfg.Train.Epochs))
	}
	return graph.ValidateSplits(0, cfg.Splits)
}

func (r *Runner) runTrial(ctx context.Context, cfg TrialConfig, seed int64) (*models.TrialResult, error) {
	result := &models.TrialResult{
		Seed: seed,
		Timestamps: models.Timestamps{
			StartedAt: time.Now(),
		},
	}

	model, err := cfg.Factory(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("creating model: %w", err)
	}
	defer func() {
		// Cleanup proceeds even when ctx is already cancelled
		if err := model.Close(context.Background()); err != nil {
			slog.Warn("closing model", "seed", seed, "error", err)
		}
	}()

	buildStart := time.Now()
	if err := model.Build(ctx); err != nil {
		return nil, err
	}
	result.Durations.BuildSec = time.Since(buildStart).Seconds()

	trainStart := time.Now()
	if _, err := model.Train(ctx, cfg.Splits.Train, cfg.Splits.Val, cfg.Train); err != nil {
		return nil, err
	}
	result.Durations.TrainSec = time.Since(trainStart).Seconds()

	testStart := time.Now()
	eval, err := model.Test(ctx, cfg.Splits.Test)
	if err != nil {
		return nil, err
	}
	result.Durations.TestSec = time.Since(testStart).Seconds()

	if eval.Accuracy < 0 || eval.Accuracy > 1 {
		return nil, models.NewBenchError(models.ErrMetricsInvalid,
			fmt.Sprintf("accuracy %v outside [0, 1]", eval.Accuracy))
	}

	result.Accuracy = eval.Accuracy
	loss := eval.Loss
	result.TestLoss = &loss
	if cr, ok := model.(backend.CostReporter); ok {
		result.Cost = cr.Cost()
	}
	result.Timestamps.EndedAt = time.Now()
	result.Durations.TotalSec = result.Timestamps.EndedAt.Sub(result.Timestamps.StartedAt).Seconds()

	return result, nil
}

// aggregate computes the arithmetic mean and population standard
// deviation of the recorded accuracies.
func aggregate(results []models.TrialResult) *models.AggregateReport {
	n := float64(len(results))

	var sum float64
	for _, r := range results {
		sum += r.Accuracy
	}
	mean := sum / n

	var sq float64
	for _, r := range results {
		d := r.Accuracy - mean
		sq += d * d
	}

	return &models.AggregateReport{
		Mean:        mean,
		StdDev:      math.Sqrt(sq / n),
		SampleCount: len(results),
	}
}
