// Package backend defines the build/train/test contract trial models
// satisfy and the worker-protocol adapter that drives external trainer
// workers through it.
package backend

import (
	"context"

	"github.com/jingmouren/gallerybench/internal/models"
)

// Model is one trainable model instance bound to a single trial seed.
// Phases run in order: Build, then Train, then Test. Close releases the
// resources backing the model.
type Model interface {
	Build(ctx context.Context) error
	Train(ctx context.Context, trainIdx, valIdx []int, cfg models.TrainConfig) (*History, error)
	Test(ctx context.Context, testIdx []int) (*Evaluation, error)
	Close(ctx context.Context) error
}

// CostReporter is implemented by models whose execution incurs a metered
// cost, reported in USD.
type CostReporter interface {
	Cost() float64
}

// History holds the per-epoch training curves reported by a worker.
type History struct {
	Loss        []float64 `json:"loss"`
	Accuracy    []float64 `json:"accuracy"`
	ValLoss     []float64 `json:"val_loss,omitempty"`
	ValAccuracy []float64 `json:"val_accuracy,omitempty"`
}

// Evaluation is a worker's held-out evaluation result.
type Evaluation struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}
