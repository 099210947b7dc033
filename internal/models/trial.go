package models

import "time"

// TrialResult contains the outcome of a single seeded trial.
// Results are recorded only for trials that ran to completion.
type TrialResult struct {
	Seed       int64      `json:"seed"`
	Accuracy   float64    `json:"accuracy"`
	TestLoss   *float64   `json:"test_loss"`
	Cost       float64    `json:"cost"`
	Durations  Durations  `json:"durations"`
	Timestamps Timestamps `json:"timestamps"`
}

// AggregateReport summarizes test accuracy across the trials of one
// combination. StdDev is the population standard deviation.
type AggregateReport struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

type Durations struct {
	TotalSec float64 `json:"total_sec"`
	BuildSec float64 `json:"build_sec"`
	TrainSec float64 `json:"train_sec"`
	TestSec  float64 `json:"test_sec"`
}

type Timestamps struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// CombinationResult is the full record of one dataset/backend/arch
// combination, persisted as report.json in the combination directory.
type CombinationResult struct {
	Dataset     string           `json:"dataset"`
	Backend     string           `json:"backend"`
	Arch        string           `json:"arch"`
	Report      *AggregateReport `json:"report"`
	Trials      []TrialResult    `json:"trials"`
	Error       *BenchError      `json:"error"`
	Cost        float64          `json:"cost"`
	DurationSec float64          `json:"duration_sec"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     time.Time        `json:"ended_at"`
}
