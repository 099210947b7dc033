package models

import "time"

// PreservePolicy controls session cleanup behavior after a trial.
type PreservePolicy string

const (
	PreserveNever     PreservePolicy = "never"
	PreserveAlways    PreservePolicy = "always"
	PreserveOnFailure PreservePolicy = "on_failure"
)

// BenchConfig represents the parsed bench.yaml configuration.
type BenchConfig struct {
	Name     *string       `yaml:"name,omitempty" json:"name,omitempty"`
	OutDir   string        `yaml:"out_dir" json:"out_dir"`
	Trials   int           `yaml:"trials" json:"trials"`
	BaseSeed int64         `yaml:"base_seed" json:"base_seed"`
	Device   string        `yaml:"device" json:"device"`
	LogLevel string        `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Train    TrainConfig   `yaml:"train" json:"train"`
	Runtime  RuntimeConfig `yaml:"runtime" json:"runtime"`
	Backends []Backend     `yaml:"backends" json:"backends"`
	Models   []ModelRef    `yaml:"models" json:"models"`
	Datasets []DatasetRef  `yaml:"datasets" json:"datasets"`
}

// TrainConfig controls the training phase of every trial.
type TrainConfig struct {
	Epochs  int  `yaml:"epochs" json:"epochs"`
	Verbose bool `yaml:"verbose" json:"verbose"`
}

type RuntimeConfig struct {
	Type           string         `yaml:"type" json:"type"`
	ForceBuild     bool           `yaml:"force_build" json:"force_build"`
	Preserve       PreservePolicy `yaml:"preserve,omitempty" json:"preserve,omitempty"`
	ProviderConfig map[string]any `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
	OverrideCPUs   *string        `yaml:"override_cpus,omitempty" json:"override_cpus,omitempty"`
	OverrideMemory *string        `yaml:"override_memory,omitempty" json:"override_memory,omitempty"`
}

// DatasetRef specifies how to load a dataset bundle.
type DatasetRef struct {
	Path     *string      `yaml:"path,omitempty" json:"path,omitempty"`
	Registry *RegistryRef `yaml:"registry,omitempty" json:"registry,omitempty"`
	Name     string       `yaml:"name,omitempty" json:"name,omitempty"`
	Version  string       `yaml:"version,omitempty" json:"version,omitempty"`
}

type RegistryRef struct {
	Path *string `yaml:"path,omitempty" json:"path,omitempty"`
	URL  *string `yaml:"url,omitempty" json:"url,omitempty"`
}

// BenchResult contains aggregate metrics across all combinations of a run.
type BenchResult struct {
	RunID             string               `json:"run_id"`
	BenchName         string               `json:"bench_name"`
	Cancelled         bool                 `json:"cancelled"`
	Host              HostInfo             `json:"host"`
	TotalCombinations int                  `json:"total_combinations"`
	Completed         int                  `json:"completed"`
	Failed            int                  `json:"failed"`
	TotalCost         float64              `json:"total_cost"`
	TotalDurationSec  float64              `json:"total_duration_sec"`
	StartedAt         time.Time            `json:"started_at"`
	EndedAt           time.Time            `json:"ended_at"`
	Combinations      []CombinationSummary `json:"combinations"`
}

type CombinationSummary struct {
	Dataset string           `json:"dataset"`
	Backend string           `json:"backend"`
	Arch    string           `json:"arch"`
	Report  *AggregateReport `json:"report"`
	Error   *BenchError      `json:"error"`
}
