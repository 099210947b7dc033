package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jingmouren/gallerybench/internal/models"
)

// DefaultBenchConfig returns a BenchConfig with default values.
func DefaultBenchConfig() models.BenchConfig {
	return models.BenchConfig{
		OutDir:   "runs",
		Trials:   10,
		BaseSeed: 123,
		Device:   "CPU:0",
		Train: models.TrainConfig{
			Epochs: 200,
		},
		Runtime: models.RuntimeConfig{
			Type: "local",
		},
	}
}

// LoadBenchConfig loads and parses a bench.yaml file. Backend names are
// normalized to their canonical form before the config is returned.
func LoadBenchConfig(path string) (models.BenchConfig, error) {
	cfg := DefaultBenchConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading bench config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing bench config: %w", err)
	}

	// Apply defaults for missing values
	if cfg.OutDir == "" {
		cfg.OutDir = "runs"
	}
	if cfg.Trials == 0 {
		cfg.Trials = 10
	}
	if cfg.BaseSeed == 0 {
		cfg.BaseSeed = 123
	}
	if cfg.Device == "" {
		cfg.Device = "CPU:0"
	}
	if cfg.Train.Epochs == 0 {
		cfg.Train.Epochs = 200
	}
	if cfg.Runtime.Type == "" {
		cfg.Runtime.Type = "local"
	}
	if cfg.Runtime.Preserve == "" {
		cfg.Runtime.Preserve = models.PreserveNever
	}

	if err := normalizeBenchConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalizeBenchConfig validates the semantic constraints of a parsed
// config and rewrites backend names and model architectures to canonical
// form. Violations come back as config_invalid errors so callers can
// reject the run before any trial starts.
func normalizeBenchConfig(cfg *models.BenchConfig) error {
	if cfg.Trials <= 0 {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("trials must be positive, got %d", cfg.Trials))
	}
	if cfg.Train.Epochs <= 0 {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("train.epochs must be positive, got %d", cfg.Train.Epochs))
	}
	if _, _, err := models.ParseDevice(cfg.Device); err != nil {
		return models.NewBenchError(models.ErrConfigInvalid, err.Error())
	}

	if len(cfg.Backends) == 0 {
		return models.NewBenchError(models.ErrConfigInvalid, "at least one backend is required")
	}
	seen := make(map[string]bool, len(cfg.Backends))
	for i := range cfg.Backends {
		name, err := models.NormalizeFramework(cfg.Backends[i].Name)
		if err != nil {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("backends[%d]: %v", i, err))
		}
		if seen[name] {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("backends[%d]: duplicate backend %q", i, name))
		}
		seen[name] = true
		cfg.Backends[i].Name = name
	}

	if len(cfg.Models) == 0 {
		return models.NewBenchError(models.ErrConfigInvalid, "at least one model is required")
	}
	for i, ref := range cfg.Models {
		if !models.KnownArch(ref.Arch) {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("models[%d]: unknown architecture %q", i, ref.Arch))
		}
	}

	if len(cfg.Datasets) == 0 {
		return models.NewBenchError(models.ErrConfigInvalid, "at least one dataset is required")
	}
	for i, ref := range cfg.Datasets {
		hasPath := ref.Path != nil && *ref.Path != ""
		hasRegistry := ref.Registry != nil
		if !hasPath && !hasRegistry {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("datasets[%d]: must specify either 'path' or 'registry'", i))
		}
		if hasPath && hasRegistry {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("datasets[%d]: cannot specify both 'path' and 'registry'", i))
		}
		if hasRegistry && ref.Name == "" {
			return models.NewBenchError(models.ErrConfigInvalid,
				fmt.Sprintf("datasets[%d]: registry reference requires 'name'", i))
		}
	}

	switch cfg.Runtime.Type {
	case "local":
	case "docker", "modal":
		// Container runtimes have no host fallback for worker images
		for i, b := range cfg.Backends {
			if b.Image == "" {
				return models.NewBenchError(models.ErrConfigInvalid,
					fmt.Sprintf("backends[%d]: image is required for the %s runtime", i, cfg.Runtime.Type))
			}
		}
	default:
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("unknown runtime type %q", cfg.Runtime.Type))
	}

	switch cfg.Runtime.Preserve {
	case models.PreserveNever, models.PreserveAlways, models.PreserveOnFailure:
	default:
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("unknown preserve policy %q", cfg.Runtime.Preserve))
	}

	return nil
}
