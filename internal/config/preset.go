package config

import (
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"

	"github.com/jingmouren/gallerybench/internal/models"
)

// DefaultPreset returns the default hyperparameters for a model
// architecture. The values mirror the published reference settings each
// architecture is normally benchmarked with.
func DefaultPreset(arch string) (models.PresetConfig, error) {
	base := models.PresetConfig{
		Version: "1.0",
		Transform: models.TransformConfig{
			AttrNorm:    models.AttrNormL1,
			AdjNormRate: -0.5,
			SelfLoop:    1.0,
		},
	}

	switch arch {
	case models.ArchGCN:
		base.Hyper = models.HyperConfig{
			Hiddens:     []int{16},
			Activations: []string{"relu"},
			Dropout:     0.5,
			LR:          0.01,
			WeightDecay: 5e-4,
		}
	case models.ArchSGC:
		base.Hyper = models.HyperConfig{
			LR:          0.2,
			WeightDecay: 5e-5,
			Order:       2,
		}
	case models.ArchGAT:
		base.Hyper = models.HyperConfig{
			Hiddens:     []int{8},
			Activations: []string{"elu"},
			Heads:       []int{8},
			Dropout:     0.6,
			LR:          0.01,
			WeightDecay: 5e-4,
		}
	case models.ArchChebyNet:
		base.Hyper = models.HyperConfig{
			Hiddens:     []int{16},
			Activations: []string{"relu"},
			Dropout:     0.5,
			LR:          0.01,
			WeightDecay: 5e-4,
			Order:       2,
		}
	case models.ArchDAGNN:
		base.Hyper = models.HyperConfig{
			Hiddens:     []int{64},
			Activations: []string{"relu"},
			Dropout:     0.5,
			LR:          0.01,
			WeightDecay: 5e-3,
			K:           10,
		}
	default:
		return base, fmt.Errorf("unknown architecture %q", arch)
	}

	return base, nil
}

// LoadPreset loads and parses a model preset .toml file from the given
// filesystem, layered over the architecture's defaults.
func LoadPreset(fsys fs.FS, name string, arch string) (models.PresetConfig, error) {
	cfg, err := DefaultPreset(arch)
	if err != nil {
		return cfg, err
	}

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return cfg, fmt.Errorf("reading preset: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing preset: %w", err)
	}

	// Handle legacy singular 'hidden' field if 'hiddens' is not explicitly set
	if !md.IsDefined("hyper", "hiddens") && md.IsDefined("hyper", "hidden") {
		cfg.Hyper.Hiddens = []int{cfg.Hyper.Hidden}
	}

	// Handle legacy singular 'activation' field if 'activations' is not explicitly set
	if !md.IsDefined("hyper", "activations") && md.IsDefined("hyper", "activation") {
		cfg.Hyper.Activations = []string{cfg.Hyper.Activation}
	}

	if err := validatePreset(&cfg, arch); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validatePreset(cfg *models.PresetConfig, arch string) error {
	if !models.KnownAttrNorm(cfg.Transform.AttrNorm) {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("unknown attr_norm %q", cfg.Transform.AttrNorm))
	}
	if cfg.Hyper.Dropout < 0 || cfg.Hyper.Dropout >= 1 {
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("dropout must be in [0, 1), got %g", cfg.Hyper.Dropout))
	}
	if arch == models.ArchChebyNet && cfg.Hyper.Order < 2 {
		// Chebyshev polynomial expansion is undefined below order 2
		return models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("chebynet order must be >= 2, got %d", cfg.Hyper.Order))
	}
	return nil
}
