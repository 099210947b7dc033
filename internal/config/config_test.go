package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jingmouren/gallerybench/internal/config"
	"github.com/jingmouren/gallerybench/internal/models"
)

func TestLoadPreset(t *testing.T) {
	presetToml := `version = "1.0"

[hyper]
hiddens = [32, 32]
activations = ["relu", "relu"]
dropout = 0.6
lr = 0.005

[transform]
attr_norm = "scale"
`

	fsys := fstest.MapFS{
		"gcn.toml": &fstest.MapFile{Data: []byte(presetToml)},
	}

	cfg, err := config.LoadPreset(fsys, "gcn.toml", models.ArchGCN)
	if err != nil {
		t.Fatalf("LoadPreset failed: %v", err)
	}

	if len(cfg.Hyper.Hiddens) != 2 || cfg.Hyper.Hiddens[0] != 32 {
		t.Errorf("expected hiddens [32 32], got %v", cfg.Hyper.Hiddens)
	}

	if cfg.Hyper.Dropout != 0.6 {
		t.Errorf("expected dropout 0.6, got %f", cfg.Hyper.Dropout)
	}

	if cfg.Hyper.LR != 0.005 {
		t.Errorf("expected lr 0.005, got %f", cfg.Hyper.LR)
	}

	// Defaults survive for fields the preset does not set
	if cfg.Hyper.WeightDecay != 5e-4 {
		t.Errorf("expected weight_decay 5e-4, got %g", cfg.Hyper.WeightDecay)
	}

	if cfg.Transform.AttrNorm != models.AttrNormScale {
		t.Errorf("expected attr_norm scale, got %s", cfg.Transform.AttrNorm)
	}

	if cfg.Transform.AdjNormRate != -0.5 {
		t.Errorf("expected adj_norm_rate -0.5, got %f", cfg.Transform.AdjNormRate)
	}
}

func TestLoadPresetLegacyFields(t *testing.T) {
	presetToml := `[hyper]
hidden = 64
activation = "elu"
`

	fsys := fstest.MapFS{
		"p.toml": &fstest.MapFile{Data: []byte(presetToml)},
	}

	cfg, err := config.LoadPreset(fsys, "p.toml", models.ArchGCN)
	if err != nil {
		t.Fatalf("LoadPreset failed: %v", err)
	}

	if len(cfg.Hyper.Hiddens) != 1 || cfg.Hyper.Hiddens[0] != 64 {
		t.Errorf("expected hiddens [64] from legacy field, got %v", cfg.Hyper.Hiddens)
	}

	if len(cfg.Hyper.Activations) != 1 || cfg.Hyper.Activations[0] != "elu" {
		t.Errorf("expected activations [elu] from legacy field, got %v", cfg.Hyper.Activations)
	}
}

func TestLoadPresetInvalid(t *testing.T) {
	tests := []struct {
		name   string
		arch   string
		preset string
	}{
		{
			name:   "unknown attr_norm",
			arch:   models.ArchGCN,
			preset: "[transform]\nattr_norm = \"l2\"\n",
		},
		{
			name:   "dropout out of range",
			arch:   models.ArchGCN,
			preset: "[hyper]\ndropout = 1.0\n",
		},
		{
			name:   "chebynet order too small",
			arch:   models.ArchChebyNet,
			preset: "[hyper]\norder = 1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"p.toml": &fstest.MapFile{Data: []byte(tt.preset)},
			}
			_, err := config.LoadPreset(fsys, "p.toml", tt.arch)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !models.IsConfigError(err) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestDefaultPreset(t *testing.T) {
	cfg, err := config.DefaultPreset(models.ArchGCN)
	if err != nil {
		t.Fatalf("DefaultPreset failed: %v", err)
	}

	if len(cfg.Hyper.Hiddens) != 1 || cfg.Hyper.Hiddens[0] != 16 {
		t.Errorf("expected default hiddens [16], got %v", cfg.Hyper.Hiddens)
	}

	if cfg.Hyper.Dropout != 0.5 {
		t.Errorf("expected default dropout 0.5, got %f", cfg.Hyper.Dropout)
	}

	if cfg.Transform.AttrNorm != models.AttrNormL1 {
		t.Errorf("expected default attr_norm l1, got %s", cfg.Transform.AttrNorm)
	}

	if _, err := config.DefaultPreset("mlp"); err == nil {
		t.Error("expected error for unknown architecture")
	}
}

func TestLoadBenchConfig(t *testing.T) {
	benchYaml := `name: cora-sweep
out_dir: bench-output
trials: 5
base_seed: 42
device: "GPU:0"
train:
  epochs: 100
  verbose: true
runtime:
  type: docker
backends:
  - name: tf
    image: gallery-worker:tf
  - name: torch
    image: gallery-worker:torch
    env:
      OMP_NUM_THREADS: "1"
models:
  - arch: gcn
  - arch: dagnn
    preset: ./presets/dagnn.toml
datasets:
  - path: ./data/cora
`

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "bench.yaml")
	if err := os.WriteFile(tmpFile, []byte(benchYaml), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	cfg, err := config.LoadBenchConfig(tmpFile)
	if err != nil {
		t.Fatalf("LoadBenchConfig failed: %v", err)
	}

	if *cfg.Name != "cora-sweep" {
		t.Errorf("expected name cora-sweep, got %s", *cfg.Name)
	}

	if cfg.OutDir != "bench-output" {
		t.Errorf("expected out_dir bench-output, got %s", cfg.OutDir)
	}

	if cfg.Trials != 5 {
		t.Errorf("expected trials 5, got %d", cfg.Trials)
	}

	if cfg.BaseSeed != 42 {
		t.Errorf("expected base_seed 42, got %d", cfg.BaseSeed)
	}

	if cfg.Train.Epochs != 100 {
		t.Errorf("expected epochs 100, got %d", cfg.Train.Epochs)
	}

	if cfg.Runtime.Type != "docker" {
		t.Errorf("expected runtime type docker, got %s", cfg.Runtime.Type)
	}

	// Backend aliases normalize to canonical names
	if cfg.Backends[0].Name != models.FrameworkTensorFlow {
		t.Errorf("expected first backend tensorflow, got %s", cfg.Backends[0].Name)
	}

	if cfg.Backends[1].Name != models.FrameworkPyTorch {
		t.Errorf("expected second backend pytorch, got %s", cfg.Backends[1].Name)
	}

	if cfg.Backends[1].Image != "gallery-worker:torch" {
		t.Errorf("expected image gallery-worker:torch, got %s", cfg.Backends[1].Image)
	}

	if len(cfg.Models) != 2 || cfg.Models[1].Arch != models.ArchDAGNN {
		t.Errorf("unexpected models: %+v", cfg.Models)
	}
}

func TestLoadBenchConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no backends",
			yaml: "models:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "unknown backend",
			yaml: "backends:\n  - name: mxnet\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "duplicate backend",
			yaml: "backends:\n  - name: tf\n  - name: tensorflow\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "unknown arch",
			yaml: "backends:\n  - name: tf\nmodels:\n  - arch: transformer\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "negative trials",
			yaml: "trials: -1\nbackends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "dataset without source",
			yaml: "backends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - name: cora\n",
		},
		{
			name: "dataset with both sources",
			yaml: "backends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n    registry:\n      url: https://example.com/registry.json\n",
		},
		{
			name: "unknown runtime",
			yaml: "runtime:\n  type: kubernetes\nbackends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
		{
			name: "registry dataset without name",
			yaml: "backends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - registry:\n      url: https://example.com/registry.json\n",
		},
		{
			name: "docker runtime without image",
			yaml: "runtime:\n  type: docker\nbackends:\n  - name: tf\nmodels:\n  - arch: gcn\ndatasets:\n  - path: ./d\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpFile := filepath.Join(t.TempDir(), "bench.yaml")
			if err := os.WriteFile(tmpFile, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("writing temp file: %v", err)
			}

			_, err := config.LoadBenchConfig(tmpFile)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !models.IsConfigError(err) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestDefaultBenchConfig(t *testing.T) {
	cfg := config.DefaultBenchConfig()

	if cfg.OutDir != "runs" {
		t.Errorf("expected default out_dir 'runs', got %s", cfg.OutDir)
	}

	if cfg.Trials != 10 {
		t.Errorf("expected default trials 10, got %d", cfg.Trials)
	}

	if cfg.BaseSeed != 123 {
		t.Errorf("expected default base_seed 123, got %d", cfg.BaseSeed)
	}

	if cfg.Device != "CPU:0" {
		t.Errorf("expected default device CPU:0, got %s", cfg.Device)
	}

	if cfg.Train.Epochs != 200 {
		t.Errorf("expected default epochs 200, got %d", cfg.Train.Epochs)
	}

	if cfg.Runtime.Type != "local" {
		t.Errorf("expected default runtime type local, got %s", cfg.Runtime.Type)
	}
}
