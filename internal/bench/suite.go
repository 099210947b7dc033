package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jingmouren/gallerybench/internal/backend"
	"github.com/jingmouren/gallerybench/internal/config"
	"github.com/jingmouren/gallerybench/internal/graph"
	"github.com/jingmouren/gallerybench/internal/models"
	"github.com/jingmouren/gallerybench/internal/registry"
	"github.com/jingmouren/gallerybench/internal/runtime"
	"github.com/jingmouren/gallerybench/internal/runtime/docker"
	"github.com/jingmouren/gallerybench/internal/runtime/local"
	"github.com/jingmouren/gallerybench/internal/runtime/modal"
	"github.com/jingmouren/gallerybench/internal/sysinfo"
	"github.com/jingmouren/gallerybench/internal/util"
)

// Default session resources for container runtimes when the config does
// not override them.
const (
	defaultSessionCPUs      = 2.0
	defaultSessionMemoryMiB = 4096
)

// Suite executes every dataset × backend × model combination of a bench
// configuration, strictly sequentially so results stay reproducible.
type Suite struct {
	cfg     models.BenchConfig
	runtime runtime.Runtime
	runner  *Runner
}

// NewSuite creates a suite with the runtime named by the configuration.
func NewSuite(cfg models.BenchConfig) (*Suite, error) {
	var rt runtime.Runtime
	var err error

	switch cfg.Runtime.Type {
	case "", "local":
		rt, err = local.NewRuntime()
	case "docker":
		rt, err = docker.NewRuntime()
	case "modal":
		rt, err = modal.NewRuntime(modal.ParseRuntimeConfig(cfg.Runtime.ProviderConfig))
	default:
		return nil, models.NewBenchError(models.ErrConfigInvalid,
			fmt.Sprintf("unsupported runtime type %q", cfg.Runtime.Type))
	}
	if err != nil {
		return nil, models.WrapBenchError(models.ErrRuntimePrepareFailed, err)
	}

	return NewSuiteWithRuntime(cfg, rt), nil
}

// NewSuiteWithRuntime creates a suite on an explicit runtime.
func NewSuiteWithRuntime(cfg models.BenchConfig, rt runtime.Runtime) *Suite {
	return &Suite{
		cfg:     cfg,
		runtime: rt,
		runner:  NewRunner(),
	}
}

// combination is one cell of the dataset × backend × model grid.
type combination struct {
	bundle   models.Bundle
	backend  models.Backend
	model    models.ModelRef
	preset   models.PresetConfig
	imageRef string
	dir      string
}

// sessionParams are the per-session resources shared by all combinations.
type sessionParams struct {
	gpu       bool
	cpus      float64
	memoryMiB int
}

// Run executes the full suite and persists results under the configured
// output directory. A failed combination is recorded and the suite moves
// on; only setup failures abort the whole run.
func (s *Suite) Run(ctx context.Context) (*models.BenchResult, error) {
	startTime := time.Now()

	bundles, err := s.loadDatasets(ctx)
	if err != nil {
		return nil, err
	}

	presets, err := s.loadPresets()
	if err != nil {
		return nil, err
	}

	images, err := s.prepareImages(ctx)
	if err != nil {
		return nil, err
	}

	gpu, _, err := models.ParseDevice(s.cfg.Device)
	if err != nil {
		return nil, models.NewBenchError(models.ErrConfigInvalid, err.Error())
	}
	cpus, memoryMiB, err := s.sessionResources()
	if err != nil {
		return nil, err
	}
	params := sessionParams{gpu: gpu, cpus: cpus, memoryMiB: memoryMiB}

	benchName := time.Now().Format("2006-01-02__15-04-05")
	if s.cfg.Name != nil {
		benchName = *s.cfg.Name
	}
	benchDir := filepath.Join(s.cfg.OutDir, benchName)

	if _, err := os.Stat(benchDir); err == nil {
		return nil, fmt.Errorf("bench directory already exists: %s (will not overwrite existing results)", benchDir)
	}
	if err := os.MkdirAll(benchDir, 0755); err != nil {
		return nil, fmt.Errorf("creating bench directory: %w", err)
	}

	// Save resolved config snapshot
	cfgJSON, _ := json.MarshalIndent(s.cfg, "", "  ")
	os.WriteFile(filepath.Join(benchDir, "config.json"), cfgJSON, 0644)

	combos := s.enumerate(bundles, presets, images, benchDir)

	slog.Info("starting bench",
		"name", benchName,
		"runtime", s.runtime.Name(),
		"combinations", len(combos),
		"trials", s.cfg.Trials)

	var results []models.CombinationResult
	cancelled := false

	for _, combo := range combos {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		results = append(results, s.runCombination(ctx, combo, params))
	}
	if !cancelled && ctx.Err() != nil {
		cancelled = true
	}

	benchResult := s.aggregateResults(benchName, results, len(combos), cancelled, startTime)

	resultJSON, _ := json.MarshalIndent(benchResult, "", "  ")
	os.WriteFile(filepath.Join(benchDir, "result.json"), resultJSON, 0644)

	return benchResult, nil
}

// loadDatasets resolves every dataset reference into loaded bundles.
func (s *Suite) loadDatasets(ctx context.Context) ([]models.Bundle, error) {
	loader := graph.NewLoader()
	var bundles []models.Bundle

	for _, ref := range s.cfg.Datasets {
		switch {
		case ref.Path != nil && *ref.Path != "":
			set, err := loader.LoadSet(ctx, *ref.Path)
			if err != nil {
				return nil, fmt.Errorf("loading dataset from path %s: %w", *ref.Path, err)
			}
			bundles = append(bundles, set.Bundles...)

		case ref.Registry != nil:
			resolved, err := s.resolveRegistry(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("resolving registry dataset %s: %w", ref.Name, err)
			}
			bundles = append(bundles, resolved...)
		}
	}

	if len(bundles) == 0 {
		return nil, models.NewBenchError(models.ErrConfigInvalid, "no datasets resolved")
	}
	return bundles, nil
}

func (s *Suite) resolveRegistry(ctx context.Context, ref models.DatasetRef) ([]models.Bundle, error) {
	var sets []registry.RegistrySet
	var err error

	switch {
	case ref.Registry.Path != nil:
		sets, err = registry.LoadFromPath(*ref.Registry.Path)
	case ref.Registry.URL != nil:
		sets, err = registry.LoadFromURL(ctx, *ref.Registry.URL)
	default:
		return nil, models.NewBenchError(models.ErrConfigInvalid, "registry reference needs a path or url")
	}
	if err != nil {
		return nil, err
	}

	set, err := registry.FindSet(sets, ref.Name, ref.Version)
	if err != nil {
		return nil, err
	}

	resolver, err := registry.NewResolver()
	if err != nil {
		return nil, err
	}

	return resolver.Resolve(ctx, set)
}

// loadPresets resolves the hyperparameter preset for each configured model.
func (s *Suite) loadPresets() ([]models.PresetConfig, error) {
	presets := make([]models.PresetConfig, len(s.cfg.Models))
	for i, ref := range s.cfg.Models {
		if ref.Preset == nil || *ref.Preset == "" {
			preset, err := config.DefaultPreset(ref.Arch)
			if err != nil {
				return nil, models.NewBenchError(models.ErrConfigInvalid, err.Error())
			}
			presets[i] = preset
			continue
		}

		preset, err := config.LoadPreset(os.DirFS(filepath.Dir(*ref.Preset)), filepath.Base(*ref.Preset), ref.Arch)
		if err != nil {
			return nil, fmt.Errorf("loading preset %s: %w", *ref.Preset, err)
		}
		presets[i] = preset
	}
	return presets, nil
}

// prepareImages makes each backend's worker image available once per
// suite. An image value naming a local directory is built from its
// Dockerfile; anything else is pulled.
func (s *Suite) prepareImages(ctx context.Context) (map[string]string, error) {
	images := make(map[string]string, len(s.cfg.Backends))
	for _, b := range s.cfg.Backends {
		if b.Image == "" {
			images[b.Name] = ""
			continue
		}

		if info, err := os.Stat(b.Image); err == nil && info.IsDir() {
			tag := fmt.Sprintf("gallerybench-%s:%d", runtime.SanitizeName(b.Name), time.Now().UnixNano())
			ref, err := s.runtime.BuildImage(ctx, runtime.BuildImageOptions{
				ContextDir: b.Image,
				Tag:        tag,
				NoCache:    s.cfg.Runtime.ForceBuild,
			})
			if err != nil {
				return nil, models.WrapBenchError(models.ErrRuntimePrepareFailed,
					fmt.Errorf("building image for %s: %w", b.Name, err))
			}
			images[b.Name] = ref
			continue
		}

		if err := s.runtime.PullImage(ctx, b.Image); err != nil {
			return nil, models.WrapBenchError(models.ErrRuntimePrepareFailed,
				fmt.Errorf("pulling image for %s: %w", b.Name, err))
		}
		images[b.Name] = b.Image
	}
	return images, nil
}

// sessionResources resolves the per-session CPU and memory limits.
func (s *Suite) sessionResources() (float64, int, error) {
	cpus := float64(defaultSessionCPUs)
	if s.cfg.Runtime.OverrideCPUs != nil {
		parsed, err := util.ParseCPUs(*s.cfg.Runtime.OverrideCPUs)
		if err != nil {
			return 0, 0, models.NewBenchError(models.ErrConfigInvalid, err.Error())
		}
		if parsed > 0 {
			cpus = parsed
		}
	}

	memoryMiB := defaultSessionMemoryMiB
	if s.cfg.Runtime.OverrideMemory != nil {
		parsed, err := util.ParseMemory(*s.cfg.Runtime.OverrideMemory)
		if err != nil {
			return 0, 0, models.NewBenchError(models.ErrConfigInvalid, err.Error())
		}
		if parsed > 0 {
			memoryMiB = parsed
		}
	}

	return cpus, memoryMiB, nil
}

// enumerate lists combinations in deterministic dataset, backend, model
// order.
func (s *Suite) enumerate(bundles []models.Bundle, presets []models.PresetConfig, images map[string]string, benchDir string) []combination {
	var combos []combination
	for _, bundle := range bundles {
		for _, b := range s.cfg.Backends {
			for i, ref := range s.cfg.Models {
				combos = append(combos, combination{
					bundle:   bundle,
					backend:  b,
					model:    ref,
					preset:   presets[i],
					imageRef: images[b.Name],
					dir:      filepath.Join(benchDir, bundle.Name, b.Name, ref.Arch),
				})
			}
		}
	}
	return combos
}

// runCombination runs the trials of one combination and persists its
// report.
func (s *Suite) runCombination(ctx context.Context, combo combination, params sessionParams) models.CombinationResult {
	result := models.CombinationResult{
		Dataset:   combo.bundle.Name,
		Backend:   combo.backend.Name,
		Arch:      combo.model.Arch,
		StartedAt: time.Now(),
	}

	slog.Info("running combination",
		"dataset", combo.bundle.Name,
		"backend", combo.backend.Name,
		"arch", combo.model.Arch)

	var trials []models.TrialResult
	observer := func(trial models.TrialResult, index, total int) {
		trials = append(trials, trial)
		slog.Info("trial completed",
			"dataset", combo.bundle.Name,
			"backend", combo.backend.Name,
			"arch", combo.model.Arch,
			"seed", trial.Seed,
			"accuracy", trial.Accuracy,
			"trial", index+1,
			"total", total)
	}

	report, err := s.runner.Run(ctx, TrialConfig{
		BaseSeed:   s.cfg.BaseSeed,
		TrialCount: s.cfg.Trials,
		Factory:    s.modelFactory(combo, params),
		Train:      s.cfg.Train,
		Splits:     combo.bundle.Splits,
		Observer:   observer,
	})

	result.Trials = trials
	for _, trial := range trials {
		result.Cost += trial.Cost
	}

	if err != nil {
		slog.Error("combination failed",
			"dataset", combo.bundle.Name,
			"backend", combo.backend.Name,
			"arch", combo.model.Arch,
			"error", err)

		if be, ok := models.AsBenchError(err); ok {
			result.Error = models.NewBenchError(be.Type, err.Error())
		} else {
			result.Error = models.NewBenchError(models.ErrInternalError, err.Error())
		}
	} else {
		result.Report = report
		slog.Info("combination completed",
			"dataset", combo.bundle.Name,
			"backend", combo.backend.Name,
			"arch", combo.model.Arch,
			"mean", report.Mean,
			"std_dev", report.StdDev)
	}

	result.EndedAt = time.Now()
	result.DurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	s.saveCombination(combo, result)

	return result
}

func (s *Suite) saveCombination(combo combination, result models.CombinationResult) {
	os.MkdirAll(combo.dir, 0755)

	content, _ := json.MarshalIndent(result, "", "  ")
	os.WriteFile(filepath.Join(combo.dir, "report.json"), content, 0644)

	if result.Error != nil {
		os.WriteFile(filepath.Join(combo.dir, "error.txt"), []byte(result.Error.Message), 0644)
	}
}

// modelFactory builds the per-trial factory for one combination. Every
// trial gets a fresh session so no state leaks between seeds.
func (s *Suite) modelFactory(combo combination, params sessionParams) ModelFactory {
	return func(ctx context.Context, seed int64) (backend.Model, error) {
		name := runtime.SanitizeName(fmt.Sprintf("gallerybench-%s-%s-%s-%d",
			combo.bundle.Name, combo.backend.Name, combo.model.Arch, seed))

		sess, err := s.runtime.StartSession(ctx, runtime.SessionOptions{
			Name:      name,
			ImageRef:  combo.imageRef,
			CPUs:      params.cpus,
			MemoryMiB: params.memoryMiB,
			GPU:       params.gpu,
			Env:       combo.backend.Env,
		})
		if err != nil {
			return nil, models.WrapBenchError(models.ErrRuntimeStartFailed, err)
		}

		return backend.NewWorkerModel(backend.WorkerOptions{
			Session: sess,
			Worker:  combo.backend.Worker,
			Env:     combo.backend.Env,
			Spec: backend.Spec{
				Framework: combo.backend.Name,
				Arch:      combo.model.Arch,
				Device:    s.cfg.Device,
				Seed:      seed,
				Dataset:   backend.DatasetInfo{Name: combo.bundle.Name},
				Hyper:     combo.preset.Hyper,
				Transform: combo.preset.Transform,
			},
			PayloadPath: combo.bundle.PayloadPath(),
			ArtifactDir: filepath.Join(combo.dir, fmt.Sprintf("seed-%d", seed)),
			Preserve:    s.cfg.Runtime.Preserve,
		}), nil
	}
}

func (s *Suite) aggregateResults(benchName string, results []models.CombinationResult, total int, cancelled bool, startTime time.Time) *models.BenchResult {
	br := &models.BenchResult{
		RunID:             uuid.New().String(),
		BenchName:         benchName,
		Cancelled:         cancelled,
		Host:              sysinfo.Collect(),
		TotalCombinations: total,
		StartedAt:         startTime,
		EndedAt:           time.Now(),
	}
	br.TotalDurationSec = br.EndedAt.Sub(br.StartedAt).Seconds()

	for _, r := range results {
		br.TotalCost += r.Cost
		if r.Error != nil {
			br.Failed++
		} else {
			br.Completed++
		}

		br.Combinations = append(br.Combinations, models.CombinationSummary{
			Dataset: r.Dataset,
			Backend: r.Backend,
			Arch:    r.Arch,
			Report:  r.Report,
			Error:   r.Error,
		})
	}

	return br
}

// RunFromConfig loads a bench configuration file and executes the suite.
func RunFromConfig(ctx context.Context, configPath string) (*models.BenchResult, error) {
	cfg, err := config.LoadBenchConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading bench config: %w", err)
	}

	applyLogLevel(cfg.LogLevel)

	suite, err := NewSuite(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating suite: %w", err)
	}

	return suite.Run(ctx)
}

// applyLogLevel adjusts the default logger. Unknown values keep the
// current level.
func applyLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "info":
		slog.SetLogLoggerLevel(slog.LevelInfo)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	}
}
