package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jingmouren/gallerybench/internal/models"
	"github.com/jingmouren/gallerybench/internal/runtime"
)

// DefaultWorkerCommand is the worker entry point used when a backend does
// not configure its own.
const DefaultWorkerCommand = "python -m gallery_worker"

// Protocol file names inside the session workdir.
const (
	specFile    = "spec.json"
	trainFile   = "train.json"
	testFile    = "test.json"
	historyFile = "history.json"
	metricsFile = "metrics.json"
	dataDir     = "data"
)

// bash exit code for a command that could not be found.
const exitCommandNotFound = 127

// Spec is the static trial description written to spec.json before the
// build phase. Workers read it to construct the model.
type Spec struct {
	Framework string                 `json:"framework"`
	Arch      string                 `json:"arch"`
	Device    string                 `json:"device"`
	Seed      int64                  `json:"seed"`
	Dataset   DatasetInfo            `json:"dataset"`
	Hyper     models.HyperConfig     `json:"hyperparams"`
	Transform models.TransformConfig `json:"transform"`
}

// DatasetInfo names the payload the worker should load. Payload is
// relative to the session workdir.
type DatasetInfo struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

// trainInput is the train-phase input file.
type trainInput struct {
	TrainNodes []int `json:"train_nodes"`
	ValNodes   []int `json:"val_nodes"`
	Epochs     int   `json:"epochs"`
	Verbose    bool  `json:"verbose"`
}

// testInput is the test-phase input file.
type testInput struct {
	TestNodes []int `json:"test_nodes"`
}

// WorkerOptions configures a worker-backed model.
type WorkerOptions struct {
	// Session hosts the worker for the duration of one trial.
	Session runtime.Session
	// Worker is the worker command; DefaultWorkerCommand when empty.
	Worker string
	// Env is passed to every worker invocation.
	Env map[string]string
	// Spec describes the trial; Dataset.Payload is filled in during Build.
	Spec Spec
	// PayloadPath is the local path of the dataset payload to upload.
	PayloadPath string
	// ArtifactDir, when set, receives worker logs and retrieved protocol
	// files.
	ArtifactDir string
	// Preserve controls whether Close keeps the session alive.
	Preserve models.PreservePolicy
}

// WorkerModel drives an external trainer worker inside a runtime session,
// one worker invocation per phase.
type WorkerModel struct {
	session   runtime.Session
	worker    string
	env       map[string]string
	spec      Spec
	payload   string
	artifacts string
	preserve  models.PreservePolicy

	built   bool
	trained bool
	failed  bool
}

// NewWorkerModel creates a model that drives a worker in the given session.
func NewWorkerModel(opts WorkerOptions) *WorkerModel {
	worker := opts.Worker
	if worker == "" {
		worker = DefaultWorkerCommand
	}
	return &WorkerModel{
		session:   opts.Session,
		worker:    worker,
		env:       opts.Env,
		spec:      opts.Spec,
		payload:   opts.PayloadPath,
		artifacts: opts.ArtifactDir,
		preserve:  opts.Preserve,
	}
}

// Build uploads the trial spec and dataset payload, then has the worker
// materialize the model.
func (m *WorkerModel) Build(ctx context.Context) error {
	payloadName := filepath.Base(m.payload)
	m.spec.Dataset.Payload = dataDir + "/" + payloadName

	if err := m.uploadJSON(ctx, specFile, m.spec); err != nil {
		m.failed = true
		return models.WrapBenchError(models.ErrModelBuildFailed, err)
	}

	dst := filepath.Join(m.session.Workdir(), dataDir, payloadName)
	if err := m.session.CopyTo(ctx, m.payload, dst); err != nil {
		m.failed = true
		return models.WrapBenchError(models.ErrModelBuildFailed, fmt.Errorf("uploading payload: %w", err))
	}

	if err := m.runPhase(ctx, "build", models.ErrModelBuildFailed); err != nil {
		return err
	}

	m.built = true
	return nil
}

// Train runs the train phase on the given node splits and returns the
// training curves. A worker that produces no readable history costs a
// warning, not the trial.
func (m *WorkerModel) Train(ctx context.Context, trainIdx, valIdx []int, cfg models.TrainConfig) (*History, error) {
	if !m.built {
		return nil, models.NewBenchError(models.ErrInternalError, "train phase invoked before build")
	}

	in := trainInput{
		TrainNodes: trainIdx,
		ValNodes:   valIdx,
		Epochs:     cfg.Epochs,
		Verbose:    cfg.Verbose,
	}
	if err := m.uploadJSON(ctx, trainFile, in); err != nil {
		m.failed = true
		return nil, models.WrapBenchError(models.ErrModelTrainFailed, err)
	}

	if err := m.runPhase(ctx, "train", models.ErrModelTrainFailed); err != nil {
		return nil, err
	}
	m.trained = true

	content, err := m.retrieve(ctx, historyFile)
	if err != nil {
		slog.Warn("worker produced no training history",
			"session_id", m.session.ID(),
			"error", err)
		return nil, nil
	}
	hist := &History{}
	if err := json.Unmarshal(content, hist); err != nil {
		slog.Warn("worker produced unreadable training history",
			"session_id", m.session.ID(),
			"error", err)
		return nil, nil
	}
	return hist, nil
}

// Test runs the test phase on the given node split and returns the
// worker's evaluation. The accuracy must be within [0, 1].
func (m *WorkerModel) Test(ctx context.Context, testIdx []int) (*Evaluation, error) {
	if !m.trained {
		return nil, models.NewBenchError(models.ErrInternalError, "test phase invoked before train")
	}

	if err := m.uploadJSON(ctx, testFile, testInput{TestNodes: testIdx}); err != nil {
		m.failed = true
		return nil, models.WrapBenchError(models.ErrModelTestFailed, err)
	}

	if err := m.runPhase(ctx, "test", models.ErrModelTestFailed); err != nil {
		return nil, err
	}

	content, err := m.retrieve(ctx, metricsFile)
	if err != nil {
		m.failed = true
		return nil, models.NewBenchError(models.ErrMetricsMissing, metricsFile+" not found")
	}
	var eval Evaluation
	if err := json.Unmarshal(content, &eval); err != nil {
		m.failed = true
		return nil, models.NewBenchError(models.ErrMetricsInvalid, fmt.Sprintf("invalid %s: %s", metricsFile, err))
	}
	if eval.Accuracy < 0 || eval.Accuracy > 1 {
		m.failed = true
		return nil, models.NewBenchError(models.ErrMetricsInvalid, fmt.Sprintf("accuracy %v outside [0, 1]", eval.Accuracy))
	}
	return &eval, nil
}

// Close releases the session unless the preserve policy keeps it.
func (m *WorkerModel) Close(ctx context.Context) error {
	keep := m.preserve == models.PreserveAlways ||
		(m.preserve == models.PreserveOnFailure && m.failed)
	if keep {
		slog.Info("preserving session",
			"session_id", m.session.ID(),
			"policy", string(m.preserve))
		return nil
	}
	if err := m.session.Close(ctx); err != nil {
		return models.WrapBenchError(models.ErrRuntimeTeardownFailed, err)
	}
	return nil
}

// Cost reports the session cost accumulated so far.
func (m *WorkerModel) Cost() float64 {
	return m.session.Cost()
}

// runPhase invokes the worker for one phase and classifies its exit.
func (m *WorkerModel) runPhase(ctx context.Context, phase string, failType models.ErrorType) error {
	cmd := fmt.Sprintf("%s %s --dir %s", m.worker, phase, m.session.Workdir())

	var stdout, stderr bytes.Buffer
	exitCode, err := m.session.Exec(ctx, cmd, &stdout, &stderr, runtime.ExecOptions{
		Env: m.env,
	})

	m.saveLog(phase+"-stdout.txt", stdout.Bytes())
	m.saveLog(phase+"-stderr.txt", stderr.Bytes())

	if err != nil {
		m.failed = true
		return models.WrapBenchError(failType, err)
	}
	if exitCode == exitCommandNotFound {
		m.failed = true
		return models.NewBenchError(models.ErrBackendUnavailable,
			fmt.Sprintf("worker command not found: %s", m.worker))
	}
	if exitCode != 0 {
		m.failed = true
		return models.NewBenchError(failType,
			fmt.Sprintf("%s exited with code %d", phase, exitCode))
	}
	return nil
}

// uploadJSON writes v as JSON into the session workdir under name.
func (m *WorkerModel) uploadJSON(ctx context.Context, name string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp("", "gallerybench-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp.Write(content)
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := m.session.CopyTo(ctx, tmp.Name(), filepath.Join(m.session.Workdir(), name)); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

// retrieve copies name out of the session workdir and returns its bytes.
// When an artifact dir is configured the file is kept there.
func (m *WorkerModel) retrieve(ctx context.Context, name string) ([]byte, error) {
	dst := filepath.Join(m.artifacts, name)
	if m.artifacts == "" {
		tmp, err := os.CreateTemp("", "gallerybench-*.json")
		if err != nil {
			return nil, fmt.Errorf("creating temp file: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())
		dst = tmp.Name()
	} else if err := os.MkdirAll(m.artifacts, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	if err := m.session.CopyFrom(ctx, filepath.Join(m.session.Workdir(), name), dst); err != nil {
		return nil, fmt.Errorf("retrieving %s: %w", name, err)
	}
	return os.ReadFile(dst)
}

// saveLog stores a worker log in the artifact dir when one is configured.
func (m *WorkerModel) saveLog(name string, content []byte) {
	if m.artifacts == "" {
		return
	}
	os.MkdirAll(m.artifacts, 0755)
	os.WriteFile(filepath.Join(m.artifacts, name), content, 0644)
}
