package graph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jingmouren/gallerybench/internal/graph"
	"github.com/jingmouren/gallerybench/internal/models"
)

// writeBundle creates a minimal valid bundle directory for tests.
func writeBundle(t *testing.T, dir string, name string) {
	t.Helper()

	graphToml := `name = "` + name + `"
nodes = 10
edges = 20
features = 4
classes = 3
payload = "graph.npz"
`
	splitsJSON := `{
  "train_nodes": [0, 1, 2, 3],
  "val_nodes": [4, 5, 6],
  "test_nodes": [7, 8, 9]
}`

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating bundle dir: %v", err)
	}
	for file, content := range map[string]string{
		"graph.toml":  graphToml,
		"splits.json": splitsJSON,
		"graph.npz":   "opaque",
	} {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", file, err)
		}
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cora")
	writeBundle(t, dir, "cora")

	loader := graph.NewLoader()
	b, err := loader.LoadFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if b.Name != "cora" {
		t.Errorf("expected name cora, got %s", b.Name)
	}

	if b.Meta.Nodes != 10 {
		t.Errorf("expected 10 nodes, got %d", b.Meta.Nodes)
	}

	if len(b.Splits.Train) != 4 || len(b.Splits.Val) != 3 || len(b.Splits.Test) != 3 {
		t.Errorf("unexpected splits: %+v", b.Splits)
	}

	if err := loader.Validate(b); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	want := filepath.Join(dir, "graph.npz")
	if got := b.PayloadPath(); got != want {
		t.Errorf("expected payload path %s, got %s", want, got)
	}
}

func TestValidateMissingPayload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cora")
	writeBundle(t, dir, "cora")
	if err := os.Remove(filepath.Join(dir, "graph.npz")); err != nil {
		t.Fatalf("removing payload: %v", err)
	}

	loader := graph.NewLoader()
	b, err := loader.LoadFromPath(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	err = loader.Validate(b)
	if err == nil {
		t.Fatal("expected error for missing payload")
	}
	if !models.IsConfigError(err) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestValidateSplits(t *testing.T) {
	tests := []struct {
		name    string
		nodes   int
		splits  models.Splits
		wantErr bool
	}{
		{
			name:   "valid",
			nodes:  6,
			splits: models.Splits{Train: []int{0, 1}, Val: []int{2, 3}, Test: []int{4, 5}},
		},
		{
			name:    "empty train",
			nodes:   6,
			splits:  models.Splits{Train: nil, Val: []int{2}, Test: []int{4}},
			wantErr: true,
		},
		{
			name:    "empty test",
			nodes:   6,
			splits:  models.Splits{Train: []int{0}, Val: []int{2}, Test: nil},
			wantErr: true,
		},
		{
			name:    "overlap between train and val",
			nodes:   6,
			splits:  models.Splits{Train: []int{0, 1}, Val: []int{1, 2}, Test: []int{4}},
			wantErr: true,
		},
		{
			name:    "overlap between val and test",
			nodes:   6,
			splits:  models.Splits{Train: []int{0}, Val: []int{2}, Test: []int{2}},
			wantErr: true,
		},
		{
			name:    "index out of range",
			nodes:   6,
			splits:  models.Splits{Train: []int{0}, Val: []int{2}, Test: []int{6}},
			wantErr: true,
		},
		{
			name:    "negative index",
			nodes:   6,
			splits:  models.Splits{Train: []int{-1}, Val: []int{2}, Test: []int{4}},
			wantErr: true,
		},
		{
			name:   "unknown node count skips range check",
			nodes:  0,
			splits: models.Splits{Train: []int{100}, Val: []int{200}, Test: []int{300}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := graph.ValidateSplits(tt.nodes, tt.splits)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !models.IsConfigError(err) {
					t.Errorf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadSet(t *testing.T) {
	base := t.TempDir()
	writeBundle(t, filepath.Join(base, "cora"), "cora")
	writeBundle(t, filepath.Join(base, "citeseer"), "citeseer")

	loader := graph.NewLoader()
	set, err := loader.LoadSet(context.Background(), base)
	if err != nil {
		t.Fatalf("LoadSet failed: %v", err)
	}

	if len(set.Bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(set.Bundles))
	}
}

func TestLoadSetSingleBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cora")
	writeBundle(t, dir, "cora")

	loader := graph.NewLoader()
	set, err := loader.LoadSet(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadSet failed: %v", err)
	}

	if len(set.Bundles) != 1 || set.Bundles[0].Name != "cora" {
		t.Errorf("unexpected set: %+v", set)
	}
}

func TestLoadSetEmpty(t *testing.T) {
	loader := graph.NewLoader()
	if _, err := loader.LoadSet(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}
