// Package graph loads dataset bundles: directories pairing a graph.toml
// metadata file and a splits.json node-index file with an opaque payload
// consumed only by trainer workers. The harness never parses the payload.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jingmouren/gallerybench/internal/models"
)

// Loader loads dataset bundles from local paths.
type Loader struct{}

// NewLoader creates a new bundle loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFromPath loads a single bundle from a directory.
func (l *Loader) LoadFromPath(ctx context.Context, bundlePath string) (*models.Bundle, error) {
	// Get absolute path for git operations
	absPath, err := filepath.Abs(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	fsys := os.DirFS(bundlePath)

	meta, err := loadMeta(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading graph.toml: %w", err)
	}

	splits, err := loadSplits(fsys)
	if err != nil {
		return nil, fmt.Errorf("loading splits.json: %w", err)
	}

	name := meta.Name
	if name == "" {
		name = filepath.Base(absPath)
	}

	// Try to resolve git commit ID
	var gitCommitID *string
	if sha := resolveGitSHA(absPath); sha != "" {
		gitCommitID = &sha
	}

	bundle := &models.Bundle{
		Name:        name,
		Path:        absPath,
		FS:          fsys,
		Meta:        meta,
		Splits:      splits,
		GitCommitID: gitCommitID,
	}

	return bundle, nil
}

// LoadSet loads the bundles referenced by a local path. A directory
// containing a graph.toml is a single bundle; any other directory is
// scanned one level deep for bundle subdirectories.
func (l *Loader) LoadSet(ctx context.Context, path string) (*models.BundleSet, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if _, err := os.Stat(filepath.Join(absPath, "graph.toml")); err == nil {
		b, err := l.LoadFromPath(ctx, absPath)
		if err != nil {
			return nil, err
		}
		if err := l.Validate(b); err != nil {
			return nil, fmt.Errorf("validating bundle %s: %w", b.Name, err)
		}
		return &models.BundleSet{
			Name:    b.Name,
			Bundles: []models.Bundle{*b},
		}, nil
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading bundle directory: %w", err)
	}

	var bundles []models.Bundle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		b, err := l.LoadFromPath(ctx, filepath.Join(absPath, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading bundle %s: %w", entry.Name(), err)
		}

		if err := l.Validate(b); err != nil {
			return nil, fmt.Errorf("validating bundle %s: %w", entry.Name(), err)
		}

		bundles = append(bundles, *b)
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("no bundles found in %s", absPath)
	}

	return &models.BundleSet{
		Name:    filepath.Base(absPath),
		Bundles: bundles,
	}, nil
}

// Validate checks a bundle's structure: the payload file must exist and
// the splits must be usable for a benchmark run.
func (l *Loader) Validate(b *models.Bundle) error {
	if b.Meta.Payload == "" {
		return models.NewBenchError(models.ErrDatasetInvalid, "graph.toml names no payload file")
	}
	if _, err := fs.Stat(b.FS, b.Meta.Payload); err != nil {
		return models.NewBenchError(models.ErrDatasetInvalid,
			fmt.Sprintf("payload %s not found: %v", b.Meta.Payload, err))
	}
	return ValidateSplits(b.Meta.Nodes, b.Splits)
}

// ValidateSplits checks that the three node-index sets are non-empty,
// in range, and pairwise disjoint.
func ValidateSplits(nodes int, s models.Splits) error {
	parts := []struct {
		name    string
		indices []int
	}{
		{"train", s.Train},
		{"val", s.Val},
		{"test", s.Test},
	}

	seen := make(map[int]string)
	for _, part := range parts {
		if len(part.indices) == 0 {
			return models.NewBenchError(models.ErrDatasetInvalid,
				fmt.Sprintf("%s split is empty", part.name))
		}
		for _, idx := range part.indices {
			if idx < 0 || (nodes > 0 && idx >= nodes) {
				return models.NewBenchError(models.ErrDatasetInvalid,
					fmt.Sprintf("%s split index %d out of range [0, %d)", part.name, idx, nodes))
			}
			if prev, ok := seen[idx]; ok {
				return models.NewBenchError(models.ErrDatasetInvalid,
					fmt.Sprintf("node %d appears in both %s and %s splits", idx, prev, part.name))
			}
			seen[idx] = part.name
		}
	}

	return nil
}

func loadMeta(fsys fs.FS) (models.GraphMeta, error) {
	var meta models.GraphMeta

	data, err := fs.ReadFile(fsys, "graph.toml")
	if err != nil {
		return meta, err
	}

	if _, err := toml.Decode(string(data), &meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func loadSplits(fsys fs.FS) (models.Splits, error) {
	var splits models.Splits

	data, err := fs.ReadFile(fsys, "splits.json")
	if err != nil {
		return splits, err
	}

	if err := json.Unmarshal(data, &splits); err != nil {
		return splits, err
	}
	return splits, nil
}

// resolveGitSHA attempts to get the current HEAD commit SHA.
func resolveGitSHA(path string) string {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
