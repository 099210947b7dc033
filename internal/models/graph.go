package models

import (
	"io/fs"
	"path/filepath"
)

// GraphMeta is the metadata block of a dataset bundle's graph.toml.
// The payload file it names is opaque to the harness and is consumed
// only by trainer workers.
type GraphMeta struct {
	Name     string `toml:"name" json:"name"`
	Nodes    int    `toml:"nodes" json:"nodes"`
	Edges    int    `toml:"edges" json:"edges"`
	Features int    `toml:"features" json:"features"`
	Classes  int    `toml:"classes" json:"classes"`
	Payload  string `toml:"payload" json:"payload"`
}

// Splits holds the three disjoint node-index sets from a bundle's
// splits.json. Loaded once per bundle and shared read-only.
type Splits struct {
	Train []int `json:"train_nodes"`
	Val   []int `json:"val_nodes"`
	Test  []int `json:"test_nodes"`
}

// Bundle represents a fully loaded dataset bundle ready for benchmarking.
type Bundle struct {
	Name        string
	Path        string // filesystem path to bundle directory
	FS          fs.FS  // filesystem rooted at bundle directory
	Meta        GraphMeta
	Splits      Splits
	GitCommitID *string // resolved git SHA, nil if not in git repo
}

// PayloadPath returns the payload file path on the local filesystem.
func (b *Bundle) PayloadPath() string {
	return filepath.Join(b.Path, b.Meta.Payload)
}

// BundleSet represents a named collection of bundles from a registry.
type BundleSet struct {
	Name    string
	Version string
	Bundles []Bundle
}
