package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Canonical framework names accepted in bench.yaml.
const (
	FrameworkTensorFlow = "tensorflow"
	FrameworkPyTorch    = "pytorch"
	FrameworkPyG        = "pyg"
	FrameworkDGL        = "dgl"
)

// Supported model architecture names.
const (
	ArchGCN      = "gcn"
	ArchSGC      = "sgc"
	ArchGAT      = "gat"
	ArchChebyNet = "chebynet"
	ArchDAGNN    = "dagnn"
)

// Backend is a framework backend definition from bench.yaml.
type Backend struct {
	Name   string            `yaml:"name" json:"name"`
	Image  string            `yaml:"image,omitempty" json:"image,omitempty"`
	Worker string            `yaml:"worker,omitempty" json:"worker,omitempty"`
	Env    map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// ModelRef selects a model architecture and an optional preset file
// overriding its default hyperparameters.
type ModelRef struct {
	Arch   string  `yaml:"arch" json:"arch"`
	Preset *string `yaml:"preset,omitempty" json:"preset,omitempty"`
}

// NormalizeFramework maps a backend name or one of its accepted aliases
// to the canonical framework name.
func NormalizeFramework(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tensorflow", "tf":
		return FrameworkTensorFlow, nil
	case "pytorch", "torch", "th":
		return FrameworkPyTorch, nil
	case "pyg", "pytorch_geometric":
		return FrameworkPyG, nil
	case "dgl", "dgl_torch", "dgl_tf":
		return FrameworkDGL, nil
	}
	return "", fmt.Errorf("unknown backend %q", name)
}

// KnownArch reports whether arch names a supported model architecture.
func KnownArch(arch string) bool {
	switch arch {
	case ArchGCN, ArchSGC, ArchGAT, ArchChebyNet, ArchDAGNN:
		return true
	}
	return false
}

// ParseDevice interprets a device string of the "CPU:0" / "GPU:1" form.
// The index defaults to 0 when omitted.
func ParseDevice(device string) (gpu bool, index int, err error) {
	kind, idx, hasIndex := strings.Cut(device, ":")
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "CPU":
		gpu = false
	case "GPU":
		gpu = true
	default:
		return false, 0, fmt.Errorf("unknown device %q", device)
	}

	if hasIndex {
		index, err = strconv.Atoi(idx)
		if err != nil || index < 0 {
			return false, 0, fmt.Errorf("invalid device index in %q", device)
		}
	}
	return gpu, index, nil
}
