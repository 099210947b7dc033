package models_test

import (
	"testing"

	"github.com/jingmouren/gallerybench/internal/models"
)

func TestNormalizeFramework(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "canonical tensorflow", input: "tensorflow", want: models.FrameworkTensorFlow},
		{name: "tf alias", input: "tf", want: models.FrameworkTensorFlow},
		{name: "torch alias", input: "torch", want: models.FrameworkPyTorch},
		{name: "th alias", input: "th", want: models.FrameworkPyTorch},
		{name: "pyg long form", input: "pytorch_geometric", want: models.FrameworkPyG},
		{name: "dgl tf flavor", input: "dgl_tf", want: models.FrameworkDGL},
		{name: "case and whitespace", input: "  TF  ", want: models.FrameworkTensorFlow},
		{name: "unknown", input: "mxnet", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.NormalizeFramework(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeFramework(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeFramework(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeFramework(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestKnownArch(t *testing.T) {
	for _, arch := range []string{models.ArchGCN, models.ArchSGC, models.ArchGAT, models.ArchChebyNet, models.ArchDAGNN} {
		if !models.KnownArch(arch) {
			t.Errorf("KnownArch(%q) = false", arch)
		}
	}
	if models.KnownArch("transformer") {
		t.Error("KnownArch(\"transformer\") = true")
	}
	if models.KnownArch("GCN") {
		t.Error("arch names are lowercase, KnownArch(\"GCN\") should be false")
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantGPU   bool
		wantIndex int
		wantErr   bool
	}{
		{name: "cpu with index", input: "CPU:0", wantGPU: false, wantIndex: 0},
		{name: "gpu with index", input: "GPU:1", wantGPU: true, wantIndex: 1},
		{name: "index defaults to zero", input: "GPU", wantGPU: true, wantIndex: 0},
		{name: "lowercase", input: "gpu:2", wantGPU: true, wantIndex: 2},
		{name: "unknown kind", input: "TPU:0", wantErr: true},
		{name: "non-numeric index", input: "GPU:x", wantErr: true},
		{name: "negative index", input: "GPU:-1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu, index, err := models.ParseDevice(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDevice(%q) expected error, got gpu=%v index=%d", tt.input, gpu, index)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDevice(%q) unexpected error: %v", tt.input, err)
			}
			if gpu != tt.wantGPU || index != tt.wantIndex {
				t.Errorf("ParseDevice(%q) = (%v, %d), want (%v, %d)",
					tt.input, gpu, index, tt.wantGPU, tt.wantIndex)
			}
		})
	}
}
