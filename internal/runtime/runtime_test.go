package runtime

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "already clean", input: "cora-tensorflow-gcn", want: "cora-tensorflow-gcn"},
		{name: "uppercase", input: "Cora-GCN", want: "cora-gcn"},
		{name: "special characters", input: "cora/tf@gcn seed:1", want: "cora-tf-gcn-seed-1"},
		{name: "collapses runs", input: "a///b", want: "a-b"},
		{name: "trims edges", input: "_cora_", want: "cora"},
		{name: "empty", input: "", want: "session"},
		{name: "only specials", input: "///", want: "session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeNameLength(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := SanitizeName(long)
	if len(got) != maxNameLength {
		t.Errorf("expected %d chars, got %d", maxNameLength, len(got))
	}

	// Truncation must not leave a trailing dash
	edged := strings.Repeat("ab-", 30)
	got = SanitizeName(edged)
	if strings.HasSuffix(got, "-") {
		t.Errorf("sanitized name ends with dash: %q", got)
	}
	if len(got) > maxNameLength {
		t.Errorf("sanitized name too long: %d", len(got))
	}
}
