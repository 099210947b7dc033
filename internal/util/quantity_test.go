package util

import "testing"

func TestParseMemory(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "gigabytes", input: "2G", want: 2048},
		{name: "gibibytes", input: "2Gi", want: 2048},
		{name: "megabytes", input: "512M", want: 512},
		{name: "fractional gigabytes", input: "1.5G", want: 1536},
		{name: "bare number is bytes", input: "1048576", want: 1},
		{name: "whitespace", input: "  4G  ", want: 4096},
		{name: "unknown unit", input: "2Q", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMemory(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMemory(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMemory(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMemory(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCPUs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "whole", input: "2", want: 2},
		{name: "fractional", input: "0.5", want: 0.5},
		{name: "negative", input: "-1", wantErr: true},
		{name: "zero", input: "0", wantErr: true},
		{name: "garbage", input: "two", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCPUs(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseCPUs(%q) expected error, got %f", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCPUs(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCPUs(%q) = %f, want %f", tt.input, got, tt.want)
			}
		})
	}
}
