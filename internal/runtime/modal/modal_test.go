package modal

import (
	"strings"
	"testing"
)

func TestParseDockerfile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantBase    string
		wantCmds    int
		wantErr     bool
		errContains string
	}{
		{
			name: "basic dockerfile",
			content: `
FROM ubuntu:22.04
RUN apt-get update
ENV MY_VAR=test
`,
			wantBase: "ubuntu:22.04",
			wantCmds: 2,
			wantErr:  false,
		},
		{
			name: "dockerfile with COPY",
			content: `
FROM python:3.10
COPY . /app
RUN pip install -r requirements.txt
`,
			wantErr:     true,
			errContains: "COPY and ADD instructions are not supported",
		},
		{
			name: "dockerfile with ADD",
			content: `
FROM alpine:latest
ADD https://example.com/file.tar.gz /tmp/
`,
			wantErr:     true,
			errContains: "COPY and ADD instructions are not supported",
		},
		{
			name: "dockerfile with line continuations",
			content: `
FROM python:3.10-slim
RUN pip install \
    tensorflow \
    scipy
`,
			wantBase: "python:3.10-slim",
			wantCmds: 1,
			wantErr:  false,
		},
		{
			name: "missing FROM",
			content: `
RUN echo "hello"
`,
			wantErr:     true,
			errContains: "no FROM instruction found",
		},
		{
			name: "multiple FROM - uses last",
			content: `
FROM golang:1.21
RUN go version
FROM alpine:latest
`,
			wantBase: "alpine:latest",
			wantCmds: 1,
			wantErr:  false,
		},
		{
			name: "comments and empty lines",
			content: `
# This is a comment

FROM python:3.9

# Another comment
RUN python --version
`,
			wantBase: "python:3.9",
			wantCmds: 1,
			wantErr:  false,
		},
		{
			name: "case insensitive instructions",
			content: `
from python:3.11
run python -V
workdir /work
`,
			wantBase: "python:3.11",
			wantCmds: 2,
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, cmds, err := parseDockerfile(tt.content)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q should contain %q", err.Error(), tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if base != tt.wantBase {
					t.Errorf("expected base %q, got %q", tt.wantBase, base)
				}
				if len(cmds) != tt.wantCmds {
					t.Errorf("expected %d commands, got %d", tt.wantCmds, len(cmds))
				}
			}
		})
	}
}

func TestParseRuntimeConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      map[string]any
		wantApp     string
		wantRegions []string
		wantVerbose bool
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name: "app name and single region",
			config: map[string]any{
				"app_name": "bench-suite",
				"region":   "us-east",
			},
			wantApp:     "bench-suite",
			wantRegions: []string{"us-east"},
		},
		{
			name: "multiple regions",
			config: map[string]any{
				"regions": []any{"us-east", "us-west"},
			},
			wantRegions: []string{"us-east", "us-west"},
		},
		{
			name: "verbose flag",
			config: map[string]any{
				"verbose": true,
			},
			wantVerbose: true,
		},
		{
			name: "wrong types ignored",
			config: map[string]any{
				"app_name": 42,
				"verbose":  "yes",
				"regions":  "us-east",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRuntimeConfig(tt.config)

			if got.AppName != tt.wantApp {
				t.Errorf("expected app name %q, got %q", tt.wantApp, got.AppName)
			}
			if len(got.Regions) != len(tt.wantRegions) {
				t.Fatalf("expected %d regions, got %d", len(tt.wantRegions), len(got.Regions))
			}
			for i, r := range tt.wantRegions {
				if got.Regions[i] != r {
					t.Errorf("region %d: expected %q, got %q", i, r, got.Regions[i])
				}
			}
			if got.Verbose != tt.wantVerbose {
				t.Errorf("expected verbose %v, got %v", tt.wantVerbose, got.Verbose)
			}
		})
	}
}
