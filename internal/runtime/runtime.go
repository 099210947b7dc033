// Package runtime defines the contract between the trial loop and the
// substrates that host trainer workers. A Runtime provisions one Session
// per trial; the session is where the worker process runs.
package runtime

import (
	"context"
	"io"
	"strings"
	"time"
)

// DefaultWorkdir is the working directory sessions expose to workers on
// container substrates.
const DefaultWorkdir = "/work"

// Session represents a running execution session hosting one trial.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Workdir returns the directory the trial's files live in.
	Workdir() string

	// CopyTo copies a local file or directory into the session.
	CopyTo(ctx context.Context, src, dst string) error

	// CopyFrom copies a file or directory from the session to a local path.
	CopyFrom(ctx context.Context, src, dst string) error

	// Exec executes a command in the session, streaming stdout and stderr
	// to the provided writers. Returns the exit code or error on failure.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Close terminates the session and cleans up its resources.
	Close(ctx context.Context) error

	// Cost returns the cost incurred by this session.
	Cost() float64
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Runtime is a factory for creating sessions.
type Runtime interface {
	// Name returns the runtime name (e.g., "local", "docker", "modal").
	Name() string

	// BuildImage builds a worker image from the given context directory.
	BuildImage(ctx context.Context, opts BuildImageOptions) (string, error)

	// PullImage makes a pre-built worker image available.
	PullImage(ctx context.Context, imageRef string) error

	// StartSession creates and starts a new session from an image.
	StartSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// BuildImageOptions configures image building.
type BuildImageOptions struct {
	ContextDir string
	Tag        string
	Timeout    time.Duration
	NoCache    bool
}

// SessionOptions configures session creation.
type SessionOptions struct {
	Name      string
	ImageRef  string
	CPUs      float64
	MemoryMiB int
	GPU       bool
	Env       map[string]string
}

// maxNameLength bounds session names; container runtimes reject longer ones.
const maxNameLength = 63

// SanitizeName converts an arbitrary label into a name safe for container
// and sandbox identifiers: lowercase alphanumerics and dashes, at most
// maxNameLength characters.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	s := b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if len(s) > maxNameLength {
		s = strings.Trim(s[:maxNameLength], "-")
	}
	if s == "" {
		return "session"
	}
	return s
}
