// Package local runs trainer workers as subprocesses of the harness.
// Each session is a scratch directory; commands run with the session
// directory as their working directory.
package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jingmouren/gallerybench/internal/runtime"
)

// Runtime implements the local subprocess runtime.
type Runtime struct{}

// NewRuntime creates a new local runtime. It fails when no shell is
// available, since worker commands run through bash.
func NewRuntime() (*Runtime, error) {
	if _, err := exec.LookPath("bash"); err != nil {
		return nil, fmt.Errorf("bash not found: %w", err)
	}
	return &Runtime{}, nil
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return "local"
}

// BuildImage is a no-op for the local runtime; workers run directly on
// the host toolchain.
func (r *Runtime) BuildImage(ctx context.Context, opts runtime.BuildImageOptions) (string, error) {
	slog.Debug("local runtime ignores image build", "tag", opts.Tag)
	return opts.Tag, nil
}

// PullImage is a no-op for the local runtime.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	slog.Debug("local runtime ignores image pull", "image", imageRef)
	return nil
}

// StartSession creates a scratch directory session.
func (r *Runtime) StartSession(ctx context.Context, opts runtime.SessionOptions) (runtime.Session, error) {
	pattern := "gallerybench-"
	if opts.Name != "" {
		pattern = fmt.Sprintf("gallerybench-%s-", opts.Name)
	}

	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	slog.Debug("local session started", "dir", dir)

	return &Session{
		dir: dir,
		env: opts.Env,
	}, nil
}

// Session is a local scratch-directory session.
type Session struct {
	dir string
	env map[string]string
}

// ID returns the session directory name.
func (s *Session) ID() string {
	return filepath.Base(s.dir)
}

// Workdir returns the session's scratch directory.
func (s *Session) Workdir() string {
	return s.dir
}

// CopyTo copies a local file or directory into the session. Both sides
// live on the host filesystem, so this is a plain copy.
func (s *Session) CopyTo(ctx context.Context, src, dst string) error {
	return copyPath(src, dst)
}

// CopyFrom copies a file or directory from the session to a local path.
func (s *Session) CopyFrom(ctx context.Context, src, dst string) error {
	return copyPath(src, dst)
}

// Exec executes a command through bash in the session directory.
func (s *Session) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts runtime.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, "bash", "-c", cmd)
	execCmd.Dir = s.dir
	if opts.WorkDir != "" {
		execCmd.Dir = opts.WorkDir
	}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	execCmd.Env = os.Environ()
	for k, v := range s.env {
		execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range opts.Env {
		execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	err := execCmd.Run()
	if err != nil {
		// Try to extract exit code
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		// Check for context timeout
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out")
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

// Close removes the session directory.
func (s *Session) Close(ctx context.Context) error {
	slog.Debug("removing local session", "dir", s.dir)
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("removing session directory: %w", err)
	}
	return nil
}

// Cost returns the cost incurred by this session (always 0 for local).
func (s *Session) Cost() float64 {
	return 0
}

// copyPath copies a file or directory tree between host paths.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return fmt.Errorf("creating destination directory: %w", err)
		}
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return fmt.Errorf("copying directory: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}
	if err := os.WriteFile(dst, content, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing destination file: %w", err)
	}
	return nil
}
