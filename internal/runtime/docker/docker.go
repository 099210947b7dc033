// Package docker hosts trainer workers in containers managed through the
// docker CLI.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jingmouren/gallerybench/internal/runtime"
)

// Runtime implements the Docker runtime.
type Runtime struct{}

// NewRuntime creates a new Docker runtime.
func NewRuntime() (*Runtime, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker CLI not found: %w", err)
	}
	return &Runtime{}, nil
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return "docker"
}

// BuildImage builds a Docker image from the given context directory.
func (r *Runtime) BuildImage(ctx context.Context, opts runtime.BuildImageOptions) (string, error) {
	args := []string{"build", "-t", opts.Tag}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	args = append(args, opts.ContextDir)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("building docker image: %w", err)
	}

	return opts.Tag, nil
}

// PullImage pulls a pre-built image from a registry.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	cmd := exec.CommandContext(ctx, "docker", "pull", imageRef)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pulling docker image: %w", err)
	}

	return nil
}

// StartSession creates and starts a Docker container.
func (r *Runtime) StartSession(ctx context.Context, opts runtime.SessionOptions) (runtime.Session, error) {
	// Use provided name or generate one
	containerID := opts.Name
	if containerID == "" {
		containerID = fmt.Sprintf("gallerybench-%d", time.Now().UnixNano())
	}

	args := []string{
		"run",
		"-d",
		"--name", containerID,
	}

	// Add resource constraints
	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(opts.CPUs, 'f', -1, 64))
	}
	if opts.MemoryMiB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMiB))
	}
	if opts.GPU {
		args = append(args, "--gpus", "all")
	}

	// Add environment variables
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	args = append(args, opts.ImageRef)
	// Keep container running with sleep infinity
	args = append(args, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating docker container: %w: %s", err, stderr.String())
	}

	sess := &Session{containerID: containerID}

	// Ensure the shared workdir exists before any copies
	mkdirCmd := exec.CommandContext(ctx, "docker", "exec", containerID, "mkdir", "-p", runtime.DefaultWorkdir)
	if err := mkdirCmd.Run(); err != nil {
		sess.Close(ctx)
		return nil, fmt.Errorf("creating workdir: %w", err)
	}

	return sess, nil
}

// Session represents a running Docker container.
type Session struct {
	containerID string
}

// ID returns the container ID.
func (s *Session) ID() string {
	return s.containerID
}

// Workdir returns the in-container working directory.
func (s *Session) Workdir() string {
	return runtime.DefaultWorkdir
}

// CopyTo copies a local file or directory into the container.
func (s *Session) CopyTo(ctx context.Context, src, dst string) error {
	// Ensure dst directory exists
	dstDir := filepath.Dir(dst)
	if dstDir != "/" && dstDir != "." {
		mkdirCmd := exec.CommandContext(ctx, "docker", "exec", s.containerID, "mkdir", "-p", dstDir)
		if err := mkdirCmd.Run(); err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", src, fmt.Sprintf("%s:%s", s.containerID, dst))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying to container: %w: %s", err, stderr.String())
	}
	return nil
}

// CopyFrom copies a file or directory from the container to a local path.
func (s *Session) CopyFrom(ctx context.Context, src, dst string) error {
	// Ensure dst directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", fmt.Sprintf("%s:%s", s.containerID, src), dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying from container: %w: %s", err, stderr.String())
	}
	return nil
}

// Exec executes a command in the container.
func (s *Session) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts runtime.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"exec"}

	// Add environment variables
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	// Add working directory
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = runtime.DefaultWorkdir
	}
	args = append(args, "-w", workDir)

	args = append(args, s.containerID, "bash", "-c", cmd)

	execCmd := exec.CommandContext(ctx, "docker", args...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

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

// Close force-removes the container.
func (s *Session) Close(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", s.containerID)
	if err := cmd.Run(); err != nil {
		// Ignore error if container already removed
		if !strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	return nil
}

// Cost returns the cost incurred by this session (always 0 for local Docker).
func (s *Session) Cost() float64 {
	return 0
}
