// Package modal hosts trainer workers in Modal sandboxes.
package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/modal-labs/libmodal/modal-go"

	"github.com/jingmouren/gallerybench/internal/runtime"
)

// RuntimeConfig holds Modal-specific configuration.
type RuntimeConfig struct {
	// AppName is the name of the Modal app to use. If empty, a unique name is generated.
	AppName string
	// Regions specifies the Modal regions (e.g., "us-east", "us-west").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
}

// ParseRuntimeConfig extracts Modal-specific config from the generic
// provider_config map.
func ParseRuntimeConfig(config map[string]any) RuntimeConfig {
	rc := RuntimeConfig{}
	if config == nil {
		return rc
	}
	if v, ok := config["app_name"].(string); ok {
		rc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		rc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				rc.Regions = append(rc.Regions, s)
			}
		}
	}
	if v, ok := config["verbose"].(bool); ok {
		rc.Verbose = v
	}
	return rc
}

// Runtime implements the Modal runtime using Modal Sandboxes.
type Runtime struct {
	client *modal.Client
	config RuntimeConfig
}

// MinImageBuilderVersion is the minimum required Modal image builder version.
// WORKDIR and other Dockerfile instructions require version 2025.06 or later.
const MinImageBuilderVersion = "2025.06"

// NewRuntime creates a new Modal runtime.
func NewRuntime(config RuntimeConfig) (*Runtime, error) {
	if err := checkImageBuilderVersion(); err != nil {
		return nil, err
	}

	slog.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Runtime{
		client: client,
		config: config,
	}, nil
}

// ConfigReader reads Modal configuration.
type ConfigReader interface {
	ReadConfig() ([]byte, error)
}

// cliConfigReader reads config by executing the modal CLI.
type cliConfigReader struct{}

func (c *cliConfigReader) ReadConfig() ([]byte, error) {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return nil, fmt.Errorf("modal CLI not found: %w", err)
	}
	cmd := exec.Command(modalPath, "config", "show")
	return cmd.Output()
}

// defaultConfigReader is the default ConfigReader used in production.
var defaultConfigReader ConfigReader = &cliConfigReader{}

// checkImageBuilderVersion verifies that the Modal image builder version is sufficient.
func checkImageBuilderVersion() error {
	return checkImageBuilderVersionWith(defaultConfigReader)
}

// checkImageBuilderVersionWith verifies the version using the provided ConfigReader.
func checkImageBuilderVersionWith(reader ConfigReader) error {
	output, err := reader.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to get modal config: %w", err)
	}

	var config struct {
		ImageBuilderVersion *string `json:"image_builder_version"`
	}
	if err := json.Unmarshal(output, &config); err != nil {
		return fmt.Errorf("failed to parse modal config: %w", err)
	}

	if config.ImageBuilderVersion == nil || *config.ImageBuilderVersion == "" {
		return fmt.Errorf("modal image_builder_version is not set; "+
			"WORKDIR support requires version %s or later. "+
			"Run: modal config set image_builder_version %s",
			MinImageBuilderVersion, MinImageBuilderVersion)
	}

	if *config.ImageBuilderVersion < MinImageBuilderVersion {
		return fmt.Errorf("modal image_builder_version %q is too old; "+
			"WORKDIR support requires version %s or later. "+
			"Run: modal config set image_builder_version %s",
			*config.ImageBuilderVersion, MinImageBuilderVersion, MinImageBuilderVersion)
	}

	slog.Debug("modal image builder version check passed", "version", *config.ImageBuilderVersion)
	return nil
}

// Name returns the runtime name.
func (r *Runtime) Name() string {
	return "modal"
}

// BuildImage builds a worker image from the given context directory.
// For Modal, the context directory path is returned as the "image
// reference" and the actual build happens lazily when a sandbox is
// created. Dockerfiles must be self-contained: COPY and ADD are not
// supported because the sandbox builder has no local build context.
func (r *Runtime) BuildImage(ctx context.Context, opts runtime.BuildImageOptions) (string, error) {
	dockerfilePath := filepath.Join(opts.ContextDir, "Dockerfile")
	content, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return "", fmt.Errorf("reading Dockerfile at %s: %w", dockerfilePath, err)
	}

	// Validate eagerly so config mistakes surface before any sandbox exists
	if _, _, err := parseDockerfile(string(content)); err != nil {
		return "", fmt.Errorf("parsing Dockerfile: %w", err)
	}

	slog.Debug("modal build deferred - using context directory", "context", opts.ContextDir)
	return opts.ContextDir, nil
}

// PullImage pulls a pre-built image from a registry.
// For Modal, this is a no-op since Modal handles image pulling internally.
func (r *Runtime) PullImage(ctx context.Context, imageRef string) error {
	slog.Debug("modal pull is no-op - handled internally", "image", imageRef)
	return nil
}

// StartSession creates and starts a Modal sandbox.
func (r *Runtime) StartSession(ctx context.Context, opts runtime.SessionOptions) (runtime.Session, error) {
	if opts.GPU {
		return nil, fmt.Errorf("modal runtime does not support GPU sessions")
	}

	// Determine app name: prefer opts.Name, then config, then generate
	appName := opts.Name
	if appName == "" {
		appName = r.config.AppName
	}
	if appName == "" {
		appName = fmt.Sprintf("gallerybench-%d", time.Now().UnixNano())
	}

	slog.Debug("creating modal app", "name", appName)

	// Get or create the Modal app
	app, err := r.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal app: %w", err)
	}

	// Build the image
	var image *modal.Image
	if isDockerContextPath(opts.ImageRef) {
		// ImageRef is a path to a directory with a Dockerfile
		slog.Debug("building modal image from dockerfile", "context", opts.ImageRef)
		image, err = r.buildImageFromDockerfile(ctx, app, opts.ImageRef)
		if err != nil {
			return nil, fmt.Errorf("building image from dockerfile: %w", err)
		}
	} else {
		// ImageRef is a registry image reference
		slog.Debug("using registry image for modal", "image", opts.ImageRef)
		image = r.client.Images.FromRegistry(opts.ImageRef, nil)
	}

	// Parse resource specs
	cpuCount := int(math.Ceil(opts.CPUs))
	if cpuCount <= 0 {
		cpuCount = 1
	}
	memoryMiB := opts.MemoryMiB
	if memoryMiB <= 0 {
		memoryMiB = 2048
	}

	// Build environment variables map including opts.Env
	envVars := make(map[string]string)
	for k, v := range opts.Env {
		envVars[k] = v
	}

	// Create sandbox parameters
	createParams := &modal.SandboxCreateParams{
		CPU:       float64(cpuCount),
		MemoryMiB: memoryMiB,
		Env:       envVars,
		Timeout:   24 * time.Hour, // Maximum allowed
		Verbose:   r.config.Verbose,
		Regions:   r.config.Regions,
	}

	slog.Debug("creating modal sandbox",
		"app", appName,
		"cpus", cpuCount,
		"memory_mib", memoryMiB,
		"regions", r.config.Regions)

	// Create the sandbox
	sandbox, err := r.client.Sandboxes.Create(ctx, app, image, createParams)
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	slog.Debug("modal sandbox created", "sandbox_id", sandbox.SandboxID)

	sess := &Session{
		client:    r.client,
		sandbox:   sandbox,
		app:       app,
		appName:   appName,
		startTime: time.Now(),
		cpuCount:  cpuCount,
		memoryMiB: memoryMiB,
	}

	// Ensure the shared workdir exists before any copies
	if _, err := sess.execSimple(ctx, fmt.Sprintf("mkdir -p %q", runtime.DefaultWorkdir)); err != nil {
		sess.Close(ctx)
		return nil, fmt.Errorf("creating workdir: %w", err)
	}

	return sess, nil
}

// buildImageFromDockerfile creates a Modal image from a Dockerfile.
func (r *Runtime) buildImageFromDockerfile(ctx context.Context, app *modal.App, contextDir string) (*modal.Image, error) {
	dockerfilePath := filepath.Join(contextDir, "Dockerfile")
	content, err := os.ReadFile(dockerfilePath)
	if err != nil {
		return nil, fmt.Errorf("reading Dockerfile: %w", err)
	}

	// Parse the Dockerfile to extract the base image and commands
	baseImage, commands, err := parseDockerfile(string(content))
	if err != nil {
		return nil, fmt.Errorf("parsing Dockerfile: %w", err)
	}

	slog.Debug("parsed dockerfile",
		"base_image", baseImage,
		"commands", len(commands))

	// Start with the base image
	image := r.client.Images.FromRegistry(baseImage, nil)

	// Apply Dockerfile commands
	if len(commands) > 0 {
		image = image.DockerfileCommands(commands, nil)
	}

	// Build the image eagerly so we catch build errors early
	slog.Debug("building modal image")
	builtImage, err := image.Build(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("building image: %w", err)
	}

	return builtImage, nil
}

// isDockerContextPath checks if the imageRef names a local directory.
func isDockerContextPath(imageRef string) bool {
	info, err := os.Stat(imageRef)
	return err == nil && info.IsDir()
}

// parseDockerfile extracts base image and commands from a Dockerfile.
// COPY and ADD are rejected: the sandbox builder has no local build
// context to resolve them against.
func parseDockerfile(content string) (baseImage string, commands []string, err error) {
	lines := strings.Split(content, "\n")
	var currentCmd strings.Builder
	inContinuation := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Handle line continuations
		if inContinuation {
			currentCmd.WriteString(" ")
			if strings.HasSuffix(trimmed, "\\") {
				currentCmd.WriteString(strings.TrimSuffix(trimmed, "\\"))
			} else {
				currentCmd.WriteString(trimmed)
				commands = append(commands, currentCmd.String())
				currentCmd.Reset()
				inContinuation = false
			}
			continue
		}

		// Parse FROM instruction
		if strings.HasPrefix(strings.ToUpper(trimmed), "FROM ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				baseImage = parts[1]
			}
			continue
		}

		upper := strings.ToUpper(trimmed)
		if strings.HasPrefix(upper, "COPY ") || strings.HasPrefix(upper, "ADD ") {
			return "", nil, fmt.Errorf("COPY and ADD instructions are not supported in sandbox images "+
				"(no local build context); use RUN with a download instead: %s", trimmed)
		}

		// Parse Dockerfile instructions the sandbox builder supports
		if strings.HasPrefix(upper, "RUN ") ||
			strings.HasPrefix(upper, "WORKDIR ") ||
			strings.HasPrefix(upper, "ENV ") ||
			strings.HasPrefix(upper, "USER ") ||
			strings.HasPrefix(upper, "EXPOSE ") ||
			strings.HasPrefix(upper, "LABEL ") {

			if strings.HasSuffix(trimmed, "\\") {
				currentCmd.WriteString(strings.TrimSuffix(trimmed, "\\"))
				inContinuation = true
			} else {
				commands = append(commands, trimmed)
			}
		}
	}

	if baseImage == "" {
		return "", nil, fmt.Errorf("no FROM instruction found in Dockerfile")
	}

	return baseImage, commands, nil
}

// Session represents a running Modal sandbox.
type Session struct {
	client    *modal.Client
	sandbox   *modal.Sandbox
	app       *modal.App
	appName   string
	startTime time.Time
	cpuCount  int
	memoryMiB int
}

// ID returns the sandbox ID.
func (s *Session) ID() string {
	return s.sandbox.SandboxID
}

// Workdir returns the in-sandbox working directory.
func (s *Session) Workdir() string {
	return runtime.DefaultWorkdir
}

// CopyTo copies a local file or directory into the sandbox.
func (s *Session) CopyTo(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	// Ensure destination directory exists via exec
	dstDir := filepath.Dir(dst)
	if dstDir != "/" && dstDir != "." {
		if _, err := s.execSimple(ctx, fmt.Sprintf("mkdir -p %q", dstDir)); err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
	}

	slog.Debug("copying to modal sandbox",
		"sandbox_id", s.sandbox.SandboxID,
		"src", src,
		"dst", dst,
		"is_dir", info.IsDir())

	if info.IsDir() {
		return s.copyDirTo(ctx, src, dst)
	}
	return s.copyFileTo(ctx, src, dst)
}

// copyFileTo copies a single file to the sandbox.
func (s *Session) copyFileTo(ctx context.Context, src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	f, err := s.sandbox.Open(ctx, dst, "w")
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing to destination: %w", err)
	}

	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing file: %w", err)
	}

	return f.Close()
}

// copyDirTo recursively copies a directory to the sandbox.
func (s *Session) copyDirTo(ctx context.Context, src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		dstPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			_, err := s.execSimple(ctx, fmt.Sprintf("mkdir -p %q", dstPath))
			return err
		}

		return s.copyFileTo(ctx, path, dstPath)
	})
}

// CopyFrom copies a file or directory from the sandbox to a local path.
func (s *Session) CopyFrom(ctx context.Context, src, dst string) error {
	slog.Debug("copying from modal sandbox",
		"sandbox_id", s.sandbox.SandboxID,
		"src", src,
		"dst", dst)

	// Check if source is a directory by trying to list it
	exitCode, _ := s.execSimple(ctx, fmt.Sprintf("test -d %q", src))
	if exitCode == 0 {
		return s.copyDirFrom(ctx, src, dst)
	}
	return s.copyFileFrom(ctx, src, dst)
}

// copyFileFrom copies a single file from the sandbox.
func (s *Session) copyFileFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	f, err := s.sandbox.Open(ctx, src, "r")
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}

	content, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	if err := os.WriteFile(dst, content, 0644); err != nil {
		return fmt.Errorf("writing destination file: %w", err)
	}

	return nil
}

// copyDirFrom recursively copies a directory from the sandbox.
func (s *Session) copyDirFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}

	// List directory contents using find command
	var stdout strings.Builder
	process, err := s.sandbox.Exec(ctx, []string{"find", src, "-maxdepth", "1", "-mindepth", "1"}, &modal.SandboxExecParams{})
	if err != nil {
		return fmt.Errorf("listing sandbox directory: %w", err)
	}

	io.Copy(&stdout, process.Stdout)
	if _, err := process.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for find: %w", err)
	}

	entries := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	for _, entry := range entries {
		if entry == "" {
			continue
		}

		baseName := filepath.Base(entry)
		dstPath := filepath.Join(dst, baseName)

		// Check if it's a directory
		exitCode, _ := s.execSimple(ctx, fmt.Sprintf("test -d %q", entry))
		if exitCode == 0 {
			if err := s.copyDirFrom(ctx, entry, dstPath); err != nil {
				return err
			}
		} else {
			if err := s.copyFileFrom(ctx, entry, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// execSimple runs a simple command and returns the exit code.
func (s *Session) execSimple(ctx context.Context, cmd string) (int, error) {
	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, &modal.SandboxExecParams{})
	if err != nil {
		return -1, err
	}
	io.Copy(io.Discard, process.Stdout)
	io.Copy(io.Discard, process.Stderr)
	return process.Wait(ctx)
}

// Exec executes a command in the sandbox.
func (s *Session) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts runtime.ExecOptions) (int, error) {
	execParams := &modal.SandboxExecParams{
		Env: opts.Env,
	}
	if opts.Timeout > 0 {
		execParams.Timeout = opts.Timeout
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = runtime.DefaultWorkdir
	}
	execParams.Workdir = workDir

	// Truncate command for logging
	cmdPreview := cmd
	if len(cmdPreview) > 100 {
		cmdPreview = cmdPreview[:100] + "..."
	}
	slog.Debug("executing command in modal sandbox",
		"sandbox_id", s.sandbox.SandboxID,
		"command", cmdPreview,
		"timeout", opts.Timeout)

	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, execParams)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	// Stream stdout and stderr concurrently
	done := make(chan struct{}, 2)

	go func() {
		if stdout != nil {
			io.Copy(stdout, process.Stdout)
		} else {
			io.Copy(io.Discard, process.Stdout)
		}
		done <- struct{}{}
	}()

	go func() {
		if stderr != nil {
			io.Copy(stderr, process.Stderr)
		} else {
			io.Copy(io.Discard, process.Stderr)
		}
		done <- struct{}{}
	}()

	// Wait for streams to be fully consumed
	<-done
	<-done

	exitCode, err := process.Wait(ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting for process: %w", err)
	}

	if exitCode != 0 {
		slog.Debug("command exited with non-zero code",
			"sandbox_id", s.sandbox.SandboxID,
			"exit_code", exitCode)
	}

	return exitCode, nil
}

// Close terminates the sandbox and cleans up all resources.
func (s *Session) Close(ctx context.Context) error {
	slog.Debug("closing modal sandbox", "sandbox_id", s.sandbox.SandboxID, "app", s.appName)

	// Terminate the sandbox first
	if err := s.sandbox.Terminate(ctx); err != nil {
		if !strings.Contains(err.Error(), "already terminated") &&
			!strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("terminating sandbox: %w", err)
		}
	}

	// Stop the Modal app to clean it up from the console.
	// The modal-go SDK doesn't expose AppStop on the public API, so we use the CLI.
	if err := s.stopApp(ctx); err != nil {
		return fmt.Errorf("stopping app: %w", err)
	}

	slog.Debug("modal sandbox closed", "sandbox_id", s.sandbox.SandboxID)
	return nil
}

// stopApp stops the Modal app using the modal CLI.
func (s *Session) stopApp(ctx context.Context) error {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return fmt.Errorf("modal CLI not found: the modal-go SDK does not expose the AppStop API, " +
			"so the CLI is required to clean up apps. Install it with: pip install modal")
	}

	cmd := exec.CommandContext(ctx, modalPath, "app", "stop", s.appName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// Ignore errors if app is already stopped or not found
		outStr := string(output)
		if strings.Contains(outStr, "already stopped") ||
			strings.Contains(outStr, "not found") ||
			strings.Contains(outStr, "Could not find") {
			return nil
		}
		return fmt.Errorf("modal app stop failed: %s", outStr)
	}
	return nil
}

// Cost returns the cost incurred by this session.
// Modal pricing (approximate, as of 2024):
// - CPU: ~$0.000463 per CPU-second
// - Memory: ~$0.000058 per GiB-second
func (s *Session) Cost() float64 {
	duration := time.Since(s.startTime).Seconds()
	cpuCost := duration * float64(s.cpuCount) * 0.000463
	memoryCost := duration * (float64(s.memoryMiB) / 1024.0) * 0.000058
	return cpuCost + memoryCost
}
