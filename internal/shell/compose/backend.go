// Package compose is the orchestration backend adapter. Lifecycle commands
// go through the docker compose CLI as plain process calls; health is probed
// through the Docker API. Command output is treated as opaque except for a
// small set of literal health markers.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrCommandFailed is returned when a compose process exits non-zero.
var ErrCommandFailed = errors.New("compose command failed")

// =============================================================================
// Backend Interface
// =============================================================================

// Backend is the orchestration surface the lifecycle controller consumes.
// Absence of a backend is a constructor-time configuration error, never a
// runtime capability probe.
type Backend interface {
	// Up creates and starts services (all when none are named).
	Up(ctx context.Context, services ...string) error
	// Stop gracefully stops services within timeout.
	Stop(ctx context.Context, timeout time.Duration, services ...string) error
	// Kill forcibly terminates services.
	Kill(ctx context.Context, services ...string) error
	// Restart restarts services within timeout.
	Restart(ctx context.Context, timeout time.Duration, services ...string) error
	// Pull fetches service images.
	Pull(ctx context.Context, services ...string) error
	// Ps returns the raw process listing for display.
	Ps(ctx context.Context) (string, error)
}

// Runner executes one external process and returns its combined output.
// It exists as a seam for tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

// Run blocks until the process exits and returns combined stdout/stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// =============================================================================
// CLI Backend
// =============================================================================

// CLIBackend drives `docker compose` for one compose file and project.
type CLIBackend struct {
	runner      Runner
	binary      string
	composeFile string
	project     string
	logger      *slog.Logger
}

// NewCLIBackend creates a compose CLI backend. composeFile is required;
// project defaults to compose's own directory-based naming when empty.
func NewCLIBackend(runner Runner, composeFile, project string, logger *slog.Logger) (*CLIBackend, error) {
	if composeFile == "" {
		return nil, errors.New("compose file path is required")
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIBackend{
		runner:      runner,
		binary:      "docker",
		composeFile: composeFile,
		project:     project,
		logger:      logger.With("component", "compose_backend"),
	}, nil
}

func (b *CLIBackend) args(sub ...string) []string {
	args := []string{"compose", "-f", b.composeFile}
	if b.project != "" {
		args = append(args, "-p", b.project)
	}
	return append(args, sub...)
}

func (b *CLIBackend) run(ctx context.Context, sub ...string) (string, error) {
	args := b.args(sub...)
	b.logger.Debug("running compose command", "args", strings.Join(args, " "))

	out, err := b.runner.Run(ctx, b.binary, args...)
	if err != nil {
		return out, fmt.Errorf("%w: %s %s: %v: %s",
			ErrCommandFailed, b.binary, strings.Join(args, " "), err, strings.TrimSpace(out))
	}
	return out, nil
}

// Up implements Backend.
func (b *CLIBackend) Up(ctx context.Context, services ...string) error {
	_, err := b.run(ctx, append([]string{"up", "-d", "--remove-orphans"}, services...)...)
	return err
}

// Stop implements Backend.
func (b *CLIBackend) Stop(ctx context.Context, timeout time.Duration, services ...string) error {
	sub := []string{"stop"}
	if timeout > 0 {
		sub = append(sub, "-t", strconv.Itoa(int(timeout.Seconds())))
	}
	_, err := b.run(ctx, append(sub, services...)...)
	return err
}

// Kill implements Backend.
func (b *CLIBackend) Kill(ctx context.Context, services ...string) error {
	_, err := b.run(ctx, append([]string{"kill"}, services...)...)
	return err
}

// Restart implements Backend.
func (b *CLIBackend) Restart(ctx context.Context, timeout time.Duration, services ...string) error {
	sub := []string{"restart"}
	if timeout > 0 {
		sub = append(sub, "-t", strconv.Itoa(int(timeout.Seconds())))
	}
	_, err := b.run(ctx, append(sub, services...)...)
	return err
}

// Pull implements Backend.
func (b *CLIBackend) Pull(ctx context.Context, services ...string) error {
	_, err := b.run(ctx, append([]string{"pull"}, services...)...)
	return err
}

// Ps implements Backend.
func (b *CLIBackend) Ps(ctx context.Context) (string, error) {
	return b.run(ctx, "ps", "--all")
}
