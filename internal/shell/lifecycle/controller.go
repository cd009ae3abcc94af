// Package lifecycle implements the service lifecycle controller: guarded
// start/stop/restart/update transitions for the managed compose stack, each
// executed inside a safe operation and gated on health checks.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	corecompose "github.com/stackward/stackward/internal/core/compose"
	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/core/poll"
	"github.com/stackward/stackward/internal/shell/compose"
	"github.com/stackward/stackward/internal/shell/operation"
	"github.com/stackward/stackward/internal/shell/rollback"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// Probe is the health check surface the controller consumes.
type Probe interface {
	Check(ctx context.Context, service string) domain.HealthResult
	CheckAll(ctx context.Context) map[string]domain.HealthResult
}

// Safer executes a function under the snapshot/rollback envelope.
type Safer interface {
	Safe(ctx context.Context, name string, fn operation.Fn) error
	SafeWith(ctx context.Context, name string, opts operation.Options, fn operation.Fn) error
}

// Archiver creates pre-update backup archives. Optional; nil disables the
// automatic pre-update backup.
type Archiver interface {
	Create(ctx context.Context, t domain.BackupType, destDir, name string) (string, error)
}

// =============================================================================
// Controller
// =============================================================================

// Config holds the controller's tunables.
type Config struct {
	// PollInterval is the pause between health probe attempts while waiting
	// for a transition to settle.
	PollInterval time.Duration

	// BackupDir receives the automatic pre-update archive.
	BackupDir string
}

// Controller serializes lifecycle transitions on one service group. A
// request arriving while a transition is in flight is rejected with
// ErrOperationInProgress, never queued; compose-level operations are not
// safely composable concurrently.
type Controller struct {
	backend  compose.Backend
	probe    Probe
	exec     Safer
	archiver Archiver
	stack    *corecompose.Stack
	versions *VersionFile
	group    *domain.ServiceGroup
	cfg      Config
	logger   *slog.Logger

	busy atomic.Bool
}

// NewController wires a controller for one stack.
func NewController(backend compose.Backend, probe Probe, exec Safer, archiver Archiver, stack *corecompose.Stack, versions *VersionFile, cfg Config, logger *slog.Logger) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend:  backend,
		probe:    probe,
		exec:     exec,
		archiver: archiver,
		stack:    stack,
		versions: versions,
		group:    domain.NewServiceGroup(stack.Name),
		cfg:      cfg,
		logger:   logger.With("component", "lifecycle"),
	}
}

// Group returns the tracked service group.
func (c *Controller) Group() *domain.ServiceGroup {
	return c.group
}

// acquire claims the single transition slot.
func (c *Controller) acquire(op string) error {
	if !c.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: rejected %s", domain.ErrOperationInProgress, op)
	}
	return nil
}

func (c *Controller) release() {
	c.busy.Store(false)
}

// syncState derives the group state from a probe when no transition has set
// it yet. Each CLI invocation starts from observed reality, not a state
// file.
func (c *Controller) syncState(ctx context.Context) {
	if c.group.State != domain.StateUnknown {
		return
	}
	results := c.probe.CheckAll(ctx)
	c.group.Observe(domain.AggregateHealth(results))
	c.logger.Debug("observed service group state", "state", c.group.State)
}

// waitHealthy polls the probe until every service is healthy or the deadline
// passes.
func (c *Controller) waitHealthy(ctx context.Context, timeout time.Duration) error {
	err := poll.Wait(ctx, poll.Config{Interval: c.cfg.PollInterval, Timeout: timeout}, func(ctx context.Context) (bool, error) {
		results := c.probe.CheckAll(ctx)
		if domain.AllHealthy(results) {
			return true, nil
		}
		c.logger.Debug("waiting for services", "unhealthy", domain.UnhealthyServices(results))
		return false, nil
	})
	if errors.Is(err, poll.ErrDeadlineExceeded) {
		results := c.probe.CheckAll(ctx)
		return fmt.Errorf("%w after %s: unhealthy services %v",
			domain.ErrHealthCheckTimeout, timeout, domain.UnhealthyServices(results))
	}
	return err
}

// waitStopped polls until no service reports healthy.
func (c *Controller) waitStopped(ctx context.Context, timeout time.Duration) error {
	return poll.Wait(ctx, poll.Config{Interval: c.cfg.PollInterval, Timeout: timeout}, func(ctx context.Context) (bool, error) {
		results := c.probe.CheckAll(ctx)
		return len(domain.UnhealthyServices(results)) == len(results), nil
	})
}

// =============================================================================
// Start
// =============================================================================

// Start brings the stack from Stopped to Running, polling health up to
// timeout. Starting an already-running stack is a no-op success.
func (c *Controller) Start(ctx context.Context, timeout time.Duration) error {
	if err := c.acquire("start"); err != nil {
		return err
	}
	defer c.release()

	c.syncState(ctx)
	if c.group.State == domain.StateRunning {
		c.logger.Info("services already running, nothing to do")
		return nil
	}
	if err := c.group.Transition(domain.StateStarting); err != nil {
		return err
	}

	err := c.exec.Safe(ctx, "start", func(ctx context.Context, reg *rollback.Registry) error {
		if err := c.backend.Up(ctx); err != nil {
			return err
		}
		reg.Register("stop services started by this operation", func(ctx context.Context) error {
			return c.backend.Stop(ctx, 0)
		})
		return c.waitHealthy(ctx, timeout)
	})
	if err != nil {
		c.group.Fail(err.Error())
		return err
	}

	if err := c.group.Transition(domain.StateRunning); err != nil {
		return err
	}
	c.logger.Info("services started", "state", c.group.State)
	return nil
}

// =============================================================================
// Stop
// =============================================================================

// Stop brings the stack from Running or Degraded to Stopped. A graceful stop
// is attempted first; services still up past the timeout are killed.
func (c *Controller) Stop(ctx context.Context, timeout time.Duration) error {
	if err := c.acquire("stop"); err != nil {
		return err
	}
	defer c.release()

	c.syncState(ctx)
	if c.group.State == domain.StateStopped {
		c.logger.Info("services already stopped, nothing to do")
		return nil
	}
	if err := c.group.Transition(domain.StateStopping); err != nil {
		return err
	}

	err := c.exec.Safe(ctx, "stop", func(ctx context.Context, reg *rollback.Registry) error {
		return c.stopStack(ctx, reg, timeout)
	})
	if err != nil {
		c.group.Fail(err.Error())
		return err
	}

	if err := c.group.Transition(domain.StateStopped); err != nil {
		return err
	}
	c.logger.Info("services stopped")
	return nil
}

// stopStack performs graceful stop with forced escalation. Shared by Stop
// and Restart.
func (c *Controller) stopStack(ctx context.Context, reg *rollback.Registry, timeout time.Duration) error {
	reg.Register("bring services back up", func(ctx context.Context) error {
		return c.backend.Up(ctx)
	})

	if err := c.backend.Stop(ctx, timeout); err != nil {
		c.logger.Warn("graceful stop failed, escalating", "error", err)
		if killErr := c.backend.Kill(ctx); killErr != nil {
			return fmt.Errorf("graceful stop failed (%v) and kill failed: %w", err, killErr)
		}
	}
	if err := c.waitStopped(ctx, timeout); err != nil {
		c.logger.Warn("services still reporting healthy after stop, escalating", "error", err)
		if killErr := c.backend.Kill(ctx); killErr != nil {
			return fmt.Errorf("services did not stop and kill failed: %w", killErr)
		}
	}
	return nil
}

// =============================================================================
// Restart
// =============================================================================

// Restart stops and starts the stack as one safe operation, so a partial
// failure (stop ok, start fails) triggers a single coordinated restore
// rather than leaving a half-stopped system. The executor's snapshot is the
// one checkpoint; there is deliberately no second pre-restart copy.
func (c *Controller) Restart(ctx context.Context, timeout time.Duration) error {
	if err := c.acquire("restart"); err != nil {
		return err
	}
	defer c.release()

	c.syncState(ctx)
	if err := c.group.Transition(domain.StateRestarting); err != nil {
		return err
	}

	err := c.exec.Safe(ctx, "restart", func(ctx context.Context, reg *rollback.Registry) error {
		if err := c.stopStack(ctx, reg, timeout); err != nil {
			return err
		}
		if err := c.backend.Up(ctx); err != nil {
			return err
		}
		return c.waitHealthy(ctx, timeout)
	})
	if err != nil {
		c.group.Fail(err.Error())
		return err
	}

	if err := c.group.Transition(domain.StateRunning); err != nil {
		return err
	}
	c.logger.Info("services restarted")
	return nil
}

// =============================================================================
// Update
// =============================================================================

// UpdateOptions tune an update.
type UpdateOptions struct {
	// Services restricts the update to a subset of services.
	Services []string

	// Force updates even when the stack is degraded.
	Force bool

	// NoBackup skips the automatic pre-update archive.
	NoBackup bool
}

// Update moves the stack to newVersion: pull artifacts, stop-old/start-new
// service by service in dependency order, then gate on health. A health
// failure within timeout triggers the emergency rollback: the executor
// restores the pre-update version pin and config, and the stack is restarted
// on the prior artifacts. Update ends Running or Failed, never in between.
func (c *Controller) Update(ctx context.Context, newVersion string, timeout time.Duration, opts UpdateOptions) error {
	if err := c.acquire("update"); err != nil {
		return err
	}
	defer c.release()

	c.syncState(ctx)
	if c.group.State == domain.StateDegraded && !opts.Force {
		return fmt.Errorf("stack is degraded; refusing to update without force")
	}
	if err := c.group.Transition(domain.StateUpdating); err != nil {
		return err
	}
	previous := c.versions.Current()

	if c.archiver != nil && !opts.NoBackup {
		archivePath, err := c.archiver.Create(ctx, domain.BackupFull, c.cfg.BackupDir, "pre-update")
		if err != nil {
			c.group.Fail(err.Error())
			return fmt.Errorf("pre-update backup failed, not updating: %w", err)
		}
		c.logger.Info("pre-update backup created", "archive", archivePath)
	}

	err := c.exec.Safe(ctx, "update", func(ctx context.Context, reg *rollback.Registry) error {
		if err := c.versions.Pin(newVersion); err != nil {
			return fmt.Errorf("pin version %s: %w", newVersion, err)
		}

		targets := opts.Services
		if len(targets) == 0 {
			targets = c.stack.UpdateOrder()
		}

		if err := c.backend.Pull(ctx, targets...); err != nil {
			return fmt.Errorf("pull artifacts: %w", err)
		}

		// Stop-old/start-new one service at a time, dependencies first, so
		// combined downtime stays minimal.
		for _, svc := range targets {
			c.logger.Info("updating service", "service", svc, "version", newVersion)
			if err := c.backend.Stop(ctx, timeout, svc); err != nil {
				return fmt.Errorf("stop %s: %w", svc, err)
			}
			if err := c.backend.Up(ctx, svc); err != nil {
				return fmt.Errorf("start %s: %w", svc, err)
			}
		}

		return c.waitHealthy(ctx, timeout)
	})
	if err != nil {
		// The executor has restored the pre-update version pin and config;
		// emergency rollback restarts the stack on the prior artifacts.
		c.logger.Error("update failed, restarting on previous version",
			"error", err,
			"previous_version", previous,
		)
		if rbErr := c.emergencyRestart(ctx, timeout); rbErr != nil {
			c.logger.Error("emergency restart failed", "error", rbErr)
		}
		c.group.Fail(err.Error())
		return err
	}

	if err := c.group.Transition(domain.StateRunning); err != nil {
		return err
	}
	c.logger.Info("update complete", "version", newVersion)
	return nil
}

// emergencyRestart brings the stack back up after a failed update, outside
// any safe operation: the snapshot restore already happened and must not be
// rolled back again.
func (c *Controller) emergencyRestart(ctx context.Context, timeout time.Duration) error {
	if err := c.backend.Up(ctx); err != nil {
		return err
	}
	return c.waitHealthy(ctx, timeout)
}

// =============================================================================
// Status
// =============================================================================

// Status is the observed state of the stack.
type Status struct {
	Group   domain.ServiceGroup            `json:"group"`
	Version string                         `json:"version,omitempty"`
	Health  map[string]domain.HealthResult `json:"health"`
}

// Status reports the group state, pinned version, and per-service health.
// Read-only; allowed while a transition is in flight.
func (c *Controller) Status(ctx context.Context) Status {
	results := c.probe.CheckAll(ctx)
	if c.group.State == domain.StateUnknown {
		c.group.Observe(domain.AggregateHealth(results))
	}
	g := *c.group
	g.Version = c.versions.Current()
	return Status{
		Group:   g,
		Version: g.Version,
		Health:  results,
	}
}
