package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	corecompose "github.com/stackward/stackward/internal/core/compose"
	"github.com/stackward/stackward/internal/shell/backup"
	"github.com/stackward/stackward/internal/shell/compose"
	"github.com/stackward/stackward/internal/shell/journal"
	"github.com/stackward/stackward/internal/shell/lifecycle"
	"github.com/stackward/stackward/internal/shell/lock"
	"github.com/stackward/stackward/internal/shell/operation"
	"github.com/stackward/stackward/internal/shell/snapshot"
)

// =============================================================================
// App Wiring
// =============================================================================

// app holds the assembled components behind one CLI invocation. Docker-facing
// pieces are built lazily: snapshot and archive verbs must work even when the
// daemon is unreachable.
type app struct {
	cfg    *Config
	logger *slog.Logger

	store   *snapshot.Store
	journal *journal.Journal
	exec    *operation.Executor
	engine  *backup.Engine

	lock *lock.Lock
}

// newApp assembles the daemon-independent components. The journal is
// best-effort: if it cannot be opened the invocation proceeds without it.
func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	store, err := snapshot.NewStore(cfg.Snapshots.Dir, logger)
	if err != nil {
		return nil, err
	}

	jnl, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		logger.Warn("operation journal unavailable, continuing without it",
			"path", cfg.Journal.Path, "error", err)
		jnl = nil
	}

	var recorder operation.Recorder
	if jnl != nil {
		recorder = jnl
	}
	exec := operation.NewExecutor(store, recorder, cfg.ProtectedPaths(), cfg.Snapshots.Retention, logger)

	engine := backup.NewEngine(backup.Config{
		Paths: backup.PathSet{
			Config: cfg.Paths.Config,
			Data:   cfg.Paths.Data,
			SSL:    cfg.Paths.SSL,
		},
		WorkDir:       cfg.Backups.WorkDir,
		MaxConcurrent: cfg.Backups.MaxConcurrent,
	}, exec, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		journal: jnl,
		exec:    exec,
		engine:  engine,
	}, nil
}

// acquireLock claims the invocation lock for mutating verbs, then reconciles
// the journal so any trail left by an interrupted invocation is surfaced
// before new work starts.
func (a *app) acquireLock(ctx context.Context) error {
	l, reclaimed, err := lock.Acquire(a.cfg.Lock.File, a.logger)
	if err != nil {
		return err
	}
	a.lock = l

	if a.journal != nil {
		stale, err := a.journal.Reconcile(ctx)
		if err != nil {
			a.logger.Warn("journal reconciliation failed", "error", err)
		}
		for _, entry := range stale {
			fmt.Fprintf(os.Stderr, "warning: operation %q was interrupted; snapshot %s is at %s\n",
				entry.Name, entry.SnapshotID, a.store.Path(entry.SnapshotID))
		}
	} else if reclaimed {
		a.logger.Warn("previous invocation died mid-operation and no journal is available")
	}
	return nil
}

// close releases the lock and journal.
func (a *app) close() {
	if a.lock != nil {
		if err := a.lock.Release(); err != nil {
			a.logger.Warn("failed to release lock", "error", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("failed to close journal", "error", err)
		}
	}
}

// controller builds the lifecycle controller, parsing the compose file and
// connecting to the Docker daemon. Only lifecycle verbs pay this cost.
func (a *app) controller() (*lifecycle.Controller, error) {
	content, err := os.ReadFile(a.cfg.Stack.ComposeFile)
	if err != nil {
		return nil, fmt.Errorf("read compose file: %w", err)
	}
	stack, err := corecompose.Parse(string(content), a.cfg.Stack.Project)
	if err != nil {
		return nil, err
	}

	backend, err := compose.NewCLIBackend(nil, a.cfg.Stack.ComposeFile, a.cfg.Stack.Project, a.logger)
	if err != nil {
		return nil, err
	}
	probe, err := compose.NewDockerProbe(a.cfg.Docker.Host, a.cfg.Stack.Project, stack.ServiceNames(), a.logger)
	if err != nil {
		return nil, err
	}
	versions := lifecycle.NewVersionFile(a.cfg.Stack.EnvFile, a.cfg.Stack.VersionKey)

	return lifecycle.NewController(backend, probe, a.exec, a.engine, stack, versions, lifecycle.Config{
		PollInterval: a.cfg.Timeouts.PollInterval,
		BackupDir:    a.cfg.Backups.Dir,
	}, a.logger), nil
}
