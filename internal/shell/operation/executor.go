// Package operation implements the safe operation executor: the single
// rollback boundary in the system. Every risky mutation runs inside
// Executor.Safe, wrapped by a pre-snapshot and an operation-scoped rollback
// registry. Operation bodies are straight-line code that completes or
// returns an error; they carry no revert logic of their own.
package operation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/shell/rollback"
	"github.com/stackward/stackward/internal/shell/snapshot"
)

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// SnapshotStore is the slice of the snapshot store the executor needs.
type SnapshotStore interface {
	Create(ctx context.Context, operationName string, paths []string, includeSystemInfo bool) (*domain.Snapshot, error)
	Restore(ctx context.Context, id string, opts snapshot.RestoreOptions) (*snapshot.RestoreReport, error)
	Prune(maxKeep int) ([]string, error)
	Path(id string) string
}

// Recorder persists operation outcomes for later inspection. A nil recorder
// disables journaling; journal failures never fail the operation.
type Recorder interface {
	Begin(ctx context.Context, name, snapshotID string) (int64, error)
	Finish(ctx context.Context, opID int64, outcome string, opErr error, unwind *rollback.Report) error
}

// Recorded outcomes. Running and interrupted are written by the recorder
// itself: every operation begins as running, and reconciliation marks rows
// that never finished as interrupted.
const (
	OutcomeRunning     = "running"
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// =============================================================================
// Executor
// =============================================================================

// Executor wraps operations with pre-snapshot, execution, and
// rollback-on-failure.
type Executor struct {
	snapshots SnapshotStore
	journal   Recorder
	paths     []string // default protected path set
	retention int      // snapshots kept after a successful capture
	logger    *slog.Logger
}

// NewExecutor creates an executor. paths is the default set of state paths
// captured before each operation; retention bounds how many snapshots are
// kept (the newest is always retained).
func NewExecutor(snapshots SnapshotStore, journal Recorder, paths []string, retention int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if retention < 1 {
		retention = 3
	}
	return &Executor{
		snapshots: snapshots,
		journal:   journal,
		paths:     paths,
		retention: retention,
		logger:    logger.With("component", "executor"),
	}
}

// Options tune a single safe operation.
type Options struct {
	// Paths overrides the executor's default protected path set.
	Paths []string

	// SkipSnapshot runs the operation without a safety net. Explicit opt-out
	// only; the default is to fail fast when capture fails.
	SkipSnapshot bool
}

// Fn is a safe operation body. It registers compensations on reg for side
// effects outside the snapshot's path set as it performs them.
type Fn func(ctx context.Context, reg *rollback.Registry) error

// Safe runs fn under the default options.
func (e *Executor) Safe(ctx context.Context, name string, fn Fn) error {
	return e.SafeWith(ctx, name, Options{}, fn)
}

// SafeWith captures a snapshot, runs fn, and on failure unwinds the rollback
// registry and restores the snapshot. On success the snapshot is retained
// (subject to retention pruning) for forensic use.
func (e *Executor) SafeWith(ctx context.Context, name string, opts Options, fn Fn) error {
	paths := e.paths
	if opts.Paths != nil {
		paths = opts.Paths
	}

	var (
		snap *domain.Snapshot
		err  error
	)
	if opts.SkipSnapshot {
		e.logger.Warn("running operation without snapshot", "operation", name)
	} else {
		snap, err = e.snapshots.Create(ctx, name, paths, true)
		if err != nil {
			// No safety net, no operation.
			return fmt.Errorf("operation %s aborted: %w", name, err)
		}
		if _, pruneErr := e.snapshots.Prune(e.retention); pruneErr != nil {
			e.logger.Warn("snapshot pruning failed", "error", pruneErr)
		}
	}

	snapshotID := ""
	if snap != nil {
		snapshotID = snap.ID
	}
	opID := e.begin(ctx, name, snapshotID)

	reg := rollback.NewRegistry(e.logger)
	e.logger.Info("safe operation started", "operation", name, "snapshot_id", snapshotID)

	if opErr := fn(ctx, reg); opErr != nil {
		return e.fail(ctx, name, opID, snap, reg, opErr)
	}

	reg.Clear()
	e.finish(ctx, opID, OutcomeSuccess, nil, nil)
	e.logger.Info("safe operation succeeded", "operation", name, "snapshot_id", snapshotID)
	return nil
}

// fail unwinds the registry, restores the snapshot, and surfaces everything.
// Both layers run even if one fails.
func (e *Executor) fail(ctx context.Context, name string, opID int64, snap *domain.Snapshot, reg *rollback.Registry, opErr error) error {
	e.logger.Error("safe operation failed, rolling back",
		"operation", name,
		"error", opErr,
		"rollback_actions", reg.Len(),
	)

	report := reg.Unwind(ctx)

	opFailure := &Error{
		Name:   name,
		Err:    opErr,
		Unwind: report,
	}
	if snap != nil {
		opFailure.SnapshotID = snap.ID
		opFailure.SnapshotPath = e.snapshots.Path(snap.ID)
		if _, restoreErr := e.snapshots.Restore(ctx, snap.ID, snapshot.RestoreOptions{Force: true}); restoreErr != nil {
			e.logger.Error("snapshot restore failed during rollback",
				"operation", name,
				"snapshot_id", snap.ID,
				"error", restoreErr,
			)
			opFailure.RestoreErr = restoreErr
		}
	}

	e.finish(ctx, opID, OutcomeFailed, opErr, report)
	return opFailure
}

func (e *Executor) begin(ctx context.Context, name, snapshotID string) int64 {
	if e.journal == nil {
		return 0
	}
	opID, err := e.journal.Begin(ctx, name, snapshotID)
	if err != nil {
		e.logger.Warn("journal begin failed", "operation", name, "error", err)
		return 0
	}
	return opID
}

func (e *Executor) finish(ctx context.Context, opID int64, outcome string, opErr error, report *rollback.Report) {
	if e.journal == nil || opID == 0 {
		return
	}
	if err := e.journal.Finish(ctx, opID, outcome, opErr, report); err != nil {
		e.logger.Warn("journal finish failed", "error", err)
	}
}
