// Package domain contains the core types for stackward: service states,
// snapshots, backup archives, and health results. Following the core/shell
// split, this package performs no I/O.
package domain

import "errors"

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// ErrSnapshotCreation is returned when a snapshot cannot be captured.
	// No safe operation proceeds without one.
	ErrSnapshotCreation = errors.New("snapshot creation failed")

	// ErrSnapshotNotFound is returned when a snapshot ID does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrRestoreConflict is returned when a restore target exists with
	// different content and force was not set.
	ErrRestoreConflict = errors.New("restore target exists with different content")

	// ErrOperationInProgress is returned when a lifecycle transition or safe
	// operation is requested while another is in flight. Requests are
	// rejected, never queued.
	ErrOperationInProgress = errors.New("another operation is in progress")

	// ErrHealthCheckTimeout is returned when services do not become healthy
	// within the transition deadline.
	ErrHealthCheckTimeout = errors.New("health check deadline exceeded")

	// ErrArchiveCorrupt is returned when a backup archive fails integrity
	// validation.
	ErrArchiveCorrupt = errors.New("archive failed integrity validation")

	// ErrArchiveWrite is returned when a backup archive cannot be written.
	// A failed write leaves no artifact at the final path.
	ErrArchiveWrite = errors.New("archive write failed")

	// ErrRollbackPartial is returned when one or more compensating actions
	// failed during an unwind. This is a hard stop requiring manual
	// inspection; a failed rollback is never rolled back automatically.
	ErrRollbackPartial = errors.New("one or more rollback actions failed")

	// ErrInvalidTransition is returned when a service state transition is
	// not allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid service state transition")

	// ErrNoBaseArchive is returned when an incremental backup is requested
	// against a missing or invalid base archive.
	ErrNoBaseArchive = errors.New("base archive missing or invalid")
)
