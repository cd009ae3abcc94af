// Package journal persists one row per safe operation in a local SQLite
// database, so every failure report ("what was attempted, did rollback run,
// where is the snapshot") survives the process. The journal is best-effort
// bookkeeping: its errors are logged by callers, never fatal to the
// operation itself.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stackward/stackward/internal/shell/operation"
	"github.com/stackward/stackward/internal/shell/rollback"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Journal
// =============================================================================

// Entry is one recorded operation.
type Entry struct {
	ID              int64      `db:"id"`
	Name            string     `db:"name"`
	SnapshotID      string     `db:"snapshot_id"`
	StartedAt       time.Time  `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
	Outcome         string     `db:"outcome"`
	Error           string     `db:"error"`
	UnwindAttempted int        `db:"unwind_attempted"`
	UnwindSucceeded int        `db:"unwind_succeeded"`
	UnwindFailed    int        `db:"unwind_failed"`
}

// Journal is the SQLite-backed operation log.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database and runs migrations.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
	}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// Recording
// =============================================================================

// Begin records the start of an operation and returns its row ID.
func (j *Journal) Begin(ctx context.Context, name, snapshotID string) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO operations (name, snapshot_id, started_at, outcome) VALUES (?, ?, ?, ?)`,
		name, snapshotID, time.Now().UTC(), operation.OutcomeRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Finish records an operation's outcome and rollback report.
func (j *Journal) Finish(ctx context.Context, opID int64, outcome string, opErr error, unwind *rollback.Report) error {
	errText := ""
	if opErr != nil {
		errText = opErr.Error()
	}
	attempted, succeeded, failed := 0, 0, 0
	if unwind != nil {
		attempted = unwind.Attempted
		succeeded = unwind.Succeeded
		failed = len(unwind.Failed)
	}

	_, err := j.db.ExecContext(ctx,
		`UPDATE operations
		 SET finished_at = ?, outcome = ?, error = ?,
		     unwind_attempted = ?, unwind_succeeded = ?, unwind_failed = ?
		 WHERE id = ?`,
		time.Now().UTC(), outcome, errText, attempted, succeeded, failed, opID,
	)
	return err
}

// =============================================================================
// Queries and Reconciliation
// =============================================================================

// Recent returns the most recent entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries,
		`SELECT * FROM operations ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	return entries, err
}

// Unfinished returns operations that never recorded an outcome: the trail of
// a previous invocation that was killed mid-operation.
func (j *Journal) Unfinished(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := j.db.SelectContext(ctx, &entries,
		`SELECT * FROM operations WHERE outcome = ? ORDER BY started_at ASC`,
		operation.OutcomeRunning)
	return entries, err
}

// Reconcile marks every unfinished operation as interrupted and returns
// them. An interrupted operation is treated as a failure: its snapshot is
// still on disk, and the operator is pointed at it before anything new runs.
func (j *Journal) Reconcile(ctx context.Context) ([]Entry, error) {
	stale, err := j.Unfinished(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range stale {
		if _, err := j.db.ExecContext(ctx,
			`UPDATE operations SET finished_at = ?, outcome = ? WHERE id = ?`,
			time.Now().UTC(), operation.OutcomeInterrupted, entry.ID,
		); err != nil {
			return stale, err
		}
		j.logger.Warn("previous invocation was interrupted mid-operation",
			"operation", entry.Name,
			"started_at", entry.StartedAt,
			"snapshot_id", entry.SnapshotID,
		)
	}
	return stale, nil
}
