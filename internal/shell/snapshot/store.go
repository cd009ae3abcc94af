// Package snapshot implements the on-disk snapshot store: point-in-time
// capture and restore of mutable state paths, with retention. Snapshots are
// the safety net under safe operations; durable user-facing backups live in
// the backup engine.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/core/manifest"
	"github.com/stackward/stackward/internal/shell/fsutil"
)

const filesDirName = "files"

// =============================================================================
// Store
// =============================================================================

// Store captures and restores named, versioned copies of filesystem paths.
// At most one snapshot is created at a time.
type Store struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore creates a snapshot store rooted at dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %v", domain.ErrSnapshotCreation, err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "snapshot_store"),
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the directory a snapshot is (or would be) stored in. The path
// is reported to the operator on failure for manual recovery.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// =============================================================================
// Create
// =============================================================================

// Create captures each existing path (file or directory) into a new snapshot
// directory and writes the metadata record and integrity manifest. Missing
// source paths are skipped, not errors; the operation being protected may
// legitimately create them. Fails only on I/O error.
func (s *Store) Create(ctx context.Context, operationName string, paths []string, includeSystemInfo bool) (*domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := domain.NewSnapshotID(now)
	snapDir := s.Path(id)
	filesDir := filepath.Join(snapDir, filesDirName)

	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSnapshotCreation, err)
	}

	cleanup := func() {
		if rmErr := os.RemoveAll(snapDir); rmErr != nil {
			s.logger.Warn("failed to remove partial snapshot", "id", id, "error", rmErr)
		}
	}

	rec := &record{
		ID:            id,
		OperationName: operationName,
		CreatedAt:     now,
	}
	if includeSystemInfo {
		rec.System = systemInfo(now)
	}

	for i, src := range paths {
		info, err := os.Stat(src)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("skipping missing path", "snapshot_id", id, "path", src)
			continue
		}
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: stat %s: %v", domain.ErrSnapshotCreation, src, err)
		}

		stored := filepath.Join(filesDirName, fmt.Sprintf("%d", i))
		kind := "file"
		if info.IsDir() {
			kind = "directory"
		}
		if err := fsutil.CopyPath(src, filepath.Join(snapDir, stored)); err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: capture %s: %v", domain.ErrSnapshotCreation, src, err)
		}
		rec.Paths = append(rec.Paths, pathRecord{Source: src, Stored: stored, Kind: kind})
	}

	entries, err := fsutil.BuildManifest(ctx, filesDir, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: build manifest: %v", domain.ErrSnapshotCreation, err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, manifest.FileName), []byte(manifest.Format(entries)), 0o644); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: write manifest: %v", domain.ErrSnapshotCreation, err)
	}
	if err := writeRecord(filepath.Join(snapDir, metadataFileName), rec); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: write metadata: %v", domain.ErrSnapshotCreation, err)
	}

	s.logger.Info("snapshot created",
		"id", id,
		"operation", operationName,
		"paths", len(rec.Paths),
	)
	return rec.snapshot(), nil
}

// =============================================================================
// Restore
// =============================================================================

// RestoreOptions control how captured content is written back.
type RestoreOptions struct {
	// TargetOverride relocates restored paths under an alternate root
	// instead of their original locations.
	TargetOverride string

	// Force overwrites targets that exist with different content. Without
	// it, differing targets are skipped and reported as conflicts.
	Force bool
}

// RestoreReport summarizes a restore.
type RestoreReport struct {
	Restored  []string
	Unchanged []string
	Conflicts []string
}

// Restore copies captured content back to its original (or overridden)
// locations. Files identical to the captured copy are left alone; files that
// differ are overwritten only under Force, otherwise skipped with a warning
// and reported via ErrRestoreConflict.
func (s *Store) Restore(ctx context.Context, id string, opts RestoreOptions) (*RestoreReport, error) {
	rec, err := s.read(id)
	if err != nil {
		return nil, err
	}

	report := &RestoreReport{}
	for _, p := range rec.Paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		stored := filepath.Join(s.Path(id), p.Stored)
		target := s.resolveTarget(p.Source, opts.TargetOverride)

		switch p.Kind {
		case "directory":
			err = s.restoreTree(stored, target, opts.Force, report)
		default:
			err = s.restoreFile(stored, target, opts.Force, report)
		}
		if err != nil {
			return report, fmt.Errorf("restore %s: %w", p.Source, err)
		}
	}

	s.logger.Info("snapshot restored",
		"id", id,
		"restored", len(report.Restored),
		"unchanged", len(report.Unchanged),
		"conflicts", len(report.Conflicts),
	)
	if len(report.Conflicts) > 0 {
		return report, fmt.Errorf("%w: %d path(s) skipped", domain.ErrRestoreConflict, len(report.Conflicts))
	}
	return report, nil
}

func (s *Store) resolveTarget(source, override string) string {
	if override == "" {
		return source
	}
	rel := strings.TrimPrefix(filepath.ToSlash(source), "/")
	return filepath.Join(override, filepath.FromSlash(rel))
}

func (s *Store) restoreTree(storedDir, targetDir string, force bool, report *RestoreReport) error {
	return filepath.WalkDir(storedDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(storedDir, path)
		if err != nil {
			return err
		}
		return s.restoreFile(path, filepath.Join(targetDir, rel), force, report)
	})
}

func (s *Store) restoreFile(stored, target string, force bool, report *RestoreReport) error {
	_, err := os.Stat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := fsutil.CopyFile(stored, target); err != nil {
			return err
		}
		report.Restored = append(report.Restored, target)
		return nil
	case err != nil:
		return err
	}

	equal, err := fsutil.FilesEqual(stored, target)
	if err != nil {
		return err
	}
	if equal {
		report.Unchanged = append(report.Unchanged, target)
		return nil
	}
	if !force {
		s.logger.Warn("restore target differs, skipping (use force to overwrite)", "target", target)
		report.Conflicts = append(report.Conflicts, target)
		return nil
	}
	if err := fsutil.CopyFile(stored, target); err != nil {
		return err
	}
	report.Restored = append(report.Restored, target)
	return nil
}

// =============================================================================
// List, Verify, Prune
// =============================================================================

// List returns summaries of all snapshots, newest first.
func (s *Store) List() ([]domain.SnapshotSummary, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var summaries []domain.SnapshotSummary
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		rec, err := s.read(de.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "id", de.Name(), "error", err)
			continue
		}
		summaries = append(summaries, domain.SnapshotSummary{
			ID:            rec.ID,
			OperationName: rec.OperationName,
			CreatedAt:     rec.CreatedAt,
			PathCount:     len(rec.Paths),
			SizeBytes:     fsutil.TreeSize(filepath.Join(s.Path(rec.ID), filesDirName)),
		})
	}
	domain.SortSummariesNewestFirst(summaries)
	return summaries, nil
}

// Verify checks a snapshot's captured files against its integrity manifest.
func (s *Store) Verify(ctx context.Context, id string) ([]string, error) {
	if _, err := s.read(id); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Path(id), manifest.FileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no manifest", domain.ErrSnapshotNotFound, id)
	}
	defer f.Close()

	entries, err := manifest.Parse(f)
	if err != nil {
		return nil, err
	}
	return fsutil.VerifyTree(ctx, filepath.Join(s.Path(id), filesDirName), entries), nil
}

// Prune deletes the oldest snapshots beyond maxKeep, oldest first. The
// single most recent snapshot is never deleted. Returns the deleted IDs.
func (s *Store) Prune(maxKeep int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries, err := s.List()
	if err != nil {
		return nil, err
	}

	doomed := domain.PruneSelection(summaries, maxKeep)
	var deleted []string
	for _, id := range doomed {
		if err := os.RemoveAll(s.Path(id)); err != nil {
			return deleted, fmt.Errorf("prune snapshot %s: %w", id, err)
		}
		s.logger.Info("snapshot pruned", "id", id)
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (s *Store) read(id string) (*record, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return nil, fmt.Errorf("%w: %q", domain.ErrSnapshotNotFound, id)
	}
	rec, err := readRecord(filepath.Join(s.Path(id), metadataFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
