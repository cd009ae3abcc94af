// Package backup implements the durable backup/restore engine: user-facing
// tar.gz archives (full, partial, incremental) built on the same capture
// primitives as snapshots but aimed at long-term retention and disaster
// recovery. An archive is never observable partially written: content is
// staged, validated, and atomically published; failure is detected by the
// absence of the final artifact, never by inspecting a corrupt one.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/core/manifest"
	"github.com/stackward/stackward/internal/shell/fsutil"
	"github.com/stackward/stackward/internal/shell/operation"
	"github.com/stackward/stackward/internal/shell/rollback"
)

// =============================================================================
// Path Sets
// =============================================================================

// PathSet maps backup types to the absolute paths they cover.
type PathSet struct {
	Config []string
	Data   []string
	SSL    []string
}

// For returns the paths a backup type gathers. Full covers everything.
func (p PathSet) For(t domain.BackupType) []string {
	switch t {
	case domain.BackupConfig:
		return p.Config
	case domain.BackupData:
		return p.Data
	case domain.BackupSSL:
		return p.SSL
	default:
		all := make([]string, 0, len(p.Config)+len(p.Data)+len(p.SSL))
		all = append(all, p.Config...)
		all = append(all, p.Data...)
		all = append(all, p.SSL...)
		return all
	}
}

// =============================================================================
// Engine
// =============================================================================

// Safer wraps a restore in the snapshot/rollback envelope.
type Safer interface {
	SafeWith(ctx context.Context, name string, opts operation.Options, fn operation.Fn) error
}

// Config holds the engine's tunables.
type Config struct {
	// Paths maps backup types to source paths.
	Paths PathSet

	// WorkDir hosts staging directories. Empty uses the OS temp dir.
	WorkDir string

	// MaxConcurrent bounds parallel checksum work during staging.
	MaxConcurrent int
}

// Engine creates, validates, and restores backup archives.
type Engine struct {
	cfg    Config
	safer  Safer
	logger *slog.Logger
}

// NewEngine creates a backup engine. safer is optional; without it restores
// run without the snapshot envelope.
func NewEngine(cfg Config, safer Safer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		safer:  safer,
		logger: logger.With("component", "backup_engine"),
	}
}

// =============================================================================
// Create
// =============================================================================

// Create gathers the files for a backup type, stages them, and atomically
// publishes a validated tar.gz into destDir. Returns the final archive path.
func (e *Engine) Create(ctx context.Context, t domain.BackupType, destDir, name string) (string, error) {
	if t == domain.BackupIncremental {
		return "", fmt.Errorf("%w: incremental backups need a base, use CreateIncremental", domain.ErrArchiveWrite)
	}

	now := time.Now().UTC()
	meta := &archiveMeta{
		ID:        uuid.New().String(),
		Type:      t,
		CreatedAt: now,
	}

	stagingDir, entries, err := e.stage(ctx, e.cfg.Paths.For(t))
	if err != nil {
		return "", fmt.Errorf("%w: staging: %v", domain.ErrArchiveWrite, err)
	}
	defer os.RemoveAll(stagingDir)

	return e.publish(ctx, destDir, domain.ArchiveFileName(t, name, now), stagingDir, meta, entries)
}

// CreateIncremental archives only the paths whose content differs from the
// base archive's manifest. When the base is missing or invalid it falls back
// to a full backup.
func (e *Engine) CreateIncremental(ctx context.Context, baseArchive, destDir string) (string, error) {
	base, reasons, err := e.inspect(ctx, baseArchive)
	if err != nil || len(reasons) > 0 || base.Meta == nil {
		e.logger.Warn("base archive unusable, falling back to full backup",
			"base", baseArchive,
			"error", err,
			"reasons", strings.Join(reasons, "; "),
		)
		return e.Create(ctx, domain.BackupFull, destDir, "")
	}

	now := time.Now().UTC()
	stagingDir, entries, err := e.stage(ctx, e.cfg.Paths.For(domain.BackupFull))
	if err != nil {
		return "", fmt.Errorf("%w: staging: %v", domain.ErrArchiveWrite, err)
	}
	defer os.RemoveAll(stagingDir)

	changed := manifest.Diff(base.Entries, entries)
	e.logger.Info("incremental backup computed",
		"base", filepath.Base(baseArchive),
		"total", len(entries),
		"changed", len(changed),
	)

	meta := &archiveMeta{
		ID:          uuid.New().String(),
		Type:        domain.BackupIncremental,
		CreatedAt:   now,
		BaseArchive: filepath.Base(baseArchive),
	}
	return e.publish(ctx, destDir, domain.ArchiveFileName(domain.BackupIncremental, "", now), stagingDir, meta, changed)
}

// stage copies every existing source path into a fresh staging directory,
// keyed by its absolute path with the leading slash stripped, and builds the
// manifest over the staged tree.
func (e *Engine) stage(ctx context.Context, sources []string) (string, []manifest.Entry, error) {
	stagingDir, err := os.MkdirTemp(e.cfg.WorkDir, "stackward-stage-")
	if err != nil {
		return "", nil, err
	}

	for _, src := range sources {
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			e.logger.Debug("skipping missing backup source", "path", src)
			continue
		} else if err != nil {
			os.RemoveAll(stagingDir)
			return "", nil, err
		}
		staged := filepath.Join(stagingDir, filepath.FromSlash(relKey(src)))
		if err := fsutil.CopyPath(src, staged); err != nil {
			os.RemoveAll(stagingDir)
			return "", nil, fmt.Errorf("stage %s: %w", src, err)
		}
	}

	entries, err := fsutil.BuildManifest(ctx, stagingDir, e.cfg.MaxConcurrent)
	if err != nil {
		os.RemoveAll(stagingDir)
		return "", nil, err
	}
	return stagingDir, entries, nil
}

// relKey turns an absolute source path into the archive-relative key.
func relKey(src string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(src)), "/")
}

// publish writes the archive to a hidden temporary name in destDir,
// validates it, and only then renames it into place. On any failure the
// temporary file is removed and nothing appears at the final path.
func (e *Engine) publish(ctx context.Context, destDir, filename, stagingDir string, meta *archiveMeta, entries []manifest.Entry) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveWrite, err)
	}

	tmpPath := filepath.Join(destDir, "."+filename+".partial")
	finalPath := filepath.Join(destDir, filename)

	if err := writeArchive(tmpPath, stagingDir, meta, entries); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %v", domain.ErrArchiveWrite, err)
	}

	// The archive is advertised as restorable only after a separate
	// validation pass confirms it.
	if ok, reasons := e.Validate(ctx, tmpPath); !ok {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: fresh archive failed validation: %s",
			domain.ErrArchiveCorrupt, strings.Join(reasons, "; "))
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: publish: %v", domain.ErrArchiveWrite, err)
	}

	e.logger.Info("archive published",
		"path", finalPath,
		"type", meta.Type,
		"files", len(entries),
	)
	return finalPath, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks that an archive is readable, decompressible, and that
// every manifest entry's checksum matches the archived content. Files
// present but absent from the manifest are also reported.
func (e *Engine) Validate(ctx context.Context, archivePath string) (bool, []string) {
	_, reasons, err := e.inspect(ctx, archivePath)
	if err != nil {
		return false, []string{err.Error()}
	}
	return len(reasons) == 0, reasons
}

// inspect scans an archive and collects integrity findings. The returned
// error covers unreadability; reasons cover structural and checksum
// mismatches.
func (e *Engine) inspect(_ context.Context, archivePath string) (*archiveContents, []string, error) {
	contents, err := scanArchive(archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("unreadable archive %s: %w", archivePath, err)
	}

	var reasons []string
	if contents.Meta == nil {
		reasons = append(reasons, "missing metadata record")
	}
	if !contents.ManifestFound {
		reasons = append(reasons, "missing manifest")
	}

	seen := make(map[string]bool, len(contents.Entries))
	for _, entry := range contents.Entries {
		seen[entry.Path] = true
		digest, ok := contents.Digests[entry.Path]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: listed in manifest but missing", entry.Path))
			continue
		}
		if digest.Size != entry.Size {
			reasons = append(reasons, fmt.Sprintf("%s: size %d, manifest says %d", entry.Path, digest.Size, entry.Size))
			continue
		}
		if digest.Checksum != entry.Checksum {
			reasons = append(reasons, fmt.Sprintf("%s: checksum mismatch", entry.Path))
		}
	}
	for path := range contents.Digests {
		if !seen[path] {
			reasons = append(reasons, fmt.Sprintf("%s: present but not in manifest", path))
		}
	}
	return contents, reasons, nil
}

// =============================================================================
// Restore
// =============================================================================

// RestoreOptions control a restore.
type RestoreOptions struct {
	// Scope restricts restored paths to those covered by one backup type.
	// Zero or full restores everything in the archive.
	Scope domain.BackupType

	// VerifyOnly validates the archive without touching the live tree.
	VerifyOnly bool

	// TargetRoot relocates restored paths under an alternate root. Default
	// is the filesystem root, i.e. original locations.
	TargetRoot string

	// Safe wraps the apply step in a safe operation so a failed restore
	// rolls back to the pre-restore snapshot. Requires an engine built with
	// a Safer.
	Safe bool
}

// Restore validates an archive and applies its content. Incremental
// archives restore their base first, then overlay the changed files.
func (e *Engine) Restore(ctx context.Context, archivePath string, opts RestoreOptions) error {
	contents, reasons, err := e.inspect(ctx, archivePath)
	if err != nil {
		return err
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s: %s", domain.ErrArchiveCorrupt, archivePath, strings.Join(reasons, "; "))
	}
	if opts.VerifyOnly {
		e.logger.Info("archive verified, live files untouched", "path", archivePath)
		return nil
	}

	// Resolve the base before touching anything so a missing base fails fast.
	basePath := ""
	if contents.Meta.Type == domain.BackupIncremental {
		if contents.Meta.BaseArchive == "" {
			return fmt.Errorf("%w: incremental archive names no base", domain.ErrNoBaseArchive)
		}
		basePath = filepath.Join(filepath.Dir(archivePath), contents.Meta.BaseArchive)
		if _, err := os.Stat(basePath); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrNoBaseArchive, basePath)
		}
	}

	targets := e.filterScope(contents.Entries, opts.Scope)
	run := func(ctx context.Context) error {
		if basePath != "" {
			baseOpts := opts
			baseOpts.Safe = false // the outer envelope already covers the base apply
			if err := e.Restore(ctx, basePath, baseOpts); err != nil {
				return fmt.Errorf("restore base archive: %w", err)
			}
		}
		return e.apply(ctx, archivePath, targets, opts.TargetRoot)
	}

	if opts.Safe && e.safer != nil {
		return e.safer.SafeWith(ctx, "restore-archive",
			operation.Options{Paths: e.cfg.Paths.For(opts.Scope)},
			func(ctx context.Context, _ *rollback.Registry) error { return run(ctx) },
		)
	}
	return run(ctx)
}

// filterScope keeps the manifest entries whose original absolute path falls
// under the scope's configured path set.
func (e *Engine) filterScope(entries []manifest.Entry, scope domain.BackupType) []manifest.Entry {
	if scope == "" || scope == domain.BackupFull {
		return entries
	}
	roots := e.cfg.Paths.For(scope)
	var kept []manifest.Entry
	for _, entry := range entries {
		original := "/" + entry.Path
		for _, root := range roots {
			cleanRoot := filepath.ToSlash(filepath.Clean(root))
			if original == cleanRoot || strings.HasPrefix(original, cleanRoot+"/") {
				kept = append(kept, entry)
				break
			}
		}
	}
	return kept
}

// apply extracts the archive to a staging directory, then copies the
// selected entries onto the live tree. Restore overwrites; the caller opted
// in by restoring.
func (e *Engine) apply(ctx context.Context, archivePath string, entries []manifest.Entry, targetRoot string) error {
	if targetRoot == "" {
		targetRoot = string(filepath.Separator)
	}

	stagingDir, err := os.MkdirTemp(e.cfg.WorkDir, "stackward-restore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(stagingDir)

	if err := extractArchive(archivePath, stagingDir); err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		staged := filepath.Join(stagingDir, filepath.FromSlash(entry.Path))
		target := filepath.Join(targetRoot, filepath.FromSlash(entry.Path))
		if err := fsutil.CopyFile(staged, target); err != nil {
			return fmt.Errorf("apply %s: %w", entry.Path, err)
		}
	}

	e.logger.Info("archive restored", "path", archivePath, "files", len(entries))
	return nil
}

// =============================================================================
// List and Prune
// =============================================================================

// List returns summaries of the archives in a directory, newest first.
// Files not following the naming convention are ignored.
func (e *Engine) List(dir string) ([]domain.ArchiveSummary, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var archives []domain.ArchiveSummary
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		name, t, created, ok := domain.ParseArchiveFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		archives = append(archives, domain.ArchiveSummary{
			Name:      name,
			Path:      filepath.Join(dir, de.Name()),
			Type:      t,
			CreatedAt: created,
			SizeBytes: info.Size(),
		})
	}
	domain.SortArchivesNewestFirst(archives)
	return archives, nil
}

// Prune deletes the oldest archives beyond maxKeep, never the newest.
// Returns the deleted paths.
func (e *Engine) Prune(dir string, maxKeep int) ([]string, error) {
	if maxKeep < 1 {
		maxKeep = 1
	}
	archives, err := e.List(dir)
	if err != nil {
		return nil, err
	}
	if len(archives) <= maxKeep {
		return nil, nil
	}

	var deleted []string
	doomed := archives[maxKeep:]
	for i := len(doomed) - 1; i >= 0; i-- {
		if err := os.Remove(doomed[i].Path); err != nil {
			return deleted, err
		}
		e.logger.Info("archive pruned", "path", doomed[i].Path)
		deleted = append(deleted, doomed[i].Path)
	}
	return deleted, nil
}

// =============================================================================
// Disaster Recovery
// =============================================================================

// Recovery modes.
const (
	RecoveryAuto   = "auto"
	RecoveryManual = "manual"
)

// RecoveryOptions select what disaster recovery restores.
type RecoveryOptions struct {
	// Mode is auto (newest valid archive in Source directory) or manual
	// (Source is an explicit archive path).
	Mode string

	// Source is a directory in auto mode, an archive path in manual mode.
	Source string

	// Scope restricts what is restored.
	Scope domain.BackupType

	// TargetRoot relocates restored paths; default is original locations.
	TargetRoot string
}

// DisasterRecovery restores a missing or corrupt environment from the most
// recent valid archive matching the scope, or from a user-specified one.
// This is distinct from rolling back one failed operation: the restore runs
// without the safe-operation envelope because the environment being rebuilt
// may not support snapshotting.
func (e *Engine) DisasterRecovery(ctx context.Context, opts RecoveryOptions) error {
	restoreOpts := RestoreOptions{
		Scope:      opts.Scope,
		TargetRoot: opts.TargetRoot,
	}

	if opts.Mode == RecoveryManual {
		e.logger.Info("disaster recovery from explicit archive", "archive", opts.Source)
		return e.Restore(ctx, opts.Source, restoreOpts)
	}

	archives, err := e.List(opts.Source)
	if err != nil {
		return fmt.Errorf("scan recovery source %s: %w", opts.Source, err)
	}

	for _, archive := range archives {
		if archive.Type == domain.BackupIncremental {
			// Incrementals are applied through their base, not chosen
			// directly.
			continue
		}
		if !archive.Type.Covers(opts.Scope) {
			continue
		}
		if ok, reasons := e.Validate(ctx, archive.Path); !ok {
			e.logger.Warn("skipping invalid archive during recovery",
				"path", archive.Path,
				"reasons", strings.Join(reasons, "; "),
			)
			continue
		}
		e.logger.Info("disaster recovery archive selected", "path", archive.Path)
		return e.Restore(ctx, archive.Path, restoreOpts)
	}
	return fmt.Errorf("no valid archive matching scope %q found in %s", opts.Scope, opts.Source)
}
