package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackward/stackward/internal/core/domain"
	"github.com/stackward/stackward/internal/shell/backup"
	"github.com/stackward/stackward/internal/shell/snapshot"
)

// =============================================================================
// Backup Verbs
// =============================================================================

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, and prune backup archives",
	}
	cmd.AddCommand(newBackupCreateCmd(), newBackupListCmd(), newBackupPruneCmd())
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var (
		dir  string
		name string
		base string
	)
	cmd := &cobra.Command{
		Use:   "create <full|config|data|ssl|incremental>",
		Short: "Create a validated backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, args []string, a *app) error {
			t, err := domain.ParseBackupType(args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.Backups.Dir
			}

			var path string
			if t == domain.BackupIncremental {
				if base == "" {
					base, err = newestFullArchive(a, dir)
					if err != nil {
						return err
					}
				}
				path, err = a.engine.CreateIncremental(cmd.Context(), base, dir)
			} else {
				path, err = a.engine.Create(cmd.Context(), t, dir, name)
			}
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "archive base name (default stackward)")
	cmd.Flags().StringVar(&base, "base", "", "base archive for incremental (default newest full)")
	return cmd
}

// newestFullArchive picks the most recent full archive as the incremental
// base.
func newestFullArchive(a *app, dir string) (string, error) {
	archives, err := a.engine.List(dir)
	if err != nil {
		return "", err
	}
	for _, archive := range archives {
		if archive.Type == domain.BackupFull {
			return archive.Path, nil
		}
	}
	return "", fmt.Errorf("%w: no full archive in %s to base an incremental on", domain.ErrNoBaseArchive, dir)
}

func newBackupListCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archives, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(_ *cobra.Command, _ []string, a *app) error {
			if dir == "" {
				dir = a.cfg.Backups.Dir
			}
			archives, err := a.engine.List(dir)
			if err != nil {
				return err
			}
			for _, archive := range archives {
				fmt.Printf("%-12s %-20s %10d  %s\n",
					archive.Type,
					archive.CreatedAt.Format("2006-01-02 15:04:05"),
					archive.SizeBytes,
					archive.Path,
				)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "archive directory (default from config)")
	return cmd
}

func newBackupPruneCmd() *cobra.Command {
	var (
		dir  string
		keep int
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest archives beyond the retention count",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(_ *cobra.Command, _ []string, a *app) error {
			if dir == "" {
				dir = a.cfg.Backups.Dir
			}
			if keep <= 0 {
				keep = a.cfg.Backups.Retention
			}
			deleted, err := a.engine.Prune(dir, keep)
			if err != nil {
				return err
			}
			for _, path := range deleted {
				fmt.Println(path)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "archive directory (default from config)")
	cmd.Flags().IntVar(&keep, "keep", 0, "archives to keep (default from config)")
	return cmd
}

// =============================================================================
// Restore, Rollback, Recover
// =============================================================================

func newRestoreCmd() *cobra.Command {
	var (
		scope      string
		verifyOnly bool
		targetRoot string
		unsafe     bool
	)
	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Restore a backup archive after validating it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, args []string, a *app) error {
			opts := backup.RestoreOptions{
				VerifyOnly: verifyOnly,
				TargetRoot: targetRoot,
				Safe:       !unsafe && !verifyOnly,
			}
			if scope != "" {
				t, err := domain.ParseBackupType(scope)
				if err != nil {
					return err
				}
				opts.Scope = t
			}
			return a.engine.Restore(cmd.Context(), args[0], opts)
		}),
	}
	cmd.Flags().StringVar(&scope, "scope", "", "restrict restore to one backup type's paths")
	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "validate the archive without touching live files")
	cmd.Flags().StringVar(&targetRoot, "target-root", "", "restore under an alternate root")
	cmd.Flags().BoolVar(&unsafe, "no-snapshot", false, "skip the pre-restore snapshot envelope")
	return cmd
}

func newRollbackCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rollback [snapshot-id]",
		Short: "Restore a snapshot (the most recent when none is named)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, args []string, a *app) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			} else {
				summaries, err := a.store.List()
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					return errors.New("no snapshots to roll back to")
				}
				id = summaries[0].ID
			}

			report, err := a.store.Restore(cmd.Context(), id, snapshot.RestoreOptions{Force: force})
			if report != nil {
				fmt.Printf("restored %d, unchanged %d, conflicts %d\n",
					len(report.Restored), len(report.Unchanged), len(report.Conflicts))
				for _, path := range report.Conflicts {
					fmt.Printf("conflict: %s (re-run with --force to overwrite)\n", path)
				}
			}
			return err
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite live files that differ from the snapshot")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	var (
		mode       string
		source     string
		scope      string
		targetRoot string
	)
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Rebuild the environment from the most recent valid archive",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(cmd *cobra.Command, _ []string, a *app) error {
			opts := backup.RecoveryOptions{
				Mode:       mode,
				Source:     source,
				TargetRoot: targetRoot,
			}
			if opts.Source == "" {
				if mode == backup.RecoveryManual {
					return errors.New("manual recovery requires --source naming an archive")
				}
				opts.Source = a.cfg.Backups.Dir
			}
			if scope != "" {
				t, err := domain.ParseBackupType(scope)
				if err != nil {
					return err
				}
				opts.Scope = t
			}
			return a.engine.DisasterRecovery(cmd.Context(), opts)
		}),
	}
	cmd.Flags().StringVar(&mode, "mode", backup.RecoveryAuto, "auto (newest valid archive) or manual (explicit archive)")
	cmd.Flags().StringVar(&source, "source", "", "archive directory (auto) or archive path (manual)")
	cmd.Flags().StringVar(&scope, "scope", "", "restrict recovery to one backup type's paths")
	cmd.Flags().StringVar(&targetRoot, "target-root", "", "restore under an alternate root")
	return cmd
}
