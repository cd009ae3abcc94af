package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// Snapshot Verbs
// =============================================================================

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and prune the internal snapshot store",
	}
	cmd.AddCommand(newSnapshotListCmd(), newSnapshotVerifyCmd(), newSnapshotPruneCmd())
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(_ *cobra.Command, _ []string, a *app) error {
			summaries, err := a.store.List()
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%-40s %-12s %-20s %3d paths %10d bytes\n",
					s.ID,
					s.OperationName,
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					s.PathCount,
					s.SizeBytes,
				)
			}
			return nil
		}),
	}
}

func newSnapshotVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <snapshot-id>",
		Short: "Check a snapshot's files against its integrity manifest",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(false, func(cmd *cobra.Command, args []string, a *app) error {
			mismatches, err := a.store.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(mismatches) > 0 {
				for _, m := range mismatches {
					fmt.Println(m)
				}
				return fmt.Errorf("snapshot %s failed verification with %d mismatch(es)", args[0], len(mismatches))
			}
			fmt.Printf("snapshot %s verified\n", args[0])
			return nil
		}),
	}
}

func newSnapshotPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest snapshots beyond the retention count",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(_ *cobra.Command, _ []string, a *app) error {
			if keep <= 0 {
				keep = a.cfg.Snapshots.Retention
			}
			deleted, err := a.store.Prune(keep)
			if err != nil {
				return err
			}
			for _, id := range deleted {
				fmt.Println(id)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "snapshots to keep (default from config)")
	return cmd
}

// =============================================================================
// History
// =============================================================================

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations and their outcomes",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(cmd *cobra.Command, _ []string, a *app) error {
			if a.journal == nil {
				return errors.New("operation journal is unavailable")
			}
			entries, err := a.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%-20s %-10s %-12s",
					e.StartedAt.Format("2006-01-02 15:04:05"), e.Name, e.Outcome)
				if e.SnapshotID != "" {
					line += " snapshot=" + e.SnapshotID
				}
				if e.UnwindAttempted > 0 {
					line += fmt.Sprintf(" rollback=%d/%d", e.UnwindSucceeded, e.UnwindAttempted)
				}
				if e.Error != "" {
					line += " error=" + e.Error
				}
				fmt.Println(line)
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show")
	return cmd
}
