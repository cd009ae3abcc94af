// Command stackward manages a single-host Docker Compose deployment with a
// recovery-first posture: every mutating verb runs inside a safe operation
// that snapshots mutable state first and rolls back on failure.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stackward",
		Short:         "Recovery-first operations for a Docker Compose deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "path to config file")

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newUpdateCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newRollbackCmd(),
		newRecoverCmd(),
		newSnapshotCmd(),
		newHistoryCmd(),
	)
	return root
}

// withApp loads config, assembles the app, and optionally takes the
// invocation lock before running fn. Read-only verbs skip the lock.
func withApp(needLock bool, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger := SetupLogger(cfg)

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		if needLock {
			if err := a.acquireLock(cmd.Context()); err != nil {
				return err
			}
		}
		return fn(cmd, args, a)
	}
}
