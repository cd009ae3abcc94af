package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackward/stackward/internal/shell/lifecycle"
)

// =============================================================================
// Lifecycle Verbs
// =============================================================================

func newStartCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the stack and wait until every service is healthy",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(cmd *cobra.Command, _ []string, a *app) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = a.cfg.Timeouts.Start
			}
			return ctrl.Start(cmd.Context(), timeout)
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "health deadline (default from config)")
	return cmd
}

func newStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the stack gracefully, escalating to kill on timeout",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(cmd *cobra.Command, _ []string, a *app) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = a.cfg.Timeouts.Stop
			}
			return ctrl.Stop(cmd.Context(), timeout)
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "graceful stop deadline (default from config)")
	return cmd
}

func newRestartCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the stack as one safe operation",
		Args:  cobra.NoArgs,
		RunE: withApp(true, func(cmd *cobra.Command, _ []string, a *app) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = a.cfg.Timeouts.Restart
			}
			return ctrl.Restart(cmd.Context(), timeout)
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "health deadline (default from config)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stack state, pinned version, and per-service health",
		Args:  cobra.NoArgs,
		RunE: withApp(false, func(cmd *cobra.Command, _ []string, a *app) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			status := ctrl.Status(cmd.Context())

			fmt.Printf("stack:   %s\n", status.Group.Name)
			fmt.Printf("state:   %s\n", status.Group.State)
			if status.Version != "" {
				fmt.Printf("version: %s\n", status.Version)
			}
			if status.Group.LastError != "" {
				fmt.Printf("error:   %s\n", status.Group.LastError)
			}

			names := make([]string, 0, len(status.Health))
			for name := range status.Health {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Println("services:")
			for _, name := range names {
				h := status.Health[name]
				mark := "down"
				if h.Healthy {
					mark = "up"
				}
				fmt.Printf("  %-20s %-5s %s\n", name, mark, h.Reason)
			}
			return nil
		}),
	}
}

func newUpdateCmd() *cobra.Command {
	var (
		timeout  time.Duration
		services []string
		force    bool
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "update <version>",
		Short: "Update the stack to a new version with automatic rollback on failure",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(true, func(cmd *cobra.Command, args []string, a *app) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = a.cfg.Timeouts.Update
			}
			return ctrl.Update(cmd.Context(), args[0], timeout, lifecycle.UpdateOptions{
				Services: services,
				Force:    force,
				NoBackup: noBackup,
			})
		}),
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "health deadline (default from config)")
	cmd.Flags().StringSliceVar(&services, "service", nil, "update only the named services")
	cmd.Flags().BoolVar(&force, "force", false, "update even when the stack is degraded")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the automatic pre-update backup")
	return cmd
}
