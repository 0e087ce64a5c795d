package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/database"
	"github.com/marminbh/automation-svc/internal/logger"
)

func migrateCmd() *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply every pending migration from DB_MIGRATIONS_PATH.

Examples:
  automationctl migrate
  automationctl migrate --down 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if down > 0 {
				return database.RollbackMigrations(&cfg.Database, down, logger.L())
			}
			return database.RunMigrations(&cfg.Database, logger.L())
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead")
	return cmd
}

func sweepCmd() *cobra.Command {
	var skipResume bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retry pass and one continuation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(!skipResume)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			retried, err := svc.Scheduler.RetryDue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d deliveries\n", retried)

			if skipResume {
				return nil
			}
			resumed, err := svc.Scheduler.ResumeDue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %d continuations\n", resumed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipResume, "retries-only", false, "skip delayed actions, which need the broker")
	return cmd
}

func reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Delete expired delivery logs, executions and finished continuations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := openService(false)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.Scheduler.Reap(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
