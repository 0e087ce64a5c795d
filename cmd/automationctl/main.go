// Command automationctl runs one-off maintenance against the automation
// service's database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/logger"
)

var Version = "dev"

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "automationctl",
		Short:         "Operate the CRM automation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(config.LogConfig{Level: logLevel, Format: "console"})
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(reapCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(rulesCmd())

	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
