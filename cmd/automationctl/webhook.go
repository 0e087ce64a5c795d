package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect and repair webhook subscriptions",
	}
	cmd.AddCommand(webhookTestCmd())
	cmd.AddCommand(webhookResetCmd())
	return cmd
}

func webhookTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [subscription-id]",
		Short: "Send a sample event to a subscription and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			svc, cleanup, err := openService(false)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := svc.Delivery.SendTest(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), outcome)
		},
	}
}

func webhookResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [subscription-id]",
		Short: "Clear a subscription's failure streak so it receives events again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid subscription id: %w", err)
			}
			svc, cleanup, err := openService(false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Store.ResetSubscriptionHealth(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "subscription %s reset\n", id)
			return nil
		},
	}
}
