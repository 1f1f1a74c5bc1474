package main

import (
	"fmt"
	"log/slog"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/engine"
	"github.com/spf13/cobra"
)

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset failed transactions so the pipeline can pick them up again",
		Long: `Move failed transactions back to the last stage they completed, based on
what the record shows: a transaction with a category suggestion returns to
categorized, anything else returns to imported. The failure reason is kept.`,
		RunE: runRetry,
	}

	cmd.Flags().StringP("account", "a", "", "Account ID to reset (all accounts if omitted)")

	return cmd
}

func runRetry(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	accountID, _ := cmd.Flags().GetString("account")

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	count, err := engine.RetryFailed(ctx, store, accountID)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	if count == 0 {
		slog.Info("No failed transactions to reset")
		return nil
	}
	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Reset %d failed transactions", count)))
	return nil
}
