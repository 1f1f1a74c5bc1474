package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/engine"
	"github.com/spf13/cobra"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit categorized transactions to the budgeting service",
		Long: `Push every categorized, non-duplicate transaction with an effective
category to the budgeting service. Submitted transactions are terminal and
never re-sent.`,
		RunE: runSubmit,
	}

	cmd.Flags().StringP("account", "a", "", "Account ID to submit for (required)")
	cmd.Flags().Bool("dry-run", false, "List what would be submitted without sending")

	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	accountID, _ := cmd.Flags().GetString("account")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if dryRun {
		candidates, err := store.FindSubmissionCandidates(ctx, accountID)
		if err != nil {
			return err
		}
		account, err := store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		slog.Info(cli.FormatWarning(fmt.Sprintf("Dry run: %d submission candidates", len(candidates))))
		for _, state := range candidates {
			line := fmt.Sprintf("  %s  %s / %s",
				state.ID.ProviderTxID, state.EffectivePayee(), state.EffectiveCategory())
			if blockers := state.SubmitBlockers(account.ExternalAccountID); len(blockers) > 0 {
				line += "  [blocked: " + strings.Join(blockers, "; ") + "]"
			}
			slog.Info(line)
		}
		return nil
	}

	port, err := newSubmissionPort()
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Submitting transactions"))

	submitter := engine.NewSubmitter(store, port, engine.DefaultSubmitRetry())
	result, err := submitter.Run(ctx, accountID)
	if err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Submitted %d transactions", result.Submitted)))
	if len(result.Failures) > 0 {
		slog.Warn(cli.FormatWarning(fmt.Sprintf("%d transactions failed:", len(result.Failures))))
		slog.Warn(formatFailures(result.Failures))
	}
	return nil
}
