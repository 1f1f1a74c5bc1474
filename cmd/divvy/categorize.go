package main

import (
	"fmt"
	"log/slog"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/engine"
	"github.com/jfourney/divvy/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize imported transactions",
		Long: `Assign payee and category suggestions to every imported transaction.

Approved cleanup rules are tried first, in specificity order; transactions no
rule matches are sent to the AI service. Duplicates are skipped.`,
		RunE: runCategorize,
	}

	cmd.Flags().StringP("account", "a", "", "Account ID to categorize for (required)")
	cmd.Flags().IntP("concurrency", "c", 0, "Maximum concurrent AI requests")

	_ = cmd.MarkFlagRequired("account")
	_ = viper.BindPFlag("categorize.concurrency", cmd.Flags().Lookup("concurrency"))

	return cmd
}

func runCategorize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	accountID, _ := cmd.Flags().GetString("account")

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	provider, err := newCategorizationProvider(ctx, store)
	if err != nil {
		return err
	}

	pending, err := store.FindStatesByStatus(ctx, accountID, model.StatusImported)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		slog.Info("Nothing to categorize", "account", accountID)
		return nil
	}

	slog.Info(cli.FormatTitle("Categorizing transactions"))
	bar := cli.NewProgressBar(len(pending), "Categorizing")

	config := engine.DefaultCategorizerConfig()
	if n := viper.GetInt("categorize.concurrency"); n > 0 {
		config.MaxConcurrent = n
	}
	config.OnProgress = func() { _ = bar.Add(1) }

	categorizer := engine.NewCategorizer(store, provider, config)
	result, err := categorizer.Run(ctx, accountID)
	if err != nil {
		return fmt.Errorf("categorization failed: %w", err)
	}
	_ = bar.Finish()

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Categorized %d transactions (%d by rule, %d by AI, %d skipped)",
		result.Categorized, result.ByRule, result.ByAI, result.Skipped)))
	if len(result.Failures) > 0 {
		slog.Warn(cli.FormatWarning(fmt.Sprintf("%d transactions failed:", len(result.Failures))))
		slog.Warn(formatFailures(result.Failures))
	}
	return nil
}
