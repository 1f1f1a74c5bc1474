package main

import (
	"fmt"
	"log/slog"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func flowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Run the whole pipeline: import, categorize, submit",
		Long: `Run import, categorization, and submission back to back for one account.

Each stage picks up whatever the previous stages left eligible, so a flow run
also drains transactions from earlier partial runs.`,
		RunE: runFlow,
	}

	cmd.Flags().StringP("account", "a", "", "Account ID to process (required)")
	cmd.Flags().String("source", "plaid", "Transaction source (plaid, ofx)")
	cmd.Flags().String("ofx-file", "", "Path to an OFX/QFX file (with --source ofx)")
	cmd.Flags().StringP("from", "f", "", "Start date (format: 2006-01-02)")
	cmd.Flags().StringP("to", "t", "", "End date (format: 2006-01-02)")
	cmd.Flags().IntP("days", "d", 30, "Number of days to import when --from is not given")

	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runFlow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	accountID, _ := cmd.Flags().GetString("account")
	source, _ := cmd.Flags().GetString("source")
	ofxFile, _ := cmd.Flags().GetString("ofx-file")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	days, _ := cmd.Flags().GetInt("days")

	from, to, err := parseDateRange(fromStr, toStr, days)
	if err != nil {
		return err
	}

	provider, err := newTransactionProvider(source, ofxFile)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	v, err := newVault(store)
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Running full pipeline"))

	importer := engine.NewImporter(store, v, provider, viper.GetInt("import.max_range_days"))
	importResult, err := importer.Run(ctx, accountID, from, to)
	if err != nil {
		return fmt.Errorf("import stage failed: %w", err)
	}
	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Import: %d new, %d duplicates",
		importResult.NewCount, importResult.Duplicates)))

	catProvider, err := newCategorizationProvider(ctx, store)
	if err != nil {
		return err
	}
	categorizer := engine.NewCategorizer(store, catProvider, engine.DefaultCategorizerConfig())
	catResult, err := categorizer.Run(ctx, accountID)
	if err != nil {
		return fmt.Errorf("categorize stage failed: %w", err)
	}
	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Categorize: %d done (%d by rule, %d by AI), %d failed",
		catResult.Categorized, catResult.ByRule, catResult.ByAI, len(catResult.Failures))))

	port, err := newSubmissionPort()
	if err != nil {
		return err
	}
	submitter := engine.NewSubmitter(store, port, engine.DefaultSubmitRetry())
	subResult, err := submitter.Run(ctx, accountID)
	if err != nil {
		return fmt.Errorf("submit stage failed: %w", err)
	}
	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Submit: %d sent, %d failed",
		subResult.Submitted, len(subResult.Failures))))

	summary := fmt.Sprintf(
		"Imported:    %d new (%d duplicates)\nCategorized: %d\nSubmitted:   %d",
		importResult.NewCount, importResult.Duplicates, catResult.Categorized, subResult.Submitted)
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Pipeline complete", summary))
	return nil
}
