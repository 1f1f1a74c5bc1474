package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/engine"
	"github.com/jfourney/divvy/internal/service"
	"github.com/jfourney/divvy/internal/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from the bank",
		Long: `Import transactions for an account from Plaid or from a local OFX file.

Transactions already present in the database are detected by their provider
transaction id and marked as duplicates rather than stored twice.`,
		RunE: runImport,
	}

	cmd.Flags().StringP("account", "a", "", "Account ID to import for (required)")
	cmd.Flags().String("source", "plaid", "Transaction source (plaid, ofx)")
	cmd.Flags().String("ofx-file", "", "Path to an OFX/QFX file (with --source ofx)")
	cmd.Flags().StringP("from", "f", "", "Start date (format: 2006-01-02)")
	cmd.Flags().StringP("to", "t", "", "End date (format: 2006-01-02)")
	cmd.Flags().IntP("days", "d", 30, "Number of days to import when --from is not given")
	cmd.Flags().Bool("dry-run", false, "Fetch and show transactions without saving")

	_ = cmd.MarkFlagRequired("account")

	_ = viper.BindPFlag("import.source", cmd.Flags().Lookup("source"))
	_ = viper.BindPFlag("import.days", cmd.Flags().Lookup("days"))

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	accountID, _ := cmd.Flags().GetString("account")
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	ofxFile, _ := cmd.Flags().GetString("ofx-file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	from, to, err := parseDateRange(fromStr, toStr, viper.GetInt("import.days"))
	if err != nil {
		return err
	}

	provider, err := newTransactionProvider(viper.GetString("import.source"), ofxFile)
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

	slog.Info(cli.FormatTitle("Importing transactions"))
	slog.Info("Date range", "account", accountID, "from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"))

	if dryRun {
		return dryRunImport(cmd, v, provider, accountID, from, to)
	}

	importer := engine.NewImporter(store, v, provider, viper.GetInt("import.max_range_days"))
	result, err := importer.Run(ctx, accountID, from, to)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Imported %d new transactions (%d duplicates skipped)",
		result.NewCount, result.Duplicates)))
	slog.Info("Batch recorded", "batch", result.Batch.ID.String(), "status", string(result.Batch.Status))
	return nil
}

// dryRunImport fetches transactions and prints a summary without touching
// the transactions table.
func dryRunImport(cmd *cobra.Command, v *vault.Vault, provider service.TransactionProvider, accountID string, from, to time.Time) error {
	ctx := cmd.Context()

	token, err := v.GetToken(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	raws, err := provider.Fetch(ctx, token, accountID, from, to)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}

	slog.Info(cli.FormatWarning(fmt.Sprintf("Dry run: %d transactions fetched, nothing saved", len(raws))))
	for i, raw := range raws {
		if i >= 10 {
			slog.Info(fmt.Sprintf("  ... and %d more", len(raws)-10))
			break
		}
		desc := raw.Counterparty
		if desc == "" {
			desc = raw.Memo
		}
		slog.Info(fmt.Sprintf("  %s  %10.2f  %s",
			raw.Date.Format("2006-01-02"), raw.Amount, desc))
	}
	return nil
}
