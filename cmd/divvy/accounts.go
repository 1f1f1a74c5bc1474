package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/model"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
	}

	cmd.AddCommand(accountsAddCmd())
	cmd.AddCommand(accountsListCmd())

	return cmd
}

func accountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <account-id>",
		Short: "Add or update an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsAdd,
	}

	cmd.Flags().String("bank-id", "", "Bank-side account identifier (IBAN or provider id)")
	cmd.Flags().String("currency", "USD", "Account currency (ISO 4217)")
	cmd.Flags().String("external-id", "", "Budgeting service account id")
	cmd.Flags().Bool("inactive", false, "Mark the account inactive")

	return cmd
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	bankID, _ := cmd.Flags().GetString("bank-id")
	currency, _ := cmd.Flags().GetString("currency")
	externalID, _ := cmd.Flags().GetString("external-id")
	inactive, _ := cmd.Flags().GetBool("inactive")

	account := &model.Account{
		ID:                args[0],
		BankIdentifier:    bankID,
		Currency:          currency,
		ExternalAccountID: externalID,
		IsActive:          !inactive,
		CreatedAt:         time.Now().UTC(),
	}
	if err := store.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Saved account %s", account.ID)))
	return nil
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				slog.Info("No accounts configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBANK\tCURRENCY\tEXTERNAL ID\tACTIVE\tLAST SYNC")
			for _, a := range accounts {
				lastSync := "never"
				if a.LastSyncAt != nil {
					lastSync = a.LastSyncAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					a.ID, a.BankIdentifier, a.Currency, a.ExternalAccountID, a.IsActive, lastSync)
			}
			return w.Flush()
		},
	}
}
