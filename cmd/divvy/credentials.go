package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/spf13/cobra"
)

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Manage encrypted bank API tokens",
	}

	cmd.AddCommand(credentialsSetCmd())
	cmd.AddCommand(credentialsInvalidateCmd())
	cmd.AddCommand(credentialsAuditCmd())

	return cmd
}

func credentialsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <account-id>",
		Short: "Store a bank API token for an account",
		Long: `Encrypt a bank API token and store it for an account. The token is read
from --token, or from stdin when the flag is omitted so it stays out of shell
history. Setting a token drops any cached plaintext for the account.`,
		Args: cobra.ExactArgs(1),
		RunE: runCredentialsSet,
	}

	cmd.Flags().String("token", "", "Token value (read from stdin if omitted)")

	return cmd
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accountID := args[0]

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Token: ")
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return fmt.Errorf("token must not be empty")
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

	if err := v.StoreToken(ctx, accountID, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Stored token for %s", accountID)))
	return nil
}

func credentialsInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <account-id>",
		Short: "Drop the cached plaintext token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			v, err := newVault(store)
			if err != nil {
				return err
			}

			if err := v.InvalidateCache(ctx, args[0]); err != nil {
				return err
			}

			slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Invalidated cached token for %s", args[0])))
			return nil
		},
	}
}

func credentialsAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <account-id>",
		Short: "Show the credential access log for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			events, err := store.GetAuditEvents(ctx, args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				slog.Info("No audit events", "account", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tKIND\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.Message)
			}
			return w.Flush()
		},
	}
}
