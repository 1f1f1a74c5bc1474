package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/model"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage cleanup rules",
		Long: `List and approve cleanup rules.

Rules suggested by the AI land in pending status and are never applied until
a human approves them here.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesApproveCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cleanup rules",
		RunE:  runRulesList,
	}

	cmd.Flags().Bool("pending", false, "Show only pending (unapproved) rules")

	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	pendingOnly, _ := cmd.Flags().GetBool("pending")

	var rules []model.CleanupRule
	if pendingOnly {
		rules, err = store.GetPendingRules(ctx)
	} else {
		rules, err = store.GetActiveRules(ctx)
	}
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		slog.Info("No rules found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPATTERN\tPAYEE\tCATEGORY\tSTATUS\tUSES\tSUCCESS")
	for _, r := range rules {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%.0f%%\n",
			r.ID, r.PatternType, r.Pattern, r.Payee, r.Category, r.Status,
			r.UseCount, r.SuccessRate()*100)
	}
	return w.Flush()
}

func rulesApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <rule-id>",
		Short: "Approve a pending rule so the matcher can use it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q: %w", args[0], err)
			}

			store, err := openStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.ApproveRule(ctx, id); err != nil {
				return fmt.Errorf("failed to approve rule %d: %w", id, err)
			}

			slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Approved rule %d", id)))
			return nil
		},
	}
}
