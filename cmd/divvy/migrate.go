package main

import (
	"fmt"
	"log/slog"

	"github.com/jfourney/divvy/internal/cli"
	"github.com/jfourney/divvy/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show the current schema version without migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// openStorage migrates as a side effect, so both paths just report.
	store, err := openStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	statusOnly, _ := cmd.Flags().GetBool("status")
	if statusOnly {
		cmd.Printf("schema version: %d (expected %d)\n", version, storage.ExpectedSchemaVersion)
		return nil
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Database is at schema version %d", version)))
	return nil
}
