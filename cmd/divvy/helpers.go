package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfourney/divvy/internal/ai"
	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/ofx"
	"github.com/jfourney/divvy/internal/plaidfeed"
	"github.com/jfourney/divvy/internal/service"
	"github.com/jfourney/divvy/internal/storage"
	"github.com/jfourney/divvy/internal/vault"
	"github.com/jfourney/divvy/internal/ynab"
	"github.com/spf13/viper"
)

// openStorage opens the database named in config (or the default location)
// and brings the schema up to date.
func openStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".config", "divvy", "divvy.db")
	}
	dbPath = os.ExpandEnv(dbPath)

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newVault(store service.Storage) (*vault.Vault, error) {
	secret := viper.GetString("vault.secret")
	if secret == "" {
		return nil, fmt.Errorf("%w: vault secret (set vault.secret or DIVVY_VAULT_SECRET)", common.ErrMissingConfig)
	}
	return vault.New(store, secret, viper.GetDuration("vault.cache_ttl")), nil
}

// newTransactionProvider picks the bank source named by --source.
func newTransactionProvider(source, ofxFile string) (service.TransactionProvider, error) {
	switch source {
	case "plaid":
		cfg := plaidfeed.Config{
			ClientID:    viper.GetString("plaid.client_id"),
			Secret:      viper.GetString("plaid.secret"),
			Environment: viper.GetString("plaid.environment"),
		}
		if cfg.Environment == "" {
			cfg.Environment = "sandbox"
		}
		return plaidfeed.NewClient(cfg)
	case "ofx":
		if ofxFile == "" {
			return nil, fmt.Errorf("%w: --ofx-file is required with --source ofx", common.ErrMissingConfig)
		}
		return ofx.NewProvider(ofxFile, viper.GetString("import.currency")), nil
	default:
		return nil, fmt.Errorf("unknown source %q: must be plaid or ofx", source)
	}
}

func newCategorizationProvider(ctx context.Context, store service.Storage) (service.CategorizationProvider, error) {
	categories, err := store.GetCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if c.Name != model.UncategorizedName {
			names = append(names, c.Name)
		}
	}

	return ai.NewClient(ai.Config{
		APIKey:            viper.GetString("ai.api_key"),
		Model:             viper.GetString("ai.model"),
		Categories:        names,
		RequestsPerMinute: viper.GetInt("ai.requests_per_minute"),
		MaxTokens:         viper.GetInt("ai.max_tokens"),
		Temperature:       viper.GetFloat64("ai.temperature"),
	})
}

func newSubmissionPort() (service.TransactionSubmissionPort, error) {
	return ynab.NewClient(ynab.Config{
		AccessToken: viper.GetString("ynab.access_token"),
		BudgetID:    viper.GetString("ynab.budget_id"),
	})
}

// parseDateRange resolves --from/--to, defaulting to the last --days days
// ending today. Times are normalized to midnight UTC.
func parseDateRange(fromStr, toStr string, days int) (from, to time.Time, err error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	to = today
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
	}

	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
	} else {
		if days <= 0 {
			days = 30
		}
		from = to.AddDate(0, 0, -days)
	}

	return from, to, nil
}

func formatFailures(failures []service.ItemFailure) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, fmt.Sprintf("  %s/%s: %s", f.ID.AccountID, f.ID.ProviderTxID, f.Reason))
	}
	return strings.Join(lines, "\n")
}
