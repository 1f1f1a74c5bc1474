package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
	"github.com/jfourney/divvy/internal/storage"
	"github.com/jfourney/divvy/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBankProvider implements service.TransactionProvider for tests.
type mockBankProvider struct {
	fetchFn func(ctx context.Context, token, accountID string, from, to time.Time) ([]model.RawTransaction, error)
	calls   int
}

func (m *mockBankProvider) Fetch(ctx context.Context, token, accountID string, from, to time.Time) ([]model.RawTransaction, error) {
	m.calls++
	return m.fetchFn(ctx, token, accountID, from, to)
}

func setupImportTest(t *testing.T) (*storage.SQLiteStorage, *vault.Vault) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	require.NoError(t, store.SaveAccount(context.Background(), &model.Account{
		ID:             "acc1",
		BankIdentifier: "NL00TEST0123456789",
		Currency:       "EUR",
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}))

	v := vault.New(store, "import-test-secret", time.Minute)
	require.NoError(t, v.StoreToken(context.Background(), "acc1", "bank-token"))

	return store, v
}

func rawTxn(id string, amount float64, date time.Time) model.RawTransaction {
	return model.RawTransaction{
		ProviderTxID: id,
		Date:         date,
		Amount:       amount,
		Currency:     "EUR",
		Counterparty: "Counterparty " + id,
		Type:         "DEBIT",
	}
}

func TestImporter_Run(t *testing.T) {
	ctx := context.Background()
	store, v := setupImportTest(t)

	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	from, to := day, day.AddDate(0, 0, 7)

	provider := &mockBankProvider{
		fetchFn: func(_ context.Context, token, accountID string, _, _ time.Time) ([]model.RawTransaction, error) {
			assert.Equal(t, "bank-token", token)
			assert.Equal(t, "acc1", accountID)
			return []model.RawTransaction{
				rawTxn("tx-001", -10, day),
				rawTxn("tx-002", -20, day.AddDate(0, 0, 1)),
			}, nil
		},
	}

	importer := NewImporter(store, v, provider, 0)
	result, err := importer.Run(ctx, "acc1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, 0, result.Duplicates)
	assert.Equal(t, model.BatchCompleted, result.Batch.Status)
	assert.Equal(t, int64(1), result.Batch.ID.Sequence)

	// Second run overlaps the first two ids and brings three new ones.
	provider.fetchFn = func(_ context.Context, _, _ string, _, _ time.Time) ([]model.RawTransaction, error) {
		return []model.RawTransaction{
			rawTxn("tx-001", -10, day),
			rawTxn("tx-002", -20, day.AddDate(0, 0, 1)),
			rawTxn("tx-003", -30, day.AddDate(0, 0, 2)),
			rawTxn("tx-004", -40, day.AddDate(0, 0, 3)),
			rawTxn("tx-005", -50, day.AddDate(0, 0, 4)),
		}, nil
	}

	result, err = importer.Run(ctx, "acc1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewCount)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, int64(2), result.Batch.ID.Sequence)

	// Re-imported ids are marked, never doubled.
	state, err := store.GetProcessingState(ctx, model.NewTransactionID("acc1", "tx-001"))
	require.NoError(t, err)
	assert.True(t, state.IsDuplicate)

	state, err = store.GetProcessingState(ctx, model.NewTransactionID("acc1", "tx-003"))
	require.NoError(t, err)
	assert.False(t, state.IsDuplicate)
	assert.Equal(t, model.StatusImported, state.Status)

	txns, err := store.FindTransactions(ctx, service.TransactionFilter{AccountID: "acc1"})
	require.NoError(t, err)
	assert.Len(t, txns, 5)

	// Successful import stamps the account's sync time.
	account, err := store.GetAccount(ctx, "acc1")
	require.NoError(t, err)
	assert.NotNil(t, account.LastSyncAt)
}

func TestImporter_DateRangeValidation(t *testing.T) {
	store, v := setupImportTest(t)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	tests := []struct {
		name string
		from time.Time
		to   time.Time
	}{
		{"from after to", today, today.AddDate(0, 0, -1)},
		{"to in the future", today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)},
		{"range too wide", today.AddDate(0, 0, -100), today},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockBankProvider{
				fetchFn: func(_ context.Context, _, _ string, _, _ time.Time) ([]model.RawTransaction, error) {
					return nil, nil
				},
			}
			importer := NewImporter(store, v, provider, 90)

			_, err := importer.Run(context.Background(), "acc1", tt.from, tt.to)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidDateRange), "error = %v", err)
			assert.Zero(t, provider.calls, "invalid range must fail before the provider is called")
		})
	}
}

func TestImporter_ProviderFailureAbortsBatch(t *testing.T) {
	ctx := context.Background()
	store, v := setupImportTest(t)

	provider := &mockBankProvider{
		fetchFn: func(_ context.Context, _, _ string, _, _ time.Time) ([]model.RawTransaction, error) {
			return nil, fmt.Errorf("%w: connection reset", common.ErrNetwork)
		},
	}
	importer := NewImporter(store, v, provider, 0)

	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	_, err := importer.Run(ctx, "acc1", day, day.AddDate(0, 0, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetwork), "error = %v", err)

	batches, err := store.GetImportBatches(ctx, "acc1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, model.BatchError, batches[0].Status)
	assert.Contains(t, batches[0].Error, "connection reset")
}

func TestImporter_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	store, v := setupImportTest(t)

	require.NoError(t, store.SaveAccount(ctx, &model.Account{
		ID:             "dormant",
		BankIdentifier: "NL00TEST0000000000",
		Currency:       "EUR",
		IsActive:       false,
		CreatedAt:      time.Now().UTC(),
	}))

	importer := NewImporter(store, v, &mockBankProvider{}, 0)

	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	_, err := importer.Run(ctx, "dormant", day, day)
	assert.True(t, errors.Is(err, common.ErrValidation), "error = %v", err)
}

func TestImporter_MissingCredentials(t *testing.T) {
	ctx := context.Background()
	store, _ := setupImportTest(t)

	emptyVault := vault.New(store, "import-test-secret", time.Minute)
	require.NoError(t, store.SaveAccount(ctx, &model.Account{
		ID:             "acc2",
		BankIdentifier: "NL00TEST0000000001",
		Currency:       "EUR",
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}))

	provider := &mockBankProvider{
		fetchFn: func(_ context.Context, _, _ string, _, _ time.Time) ([]model.RawTransaction, error) {
			return nil, nil
		},
	}
	importer := NewImporter(store, emptyVault, provider, 0)

	day := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	_, err := importer.Run(ctx, "acc2", day, day)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound), "error = %v", err)
	assert.Zero(t, provider.calls)

	batches, err := store.GetImportBatches(ctx, "acc2")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, model.BatchError, batches[0].Status)
}
