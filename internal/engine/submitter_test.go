package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
	"github.com/jfourney/divvy/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSubmissionPort implements service.TransactionSubmissionPort for tests.
type mockSubmissionPort struct {
	submitFn func(ctx context.Context, req service.SubmissionRequest) (string, error)
	requests []service.SubmissionRequest
}

func (m *mockSubmissionPort) Submit(ctx context.Context, req service.SubmissionRequest) (string, error) {
	m.requests = append(m.requests, req)
	return m.submitFn(ctx, req)
}

func fastRetry() service.RetryOptions {
	return service.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func setupSubmitTest(t *testing.T) (*storage.SQLiteStorage, model.TransactionID) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	ctx := context.Background()
	require.NoError(t, store.SaveAccount(ctx, &model.Account{
		ID:                "acc1",
		BankIdentifier:    "NL00TEST0123456789",
		Currency:          "EUR",
		ExternalAccountID: "budget-acc-1",
		IsActive:          true,
		CreatedAt:         time.Now().UTC(),
	}))

	id := model.NewTransactionID("acc1", "tx-001")
	require.NoError(t, store.SaveTransaction(ctx, &model.Transaction{
		ID:           id,
		Date:         time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC),
		Amount:       -12.34,
		Currency:     "EUR",
		Counterparty: "ALBERT HEIJN 1403",
		Type:         "DEBIT",
		ImportedAt:   time.Now().UTC(),
	}))

	state := model.NewProcessingState(id)
	state.SuggestedPayee = "Albert Heijn"
	state.SuggestedCategory = "Groceries"
	state.PayeeConfidence = model.NewConfidenceScore(0.9)
	state.CategoryConfidence = model.NewConfidenceScore(0.9)
	require.NoError(t, state.MarkCategorized(time.Now().UTC()))
	require.NoError(t, store.SaveProcessingState(ctx, state))

	return store, id
}

func TestSubmitter_Run(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	port := &mockSubmissionPort{
		submitFn: func(_ context.Context, req service.SubmissionRequest) (string, error) {
			assert.Equal(t, "budget-acc-1", req.ExternalAccountID)
			assert.Equal(t, "Albert Heijn", req.Payee)
			assert.Equal(t, "Groceries", req.Category)
			assert.Equal(t, -12.34, req.Amount)
			assert.Equal(t, "divvy:acc1/tx-001", req.ImportID)
			return "ynab-42", nil
		},
	}

	submitter := NewSubmitter(store, port, fastRetry())
	result, err := submitter.Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Submitted)
	assert.Empty(t, result.Failures)

	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, state.Status)
	assert.Equal(t, "ynab-42", state.ExternalSubmissionID)
	assert.Equal(t, "budget-acc-1", state.ExternalAccountID)
	assert.NotNil(t, state.SubmittedAt)

	// A second run finds nothing: Submitted is terminal.
	result, err = submitter.Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Zero(t, result.Submitted)
	assert.Len(t, port.requests, 1)
}

func TestSubmitter_PortFailureLeavesCategorized(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	port := &mockSubmissionPort{
		submitFn: func(_ context.Context, _ service.SubmissionRequest) (string, error) {
			return "", fmt.Errorf("%w: duplicate import id", common.ErrValidation)
		},
	}

	submitter := NewSubmitter(store, port, fastRetry())
	result, err := submitter.Run(ctx, "acc1")
	require.NoError(t, err, "a per-item failure must not abort the run")
	assert.Zero(t, result.Submitted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, id, result.Failures[0].ID)

	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, state.Status, "refused submission stays eligible for a later run")
	assert.Contains(t, state.LastError, "duplicate import id")
	assert.Empty(t, state.ExternalSubmissionID)
}

func TestSubmitter_RetryExhaustionMarksFailed(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	down := &mockSubmissionPort{
		submitFn: func(_ context.Context, _ service.SubmissionRequest) (string, error) {
			return "", fmt.Errorf("%w: budget service down", common.ErrServiceUnavailable)
		},
	}

	submitter := NewSubmitter(store, down, fastRetry())
	result, err := submitter.Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Zero(t, result.Submitted)
	require.Len(t, result.Failures, 1)

	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, state.Status, "exhausted retries park the state as Failed")
	assert.Contains(t, state.LastError, "budget service down")

	// An explicit retry restores Categorized from the evidence, and a healthy
	// port then submits.
	count, err := RetryFailed(ctx, store, "acc1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	healthy := &mockSubmissionPort{
		submitFn: func(_ context.Context, _ service.SubmissionRequest) (string, error) {
			return "ynab-99", nil
		},
	}
	result, err = NewSubmitter(store, healthy, fastRetry()).Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Submitted)

	state, err = store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, state.Status)
}

func TestSubmitter_MissingMappingReported(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	// Unmap the account after the state became eligible. The candidate is
	// still picked up and refused with a reason, not silently dropped.
	account, err := store.GetAccount(ctx, "acc1")
	require.NoError(t, err)
	account.ExternalAccountID = ""
	require.NoError(t, store.SaveAccount(ctx, account))

	port := &mockSubmissionPort{
		submitFn: func(_ context.Context, _ service.SubmissionRequest) (string, error) {
			return "ynab-42", nil
		},
	}
	submitter := NewSubmitter(store, port, fastRetry())

	result, err := submitter.Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Zero(t, result.Submitted)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Reason, "missing external account mapping")
	assert.Empty(t, port.requests)

	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, state.Status)
}

func TestSubmitter_MissingCategoryReported(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	// Categorized with an override payee but no category anywhere: refused
	// with a diagnostic, status unchanged.
	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	state.SuggestedCategory = ""
	state.OverridePayee = "Corner Shop"
	require.NoError(t, store.SaveProcessingState(ctx, state))

	port := &mockSubmissionPort{
		submitFn: func(_ context.Context, _ service.SubmissionRequest) (string, error) {
			t.Error("a blocked candidate must not reach the port")
			return "", nil
		},
	}
	submitter := NewSubmitter(store, port, fastRetry())

	result, err := submitter.Run(ctx, "acc1")
	require.NoError(t, err)
	assert.Zero(t, result.Submitted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, id, result.Failures[0].ID)
	assert.Contains(t, result.Failures[0].Reason, "missing category")

	reloaded, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, reloaded.Status)
	assert.Contains(t, reloaded.LastError, "missing category")
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	store, id := setupSubmitTest(t)

	state, err := store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	require.NoError(t, state.MarkFailed("invariant violation"))
	require.NoError(t, store.SaveProcessingState(ctx, state))

	// Add a second failure with no categorization evidence.
	raw := model.NewTransactionID("acc1", "tx-002")
	require.NoError(t, store.SaveTransaction(ctx, &model.Transaction{
		ID:         raw,
		Date:       time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
		Amount:     -5,
		Currency:   "EUR",
		Memo:       "mystery",
		ImportedAt: time.Now().UTC(),
	}))
	rawState := model.NewProcessingState(raw)
	require.NoError(t, rawState.MarkFailed("import hiccup"))
	require.NoError(t, store.SaveProcessingState(ctx, rawState))

	count, err := RetryFailed(ctx, store, "acc1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	state, err = store.GetProcessingState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCategorized, state.Status, "categorization evidence restores Categorized")

	rawStateReloaded, err := store.GetProcessingState(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, model.StatusImported, rawStateReloaded.Status)
	assert.Equal(t, "import hiccup", rawStateReloaded.LastError)
}
