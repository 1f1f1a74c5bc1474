// Package engine implements the import, categorization, and submission
// workflows that drive a transaction through its processing states.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
	"github.com/jfourney/divvy/internal/vault"
)

// DefaultMaxRangeDays is the widest date range the bank provider accepts.
const DefaultMaxRangeDays = 90

// Importer fetches raw transactions for a date range and admits them to the
// store, marking duplicates instead of re-creating them.
type Importer struct {
	store        service.Storage
	vault        *vault.Vault
	provider     service.TransactionProvider
	now          func() time.Time
	maxRangeDays int
}

// NewImporter creates an import workflow. maxRangeDays <= 0 falls back to
// DefaultMaxRangeDays.
func NewImporter(store service.Storage, v *vault.Vault, provider service.TransactionProvider, maxRangeDays int) *Importer {
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	return &Importer{
		store:        store,
		vault:        v,
		provider:     provider,
		maxRangeDays: maxRangeDays,
		now:          time.Now,
	}
}

// Run imports transactions for one account over [from, to]. The range is
// validated before any network call. Each transaction save is independent and
// idempotent by composite id, so re-running the same range after a provider
// failure is safe.
func (i *Importer) Run(ctx context.Context, accountID string, from, to time.Time) (*service.ImportResult, error) {
	if err := i.validateRange(from, to); err != nil {
		return nil, err
	}

	account, err := i.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: account %s is inactive", common.ErrValidation, accountID)
	}

	sequence, err := i.store.NextBatchSequence(ctx, accountID)
	if err != nil {
		return nil, err
	}

	batch := model.ImportBatch{
		ID:        model.BatchID{AccountID: accountID, Sequence: sequence},
		From:      from,
		To:        to,
		Status:    model.BatchInProgress,
		CreatedAt: i.now().UTC(),
	}
	if err := i.store.SaveImportBatch(ctx, &batch); err != nil {
		return nil, err
	}

	token, err := i.vault.GetToken(ctx, accountID)
	if err != nil {
		return nil, i.failBatch(ctx, &batch, err)
	}

	slog.Info("Fetching transactions",
		"account", accountID,
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"))

	raws, err := i.provider.Fetch(ctx, token, accountID, from, to)
	if err != nil {
		// Provider failures abort the whole batch; per-item recovery only
		// applies once we have data.
		return nil, i.failBatch(ctx, &batch, err)
	}

	for _, raw := range raws {
		isNew, err := i.admit(ctx, accountID, raw)
		if err != nil {
			return nil, i.failBatch(ctx, &batch, err)
		}
		if isNew {
			batch.NewCount++
		} else {
			batch.DuplicateCount++
		}
	}

	now := i.now().UTC()
	account.LastSyncAt = &now
	if err := i.store.SaveAccount(ctx, account); err != nil {
		return nil, i.failBatch(ctx, &batch, err)
	}

	batch.Status = model.BatchCompleted
	if err := i.store.SaveImportBatch(ctx, &batch); err != nil {
		return nil, err
	}

	slog.Info("Import completed",
		"account", accountID,
		"batch", batch.ID.String(),
		"new", batch.NewCount,
		"duplicates", batch.DuplicateCount)

	return &service.ImportResult{
		Batch:      batch,
		NewCount:   batch.NewCount,
		Duplicates: batch.DuplicateCount,
	}, nil
}

// admit stores one raw transaction. Re-imported ids mark the existing state
// as a duplicate; they never create a second Transaction record.
func (i *Importer) admit(ctx context.Context, accountID string, raw model.RawTransaction) (isNew bool, err error) {
	id := model.NewTransactionID(accountID, raw.ProviderTxID)
	if id.IsZero() {
		return false, fmt.Errorf("%w: provider transaction without an id", common.ErrResponseParsing)
	}

	_, err = i.store.GetTransaction(ctx, id)
	switch {
	case err == nil:
		state, stateErr := i.store.GetProcessingState(ctx, id)
		if stateErr != nil {
			return false, stateErr
		}
		if !state.IsDuplicate {
			state.IsDuplicate = true
			if saveErr := i.store.SaveProcessingState(ctx, state); saveErr != nil {
				return false, saveErr
			}
		}
		slog.Info("Duplicate transaction detected", "id", id.String())
		return false, nil

	case errors.Is(err, common.ErrNotFound):
		txn := &model.Transaction{
			ID:             id,
			Date:           raw.Date,
			Amount:         raw.Amount,
			Currency:       raw.Currency,
			Counterparty:   raw.Counterparty,
			CounterAccount: raw.CounterAccount,
			Memo:           raw.Memo,
			Type:           raw.Type,
			ImportedAt:     i.now().UTC(),
		}
		if err := i.store.SaveTransaction(ctx, txn); err != nil {
			return false, err
		}
		if err := i.store.SaveProcessingState(ctx, model.NewProcessingState(id)); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, err
	}
}

func (i *Importer) validateRange(from, to time.Time) error {
	if from.After(to) {
		return fmt.Errorf("%w: from %s is after to %s",
			common.ErrInvalidDateRange, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	today := i.now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Nanosecond)
	if to.After(today) {
		return fmt.Errorf("%w: to %s is in the future", common.ErrInvalidDateRange, to.Format("2006-01-02"))
	}
	if to.Sub(from) > time.Duration(i.maxRangeDays)*24*time.Hour {
		return fmt.Errorf("%w: range exceeds %d days", common.ErrInvalidDateRange, i.maxRangeDays)
	}
	return nil
}

func (i *Importer) failBatch(ctx context.Context, batch *model.ImportBatch, cause error) error {
	batch.Status = model.BatchError
	batch.Error = cause.Error()
	if saveErr := i.store.SaveImportBatch(ctx, batch); saveErr != nil {
		slog.Error("Failed to record batch error", "batch", batch.ID.String(), "error", saveErr)
	}
	return fmt.Errorf("import batch %s failed: %w", batch.ID, cause)
}
