package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jfourney/divvy/internal/model"
)

// NextBatchSequence reserves the next import batch sequence number for an
// account. Sequence numbers increase monotonically per account; the single
// database connection serializes concurrent callers.
func (s *SQLiteStorage) NextBatchSequence(ctx context.Context, accountID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return 0, err
	}

	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM import_batches WHERE account_id = ?`, accountID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read batch sequence for %s: %w", accountID, err)
	}
	return max.Int64 + 1, nil
}

// SaveImportBatch upserts a batch record keyed by (account, sequence).
func (s *SQLiteStorage) SaveImportBatch(ctx context.Context, batch *model.ImportBatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("%w: batch", ErrNilParameter)
	}
	if err := validateString(batch.ID.AccountID, "batch.ID.AccountID"); err != nil {
		return err
	}
	if batch.To.Before(batch.From) {
		return fmt.Errorf("%w: %v .. %v", ErrInvalidDateRange, batch.From, batch.To)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches
			(account_id, sequence, from_date, to_date, status, new_count, duplicate_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, sequence) DO UPDATE SET
			status = excluded.status,
			new_count = excluded.new_count,
			duplicate_count = excluded.duplicate_count,
			error = excluded.error`,
		batch.ID.AccountID, batch.ID.Sequence, batch.From, batch.To,
		string(batch.Status), batch.NewCount, batch.DuplicateCount, batch.Error, batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save import batch %s: %w", batch.ID, err)
	}
	return nil
}

// GetImportBatches returns an account's batches, newest first.
func (s *SQLiteStorage) GetImportBatches(ctx context.Context, accountID string) ([]model.ImportBatch, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, sequence, from_date, to_date, status, new_count, duplicate_count, error, created_at
		FROM import_batches
		WHERE account_id = ?
		ORDER BY sequence DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []model.ImportBatch
	for rows.Next() {
		var batch model.ImportBatch
		var status string
		err := rows.Scan(&batch.ID.AccountID, &batch.ID.Sequence, &batch.From, &batch.To,
			&status, &batch.NewCount, &batch.DuplicateCount, &batch.Error, &batch.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batch.Status = model.BatchStatus(status)
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}
