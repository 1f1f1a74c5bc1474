package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SaveTransaction inserts an immutable transaction. Saving an id that already
// exists fails with common.ErrDuplicateEntry; transactions are never updated.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(account_id, provider_tx_id, date, amount, currency, counterparty, counter_account, memo, type, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID.AccountID, txn.ID.ProviderTxID, txn.Date, txn.Amount, txn.Currency,
		txn.Counterparty, txn.CounterAccount, txn.Memo, txn.Type, txn.ImportedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: transaction %s", common.ErrDuplicateEntry, txn.ID)
		}
		return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
	}
	return nil
}

// GetTransaction loads a transaction by composite id, or common.ErrNotFound.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id model.TransactionID) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTransactionID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT account_id, provider_tx_id, date, amount, currency, counterparty, counter_account, memo, type, imported_at
		FROM transactions
		WHERE account_id = ? AND provider_tx_id = ?`,
		id.AccountID, id.ProviderTxID)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	return txn, nil
}

// FindTransactions returns transactions matching the filter, newest first.
func (s *SQLiteStorage) FindTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT account_id, provider_tx_id, date, amount, currency, counterparty, counter_account, memo, type, imported_at
		FROM transactions`
	var conditions []string
	var args []any

	if filter.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "date <= ?")
		args = append(args, *filter.EndDate)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY date DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for shared scanning code.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	err := row.Scan(
		&txn.ID.AccountID, &txn.ID.ProviderTxID, &txn.Date, &txn.Amount, &txn.Currency,
		&txn.Counterparty, &txn.CounterAccount, &txn.Memo, &txn.Type, &txn.ImportedAt)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}
