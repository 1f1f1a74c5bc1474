package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

// SaveAccount upserts an account record.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if err := validateString(account.ID, "account.ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, bank_identifier, currency, external_account_id, is_active, last_sync_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			bank_identifier = excluded.bank_identifier,
			currency = excluded.currency,
			external_account_id = excluded.external_account_id,
			is_active = excluded.is_active,
			last_sync_at = excluded.last_sync_at`,
		account.ID, account.BankIdentifier, account.Currency,
		account.ExternalAccountID, account.IsActive, account.LastSyncAt)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccount loads an account by id, or common.ErrNotFound.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, bank_identifier, currency, external_account_id, is_active, last_sync_at, created_at
		FROM accounts WHERE id = ?`, id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}
	return account, nil
}

// ListAccounts returns all accounts, active first.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bank_identifier, currency, external_account_id, is_active, last_sync_at, created_at
		FROM accounts ORDER BY is_active DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

func scanAccount(row scanner) (*model.Account, error) {
	var account model.Account
	err := row.Scan(&account.ID, &account.BankIdentifier, &account.Currency,
		&account.ExternalAccountID, &account.IsActive, &account.LastSyncAt, &account.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
