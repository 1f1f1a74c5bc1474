package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

// SaveCredential upserts the encrypted credential record for an account.
func (s *SQLiteStorage) SaveCredential(ctx context.Context, cred *model.Credential) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if cred == nil {
		return fmt.Errorf("%w: credential", ErrNilParameter)
	}
	if err := validateString(cred.AccountID, "credential.AccountID"); err != nil {
		return err
	}
	if err := validateString(cred.EncryptedToken, "credential.EncryptedToken"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (account_id, encrypted_token, last_fetched_at, last_sync_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			last_fetched_at = excluded.last_fetched_at,
			last_sync_at = excluded.last_sync_at,
			updated_at = excluded.updated_at`,
		cred.AccountID, cred.EncryptedToken, cred.LastFetchedAt, cred.LastSyncAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential for %s: %w", cred.AccountID, err)
	}
	return nil
}

// GetCredential loads the credential record for an account, or
// common.ErrNotFound.
func (s *SQLiteStorage) GetCredential(ctx context.Context, accountID string) (*model.Credential, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	var cred model.Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, encrypted_token, last_fetched_at, last_sync_at, updated_at
		FROM credentials WHERE account_id = ?`, accountID).
		Scan(&cred.AccountID, &cred.EncryptedToken, &cred.LastFetchedAt, &cred.LastSyncAt, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: credential for account %s", common.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for %s: %w", accountID, err)
	}
	return &cred, nil
}
