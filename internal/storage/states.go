package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

// SaveProcessingState upserts the processing state for a transaction. The
// write fully replaces the prior row for the composite key.
func (s *SQLiteStorage) SaveProcessingState(ctx context.Context, state *model.ProcessingState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateState(state); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_states
			(account_id, provider_tx_id, status, is_duplicate,
			 suggested_payee, suggested_category, suggested_memo,
			 payee_confidence, category_confidence,
			 override_payee, override_category, override_memo,
			 external_submission_id, external_account_id, last_error,
			 processed_at, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, provider_tx_id) DO UPDATE SET
			status = excluded.status,
			is_duplicate = excluded.is_duplicate,
			suggested_payee = excluded.suggested_payee,
			suggested_category = excluded.suggested_category,
			suggested_memo = excluded.suggested_memo,
			payee_confidence = excluded.payee_confidence,
			category_confidence = excluded.category_confidence,
			override_payee = excluded.override_payee,
			override_category = excluded.override_category,
			override_memo = excluded.override_memo,
			external_submission_id = excluded.external_submission_id,
			external_account_id = excluded.external_account_id,
			last_error = excluded.last_error,
			processed_at = excluded.processed_at,
			submitted_at = excluded.submitted_at`,
		state.ID.AccountID, state.ID.ProviderTxID, string(state.Status), state.IsDuplicate,
		state.SuggestedPayee, state.SuggestedCategory, state.SuggestedMemo,
		state.PayeeConfidence.Value(), state.CategoryConfidence.Value(),
		state.OverridePayee, state.OverrideCategory, state.OverrideMemo,
		state.ExternalSubmissionID, state.ExternalAccountID, state.LastError,
		state.ProcessedAt, state.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to save processing state %s: %w", state.ID, err)
	}
	return nil
}

// GetProcessingState loads the state for a transaction, or common.ErrNotFound.
func (s *SQLiteStorage) GetProcessingState(ctx context.Context, id model.TransactionID) (*model.ProcessingState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateTransactionID(id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, stateSelect+`
		WHERE s.account_id = ? AND s.provider_tx_id = ?`,
		id.AccountID, id.ProviderTxID)

	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: processing state %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load processing state %s: %w", id, err)
	}
	return state, nil
}

// FindStatesByStatus returns the states for one account in the given status,
// oldest transaction first. An empty accountID matches all accounts.
func (s *SQLiteStorage) FindStatesByStatus(ctx context.Context, accountID string, status model.ProcessingStatus) ([]model.ProcessingState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := stateSelect + `
		JOIN transactions t ON t.account_id = s.account_id AND t.provider_tx_id = s.provider_tx_id
		WHERE s.status = ?`
	args := []any{string(status)}
	if accountID != "" {
		query += ` AND s.account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY t.date ASC`

	return s.queryStates(ctx, query, args...)
}

// FindSubmissionCandidates returns the Categorized, non-duplicate states for
// an account in transaction-date order. Field-level eligibility (payee,
// category, external mapping) is the workflow's job, so blocked candidates
// surface as per-item failures instead of silently dropping out here. An
// empty accountID matches all accounts.
func (s *SQLiteStorage) FindSubmissionCandidates(ctx context.Context, accountID string) ([]model.ProcessingState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := stateSelect + `
		JOIN transactions t ON t.account_id = s.account_id AND t.provider_tx_id = s.provider_tx_id
		WHERE s.status = ?
		  AND s.is_duplicate = 0`
	args := []any{string(model.StatusCategorized)}
	if accountID != "" {
		query += ` AND s.account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY t.date ASC`

	return s.queryStates(ctx, query, args...)
}

const stateSelect = `
	SELECT s.account_id, s.provider_tx_id, s.status, s.is_duplicate,
	       s.suggested_payee, s.suggested_category, s.suggested_memo,
	       s.payee_confidence, s.category_confidence,
	       s.override_payee, s.override_category, s.override_memo,
	       s.external_submission_id, s.external_account_id, s.last_error,
	       s.processed_at, s.submitted_at
	FROM processing_states s`

func (s *SQLiteStorage) queryStates(ctx context.Context, query string, args ...any) ([]model.ProcessingState, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []model.ProcessingState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing state: %w", err)
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

func scanState(row scanner) (*model.ProcessingState, error) {
	var state model.ProcessingState
	var status string
	var payeeConf, catConf float64
	err := row.Scan(
		&state.ID.AccountID, &state.ID.ProviderTxID, &status, &state.IsDuplicate,
		&state.SuggestedPayee, &state.SuggestedCategory, &state.SuggestedMemo,
		&payeeConf, &catConf,
		&state.OverridePayee, &state.OverrideCategory, &state.OverrideMemo,
		&state.ExternalSubmissionID, &state.ExternalAccountID, &state.LastError,
		&state.ProcessedAt, &state.SubmittedAt)
	if err != nil {
		return nil, err
	}
	state.Status = model.ProcessingStatus(status)
	state.PayeeConfidence = model.NewConfidenceScore(payeeConf)
	state.CategoryConfidence = model.NewConfidenceScore(catConf)
	return &state, nil
}
