package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
)

// Submitter pushes eligible categorized transactions to the budgeting
// service. The status gate gives at-most-once submission: only Categorized
// states are candidates, and success flips the status away from Categorized.
type Submitter struct {
	store service.Storage
	port  service.TransactionSubmissionPort
	now   func() time.Time
	retry service.RetryOptions
}

// DefaultSubmitRetry returns the default retry policy for submission calls.
func DefaultSubmitRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// NewSubmitter creates a submission workflow.
func NewSubmitter(store service.Storage, port service.TransactionSubmissionPort, retry service.RetryOptions) *Submitter {
	return &Submitter{
		store: store,
		port:  port,
		retry: retry,
		now:   time.Now,
	}
}

// Run submits every candidate processing state for an account (all accounts
// when accountID is empty). A candidate blocked by a missing field is refused
// and reported, status unchanged; a submission that exhausts its retry budget
// moves to Failed. Nothing is partially applied.
func (s *Submitter) Run(ctx context.Context, accountID string) (*service.SubmitResult, error) {
	states, err := s.store.FindSubmissionCandidates(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if len(states) == 0 {
		slog.Info("No submission candidates", "account", accountID)
		return &service.SubmitResult{}, nil
	}

	slog.Info("Submitting transactions", "account", accountID, "count", len(states))

	var result service.SubmitResult
	for idx := range states {
		state := states[idx]
		if err := s.submitOne(ctx, &state); err != nil {
			result.Failures = append(result.Failures, service.ItemFailure{
				ID:     state.ID,
				Reason: err.Error(),
			})
			continue
		}
		result.Submitted++
	}

	slog.Info("Submission completed",
		"account", accountID,
		"submitted", result.Submitted,
		"failures", len(result.Failures))

	return &result, nil
}

func (s *Submitter) submitOne(ctx context.Context, state *model.ProcessingState) error {
	account, err := s.store.GetAccount(ctx, state.ID.AccountID)
	if err != nil {
		return err
	}

	// Refuse rather than coerce: a missing payee, category or account mapping
	// keeps the state Categorized so the user can fill the gap and rerun.
	if blockers := state.SubmitBlockers(account.ExternalAccountID); len(blockers) > 0 {
		state.LastError = strings.Join(blockers, "; ")
		if saveErr := s.store.SaveProcessingState(ctx, state); saveErr != nil {
			return saveErr
		}
		return fmt.Errorf("%w: %s", common.ErrValidation, strings.Join(blockers, "; "))
	}

	txn, err := s.store.GetTransaction(ctx, state.ID)
	if err != nil {
		return err
	}

	req := service.SubmissionRequest{
		ExternalAccountID: account.ExternalAccountID,
		Date:              txn.Date,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Payee:             state.EffectivePayee(),
		Category:          state.EffectiveCategory(),
		Memo:              state.EffectiveMemo(),
		ImportID:          "divvy:" + state.ID.String(),
	}

	var externalID string
	err = common.WithRetry(ctx, func() error {
		var callErr error
		externalID, callErr = s.port.Submit(ctx, req)
		return callErr
	}, s.retry)
	if err != nil {
		if errors.Is(err, common.ErrMaxRetries) {
			// Out of retry budget: park as Failed until an explicit retry.
			if failErr := state.MarkFailed(err.Error()); failErr != nil {
				return failErr
			}
		} else {
			// Still eligible on a later run: status stays Categorized.
			state.LastError = err.Error()
		}
		if saveErr := s.store.SaveProcessingState(ctx, state); saveErr != nil {
			slog.Error("Failed to record submission error", "id", state.ID.String(), "error", saveErr)
		}
		return fmt.Errorf("submission for %s: %w", state.ID, err)
	}

	if err := state.MarkSubmitted(externalID, account.ExternalAccountID, s.now().UTC()); err != nil {
		return err
	}
	if err := s.store.SaveProcessingState(ctx, state); err != nil {
		return err
	}

	slog.Debug("Transaction submitted", "id", state.ID.String(), "external_id", externalID)
	return nil
}
