// Package storage provides the data persistence layer for divvy.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfourney/divvy/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidID        = errors.New("invalid composite id")
	ErrInvalidStatus    = errors.New("invalid processing status")
	ErrInvalidDateRange = errors.New("start date must be before end date")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactionID ensures both parts of a composite id are present.
func validateTransactionID(id model.TransactionID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %q", ErrInvalidID, id.String())
	}
	return nil
}

// validateTransaction validates a transaction before persistence.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if err := validateTransactionID(txn.ID); err != nil {
		return err
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: transaction date", ErrNilParameter)
	}
	return nil
}

// validateState validates a processing state before persistence.
func validateState(state *model.ProcessingState) error {
	if state == nil {
		return fmt.Errorf("%w: processing state", ErrNilParameter)
	}
	if err := validateTransactionID(state.ID); err != nil {
		return err
	}
	switch state.Status {
	case model.StatusImported, model.StatusCategorized, model.StatusSubmitted, model.StatusFailed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, state.Status)
	}
	return nil
}

// validateRule validates a cleanup rule before persistence.
func validateRule(rule *model.CleanupRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := validateString(rule.Pattern, "pattern"); err != nil {
		return err
	}
	switch rule.PatternType {
	case model.PatternExact, model.PatternStartsWith, model.PatternContains, model.PatternRegex:
	default:
		return fmt.Errorf("unknown pattern type: %q", rule.PatternType)
	}
	switch rule.Status {
	case model.RuleApproved, model.RulePending:
	default:
		return fmt.Errorf("unknown rule status: %q", rule.Status)
	}
	return nil
}
