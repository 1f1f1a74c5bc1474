package model

import (
	"errors"
	"fmt"
	"time"
)

// ProcessingStatus tracks how far a transaction has moved through the
// import → categorize → submit pipeline.
type ProcessingStatus string

// Processing status constants.
const (
	StatusImported    ProcessingStatus = "IMPORTED"
	StatusCategorized ProcessingStatus = "CATEGORIZED"
	StatusSubmitted   ProcessingStatus = "SUBMITTED"
	StatusFailed      ProcessingStatus = "FAILED"
)

// ErrIllegalTransition indicates a status change the state machine forbids.
var ErrIllegalTransition = errors.New("illegal status transition")

// ProcessingState is the mutable workflow state attached one-to-one to a
// Transaction by composite id. The transaction itself never changes; every
// categorization and submission outcome is recorded here.
type ProcessingState struct {
	ProcessedAt          *time.Time
	SubmittedAt          *time.Time
	ID                   TransactionID
	Status               ProcessingStatus
	SuggestedPayee       string
	SuggestedCategory    string
	SuggestedMemo        string
	OverridePayee        string
	OverrideCategory     string
	OverrideMemo         string
	ExternalSubmissionID string
	ExternalAccountID    string
	LastError            string
	PayeeConfidence      ConfidenceScore
	CategoryConfidence   ConfidenceScore
	IsDuplicate          bool
}

// NewProcessingState creates the initial state for a freshly imported
// transaction.
func NewProcessingState(id TransactionID) *ProcessingState {
	return &ProcessingState{
		ID:     id,
		Status: StatusImported,
	}
}

// EffectivePayee returns the user override when set, the suggestion otherwise.
func (s *ProcessingState) EffectivePayee() string {
	if s.OverridePayee != "" {
		return s.OverridePayee
	}
	return s.SuggestedPayee
}

// EffectiveCategory returns the user override when set, the suggestion otherwise.
func (s *ProcessingState) EffectiveCategory() string {
	if s.OverrideCategory != "" {
		return s.OverrideCategory
	}
	return s.SuggestedCategory
}

// EffectiveMemo returns the user override when set, the suggestion otherwise.
func (s *ProcessingState) EffectiveMemo() string {
	if s.OverrideMemo != "" {
		return s.OverrideMemo
	}
	return s.SuggestedMemo
}

// HasReliableCategory reports whether a category is present with confidence at
// or above the reliable threshold.
func (s *ProcessingState) HasReliableCategory() bool {
	return s.EffectiveCategory() != "" && s.CategoryConfidence.IsReliable()
}

// MarkCategorized transitions the state to Categorized. Only an Imported state
// may be categorized, and only when a category value is present.
func (s *ProcessingState) MarkCategorized(now time.Time) error {
	if s.Status != StatusImported {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, StatusCategorized)
	}
	if s.EffectiveCategory() == "" {
		return fmt.Errorf("%w: cannot categorize without a category", ErrIllegalTransition)
	}
	s.Status = StatusCategorized
	s.ProcessedAt = &now
	s.LastError = ""
	return nil
}

// MarkSubmitted transitions the state to Submitted, recording the identifiers
// the budgeting service assigned. Submitted is terminal.
func (s *ProcessingState) MarkSubmitted(externalID, externalAccountID string, now time.Time) error {
	if s.Status != StatusCategorized {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, StatusSubmitted)
	}
	s.Status = StatusSubmitted
	s.ExternalSubmissionID = externalID
	s.ExternalAccountID = externalAccountID
	s.SubmittedAt = &now
	s.LastError = ""
	return nil
}

// MarkFailed records a processing error. Submitted is terminal and cannot
// fail; every other status may.
func (s *ProcessingState) MarkFailed(reason string) error {
	if s.Status == StatusSubmitted {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, StatusFailed)
	}
	s.Status = StatusFailed
	s.LastError = reason
	return nil
}

// Retry exits the Failed status by recomputing the last legal status from the
// evidence on the state: a state that was already categorized returns to
// Categorized, anything else returns to Imported. Failure state is not
// persisted as history; the error message is kept for diagnostics.
func (s *ProcessingState) Retry() error {
	if s.Status != StatusFailed {
		return fmt.Errorf("%w: retry from %s", ErrIllegalTransition, s.Status)
	}
	if s.ProcessedAt != nil && s.EffectiveCategory() != "" {
		s.Status = StatusCategorized
	} else {
		s.Status = StatusImported
	}
	return nil
}

// SubmitBlockers returns the reasons this state cannot be submitted, in a
// stable order. An empty slice means the state is eligible. The external
// account mapping comes from the owning account record, so the caller supplies
// it.
func (s *ProcessingState) SubmitBlockers(externalAccountID string) []string {
	var blockers []string
	if s.Status != StatusCategorized {
		blockers = append(blockers, fmt.Sprintf("status is %s, want %s", s.Status, StatusCategorized))
	}
	if s.IsDuplicate {
		blockers = append(blockers, "transaction is a duplicate")
	}
	if s.EffectivePayee() == "" {
		blockers = append(blockers, "missing payee")
	}
	if s.EffectiveCategory() == "" {
		blockers = append(blockers, "missing category")
	}
	if externalAccountID == "" {
		blockers = append(blockers, "missing external account mapping")
	}
	return blockers
}
