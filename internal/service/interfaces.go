// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/jfourney/divvy/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	AccountID string
	Limit     int
}

// Storage defines the contract for the persistence layer. All writes are
// atomic upserts keyed by the record's id: a save either fully replaces the
// prior value or fails.
type Storage interface {
	// Transaction operations. Transactions are immutable: SaveTransaction on
	// an existing id fails with ErrDuplicateEntry.
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id model.TransactionID) (*model.Transaction, error)
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)

	// Processing state operations.
	SaveProcessingState(ctx context.Context, state *model.ProcessingState) error
	GetProcessingState(ctx context.Context, id model.TransactionID) (*model.ProcessingState, error)
	FindStatesByStatus(ctx context.Context, accountID string, status model.ProcessingStatus) ([]model.ProcessingState, error)
	FindSubmissionCandidates(ctx context.Context, accountID string) ([]model.ProcessingState, error)

	// Account operations.
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)

	// Category operations.
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name string, parentID *int) (*model.Category, error)

	// Cleanup rule operations.
	SaveRule(ctx context.Context, rule *model.CleanupRule) error
	GetRule(ctx context.Context, id int64) (*model.CleanupRule, error)
	GetActiveRules(ctx context.Context) ([]model.CleanupRule, error)
	GetPendingRules(ctx context.Context) ([]model.CleanupRule, error)
	ApproveRule(ctx context.Context, id int64) error
	RecordRuleUse(ctx context.Context, id int64, success bool) error

	// Import batch operations.
	NextBatchSequence(ctx context.Context, accountID string) (int64, error)
	SaveImportBatch(ctx context.Context, batch *model.ImportBatch) error
	GetImportBatches(ctx context.Context, accountID string) ([]model.ImportBatch, error)

	// Credential operations.
	SaveCredential(ctx context.Context, cred *model.Credential) error
	GetCredential(ctx context.Context, accountID string) (*model.Credential, error)

	// Audit log operations. The log is append-only.
	AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error
	GetAuditEvents(ctx context.Context, accountID string) ([]model.AuditEvent, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// TransactionProvider is the port to the external bank data source.
type TransactionProvider interface {
	Fetch(ctx context.Context, token string, accountID string, from, to time.Time) ([]model.RawTransaction, error)
}

// CleanupResult is what the categorization provider returns for one
// transaction's text.
type CleanupResult struct {
	RuleSuggestion *model.CleanupRule // optional; stored as pending
	Payee          string
	Category       string
	Memo           string
	Confidence     float64
}

// CategorizationProvider is the port to the external AI categorization
// service.
type CategorizationProvider interface {
	Cleanup(ctx context.Context, text string, txnContext map[string]string) (CleanupResult, error)
}

// SubmissionRequest carries everything the budgeting service needs for one
// transaction.
type SubmissionRequest struct {
	Date              time.Time
	ExternalAccountID string
	Payee             string
	Category          string
	Memo              string
	ImportID          string // stable id for provider-side deduplication
	Currency          string
	Amount            float64
}

// TransactionSubmissionPort is the port to the external budgeting service.
type TransactionSubmissionPort interface {
	Submit(ctx context.Context, req SubmissionRequest) (externalID string, err error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ItemFailure records a per-transaction failure inside a batch run.
type ItemFailure struct {
	Reason string
	ID     model.TransactionID
}

// ImportResult summarizes one run of the import workflow.
type ImportResult struct {
	Batch      model.ImportBatch
	NewCount   int
	Duplicates int
}

// CategorizeResult summarizes one run of the categorization workflow.
type CategorizeResult struct {
	Failures    []ItemFailure
	Categorized int
	ByRule      int
	ByAI        int
	Skipped     int
}

// SubmitResult summarizes one run of the submission workflow.
type SubmitResult struct {
	Failures  []ItemFailure
	Submitted int
}
