package model

import (
	"fmt"
	"time"
)

// BatchStatus tracks the lifecycle of one import invocation.
type BatchStatus string

// Batch status constants.
const (
	BatchNotStarted BatchStatus = "NOT_STARTED"
	BatchInProgress BatchStatus = "IN_PROGRESS"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchError      BatchStatus = "ERROR"
)

// BatchID identifies an import batch: the account it ran for plus a
// per-account sequence number that increases monotonically.
type BatchID struct {
	AccountID string
	Sequence  int64
}

// String renders the id as "account#sequence".
func (id BatchID) String() string {
	return fmt.Sprintf("%s#%d", id.AccountID, id.Sequence)
}

// ImportBatch summarizes one invocation of the import workflow over a date
// range for one account.
type ImportBatch struct {
	CreatedAt      time.Time
	From           time.Time
	To             time.Time
	ID             BatchID
	Status         BatchStatus
	Error          string
	NewCount       int
	DuplicateCount int
}
