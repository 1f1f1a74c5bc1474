// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// TransactionID is the composite key identifying a transaction: the account it
// was imported for plus the identifier the bank provider assigned to it.
type TransactionID struct {
	AccountID    string
	ProviderTxID string
}

// NewTransactionID builds a composite id from its parts.
func NewTransactionID(accountID, providerTxID string) TransactionID {
	return TransactionID{AccountID: accountID, ProviderTxID: providerTxID}
}

// String renders the id in its canonical "account/provider-id" form.
func (id TransactionID) String() string {
	return fmt.Sprintf("%s/%s", id.AccountID, id.ProviderTxID)
}

// IsZero reports whether either component of the id is missing.
func (id TransactionID) IsZero() bool {
	return strings.TrimSpace(id.AccountID) == "" || strings.TrimSpace(id.ProviderTxID) == ""
}

// Transaction represents a single bank movement. It is created once at import
// time and never mutated or deleted afterwards; all workflow state lives on the
// ProcessingState that shares its id.
type Transaction struct {
	Date           time.Time
	ImportedAt     time.Time
	ID             TransactionID
	Currency       string
	Counterparty   string  // Counterparty name as reported by the bank
	CounterAccount string  // Counterparty IBAN/account number, if available
	Memo           string  // Free-text description from the bank
	Type           string  // Raw transaction type (e.g., DEBIT, SEPA, ATM)
	Amount         float64 // Signed: negative for outgoing, positive for incoming
}

// DescriptionText returns the text categorization should operate on: the
// counterparty name when present, the raw memo otherwise.
func (t *Transaction) DescriptionText() string {
	if strings.TrimSpace(t.Counterparty) != "" {
		return t.Counterparty
	}
	return t.Memo
}

// RawTransaction is a provider-shaped transaction before it has been admitted
// to the store. The import workflow converts it into a Transaction.
type RawTransaction struct {
	Date           time.Time
	ProviderTxID   string
	Currency       string
	Counterparty   string
	CounterAccount string
	Memo           string
	Type           string
	Amount         float64
}
