package model

import "time"

// Account represents a bank account transactions are imported for, along with
// its mapping into the budgeting service.
type Account struct {
	CreatedAt         time.Time
	LastSyncAt        *time.Time
	ID                string
	BankIdentifier    string // IBAN or provider-side account id
	Currency          string
	ExternalAccountID string // Budgeting service account id; empty until mapped
	IsActive          bool
}
