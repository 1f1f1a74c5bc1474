package model

import "time"

// Credential holds the encrypted bank API token for one account. The
// plaintext never touches the database; it exists only inside the vault's
// in-memory cache.
type Credential struct {
	UpdatedAt      time.Time
	LastFetchedAt  *time.Time
	LastSyncAt     *time.Time
	AccountID      string
	EncryptedToken string // base64(IV || AES-256-CBC ciphertext)
}

// AuditEventKind identifies what happened to a credential.
type AuditEventKind string

// Audit event kinds.
const (
	AuditAccess     AuditEventKind = "ACCESS"
	AuditCacheHit   AuditEventKind = "CACHE_HIT"
	AuditInvalidate AuditEventKind = "INVALIDATE"
)

// AuditEvent records one access to the credential vault. Events are
// append-only and never mutated.
type AuditEvent struct {
	Timestamp time.Time
	EventID   string
	Kind      AuditEventKind
	AccountID string
	Message   string
}
