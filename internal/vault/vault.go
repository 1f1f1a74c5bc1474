package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jfourney/divvy/internal/model"
	"github.com/jfourney/divvy/internal/service"
)

// DefaultTTL is how long a decrypted token stays in the cache.
const DefaultTTL = 5 * time.Minute

// cacheEntry holds one decrypted token and its expiry.
type cacheEntry struct {
	expiry time.Time
	token  string
}

// Vault protects bank API tokens: encrypted at rest, decrypted on demand,
// cached in memory with a TTL, with every access recorded in the audit log.
type Vault struct {
	store   service.Storage
	now     func() time.Time
	entries map[string]cacheEntry
	secret  string
	ttl     time.Duration
	mu      sync.Mutex
}

// New creates a vault backed by the given storage. A non-positive ttl falls
// back to DefaultTTL.
func New(store service.Storage, secret string, ttl time.Duration) *Vault {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Vault{
		store:   store,
		secret:  secret,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// StoreToken encrypts and persists a token for an account, dropping any
// cached plaintext so the next read reflects the rotation.
func (v *Vault) StoreToken(ctx context.Context, accountID, plaintext string) error {
	encrypted, err := encryptToken(plaintext, v.secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt token for %s: %w", accountID, err)
	}

	cred := &model.Credential{
		AccountID:      accountID,
		EncryptedToken: encrypted,
		UpdatedAt:      v.now().UTC(),
	}
	if err := v.store.SaveCredential(ctx, cred); err != nil {
		return err
	}

	v.mu.Lock()
	delete(v.entries, accountID)
	v.mu.Unlock()

	return nil
}

// GetToken returns the decrypted token for an account. A live cache entry is
// returned directly (CacheHit audit event, no store read); otherwise the
// encrypted record is loaded, decrypted, and cached with a fresh expiry
// (Access audit event). The check and the refresh happen under one lock so a
// concurrent invalidation can never hand back a stale token.
func (v *Vault) GetToken(ctx context.Context, accountID string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if entry, ok := v.entries[accountID]; ok && v.now().Before(entry.expiry) {
		if err := v.audit(ctx, model.AuditCacheHit, accountID, "token served from cache"); err != nil {
			return "", err
		}
		return entry.token, nil
	}

	cred, err := v.store.GetCredential(ctx, accountID)
	if err != nil {
		return "", err
	}

	token, err := decryptToken(cred.EncryptedToken, v.secret)
	if err != nil {
		return "", fmt.Errorf("account %s: %w", accountID, err)
	}

	v.entries[accountID] = cacheEntry{
		token:  token,
		expiry: v.now().Add(v.ttl),
	}

	now := v.now().UTC()
	cred.LastFetchedAt = &now
	if err := v.store.SaveCredential(ctx, cred); err != nil {
		return "", err
	}

	if err := v.audit(ctx, model.AuditAccess, accountID, "token decrypted from store"); err != nil {
		return "", err
	}
	return token, nil
}

// InvalidateCache drops the cached plaintext for an account, forcing the next
// GetToken to read and decrypt from the store.
func (v *Vault) InvalidateCache(ctx context.Context, accountID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.entries, accountID)
	return v.audit(ctx, model.AuditInvalidate, accountID, "cache entry invalidated")
}

func (v *Vault) audit(ctx context.Context, kind model.AuditEventKind, accountID, message string) error {
	return v.store.AppendAuditEvent(ctx, &model.AuditEvent{
		EventID:   uuid.NewString(),
		Kind:      kind,
		AccountID: accountID,
		Message:   message,
		Timestamp: v.now().UTC(),
	})
}
