package storage

import (
	"context"
	"fmt"

	"github.com/jfourney/divvy/internal/model"
)

// AppendAuditEvent appends one event to the credential audit log. Events are
// never updated or deleted.
func (s *SQLiteStorage) AppendAuditEvent(ctx context.Context, event *model.AuditEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if err := validateString(event.EventID, "event.EventID"); err != nil {
		return err
	}
	if err := validateString(event.AccountID, "event.AccountID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, kind, account_id, message, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		event.EventID, string(event.Kind), event.AccountID, event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// GetAuditEvents returns an account's audit trail in chronological order.
func (s *SQLiteStorage) GetAuditEvents(ctx context.Context, accountID string) ([]model.AuditEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(accountID, "accountID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, account_id, message, timestamp
		FROM audit_log
		WHERE account_id = ?
		ORDER BY timestamp ASC, event_id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.AuditEvent
	for rows.Next() {
		var event model.AuditEvent
		var kind string
		if err := rows.Scan(&event.EventID, &kind, &event.AccountID, &event.Message, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Kind = model.AuditEventKind(kind)
		events = append(events, event)
	}
	return events, rows.Err()
}
