package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"
)

// SaveRule inserts a new cleanup rule or updates an existing one.
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *model.CleanupRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO cleanup_rules
				(pattern_type, pattern, payee, category, memo, confidence, use_count, success_count, status, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(rule.PatternType), rule.Pattern, rule.Payee, rule.Category, rule.Memo,
			rule.Confidence, rule.UseCount, rule.SuccessCount, string(rule.Status), rule.IsActive)
		if err != nil {
			return fmt.Errorf("failed to insert rule: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read rule id: %w", err)
		}
		rule.ID = id
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE cleanup_rules SET
			pattern_type = ?, pattern = ?, payee = ?, category = ?, memo = ?,
			confidence = ?, use_count = ?, success_count = ?, status = ?, is_active = ?,
			updated_at = ?
		WHERE id = ?`,
		string(rule.PatternType), rule.Pattern, rule.Payee, rule.Category, rule.Memo,
		rule.Confidence, rule.UseCount, rule.SuccessCount, string(rule.Status), rule.IsActive,
		time.Now().UTC(), rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule %d: %w", rule.ID, err)
	}
	return nil
}

// GetRule loads one rule by id, or common.ErrNotFound.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.CleanupRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule %d: %w", id, err)
	}
	return rule, nil
}

// GetActiveRules returns the approved, active rules ready for matching.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.CleanupRule, error) {
	return s.queryRules(ctx, ruleSelect+` WHERE status = ? AND is_active = 1 ORDER BY id ASC`,
		string(model.RuleApproved))
}

// GetPendingRules returns AI-suggested rules awaiting human approval.
func (s *SQLiteStorage) GetPendingRules(ctx context.Context) ([]model.CleanupRule, error) {
	return s.queryRules(ctx, ruleSelect+` WHERE status = ? ORDER BY created_at ASC`,
		string(model.RulePending))
}

// ApproveRule flips a pending rule to approved.
func (s *SQLiteStorage) ApproveRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cleanup_rules SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.RuleApproved), time.Now().UTC(), id, string(model.RulePending))
	if err != nil {
		return fmt.Errorf("failed to approve rule %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check approval of rule %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending rule %d", common.ErrNotFound, id)
	}
	return nil
}

// RecordRuleUse increments a rule's use count, and its success count when the
// application stuck without a user override.
func (s *SQLiteStorage) RecordRuleUse(ctx context.Context, id int64, success bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	successInc := 0
	if success {
		successInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE cleanup_rules
		SET use_count = use_count + 1, success_count = success_count + ?, updated_at = ?
		WHERE id = ?`,
		successInc, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record use of rule %d: %w", id, err)
	}
	return nil
}

const ruleSelect = `
	SELECT id, pattern_type, pattern, payee, category, memo,
	       confidence, use_count, success_count, status, is_active, created_at, updated_at
	FROM cleanup_rules`

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.CleanupRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CleanupRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func scanRule(row scanner) (*model.CleanupRule, error) {
	var rule model.CleanupRule
	var patternType, status string
	err := row.Scan(&rule.ID, &patternType, &rule.Pattern, &rule.Payee, &rule.Category, &rule.Memo,
		&rule.Confidence, &rule.UseCount, &rule.SuccessCount, &status, &rule.IsActive,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule.PatternType = model.RulePatternType(patternType)
	rule.Status = model.RuleStatus(status)
	return &rule, nil
}
