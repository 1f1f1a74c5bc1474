package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfourney/divvy/internal/common"
	"github.com/jfourney/divvy/internal/model"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// GetCategories returns all active categories ordered by name.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, parent_id, external_id, is_active, created_at
		FROM categories WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}
	return categories, rows.Err()
}

// GetCategoryByName loads one category by name, or common.ErrNotFound.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id, external_id, is_active, created_at
		FROM categories WHERE name = ?`, name)

	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %q", common.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category %q: %w", name, err)
	}
	return cat, nil
}

// CreateCategory inserts a new category and returns it.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name string, parentID *int) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, parent_id) VALUES (?, ?)`, name, parentID)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, fmt.Errorf("%w: category %q", common.ErrDuplicateEntry, name)
		}
		return nil, fmt.Errorf("failed to create category %q: %w", name, err)
	}

	return s.GetCategoryByName(ctx, name)
}

func scanCategory(row scanner) (*model.Category, error) {
	var cat model.Category
	var parentID sql.NullInt64
	err := row.Scan(&cat.ID, &cat.Name, &parentID, &cat.ExternalID, &cat.IsActive, &cat.CreatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		p := int(parentID.Int64)
		cat.ParentID = &p
	}
	return &cat, nil
}
