package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrCategoryNotFound = errors.New("category not found")

// CategoryRepository defines the interface for category data access.
// Categories are plain names kept in insertion order.
type CategoryRepository interface {
	List(ctx context.Context) ([]string, error)
	ReplaceAll(ctx context.Context, names []string) error
	Exists(ctx context.Context, name string) (bool, error)
}

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// List retrieves all category names in their stored order
func (r *categoryRepository) List(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT name FROM categories ORDER BY position ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, name)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// ReplaceAll swaps the whole category set. Callers run it inside a
// transaction so readers never observe a partial set.
func (r *categoryRepository) ReplaceAll(ctx context.Context, names []string) error {
	q := conn(ctx, r.db)

	if _, err := q.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}

	now := time.Now().UTC()
	for i, name := range names {
		_, err := q.ExecContext(ctx,
			`INSERT INTO categories (name, position, created_at) VALUES ($1, $2, $3)`,
			name, i, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert category %q: %w", name, err)
		}
	}

	return nil
}

// Exists reports whether a category with the given name is defined
func (r *categoryRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM categories WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check category: %w", err)
	}
	return exists, nil
}
