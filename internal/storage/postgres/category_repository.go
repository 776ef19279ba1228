package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TangB5/restaurant/internal/domain"
)

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository создаёт PostgreSQL-реализацию CategoryRepository.
func NewCategoryRepository(store *Store) domain.CategoryRepository {
	return &categoryRepository{db: store.DB()}
}

func (r *categoryRepository) Create(category domain.Category) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (
			id, name, description, display_order, active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		category.ID, category.Name, category.Description,
		category.DisplayOrder, category.Active, category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDishVersionConflict
		}
		return fmt.Errorf("insert category: %w", err)
	}

	return nil
}

func (r *categoryRepository) Get(id string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var category domain.Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, display_order, active, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(
		&category.ID, &category.Name, &category.Description,
		&category.DisplayOrder, &category.Active, &category.CreatedAt, &category.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}

	return category, nil
}

func (r *categoryRepository) List() ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, display_order, active, created_at, updated_at
		FROM categories
		WHERE active
		ORDER BY display_order, LOWER(name)
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(
			&category.ID, &category.Name, &category.Description,
			&category.DisplayOrder, &category.Active, &category.CreatedAt, &category.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}

	return categories, nil
}

var _ domain.CategoryRepository = (*categoryRepository)(nil)
