package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sfm-market/storefront/types"
)

const categoryColumns = `id, owner_id, name, description, image_url, created_at, updated_at`

// CategoryRepository handles persistence for catalog categories.
type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) List(ctx context.Context) ([]types.Category, error) {
	const query = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []types.Category{}
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (types.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Category{}, ErrNotFound
	}
	const query = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	category, err := scanCategory(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return category, nil
}

func (r *CategoryRepository) Create(ctx context.Context, category types.Category) (types.Category, error) {
	now := time.Now().UTC()
	category.ID = uuid.NewString()
	category.CreatedAt = now
	category.UpdatedAt = now

	const query = `
		INSERT INTO categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		category.ID,
		category.OwnerID,
		category.Name,
		category.Description,
		category.ImageURL,
		category.CreatedAt,
		category.UpdatedAt,
	); err != nil {
		return types.Category{}, translate(err)
	}
	return category, nil
}

func (r *CategoryRepository) Update(ctx context.Context, category types.Category) (types.Category, error) {
	category.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE categories
		SET name = $1,
			description = $2,
			image_url = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(
		ctx,
		query,
		category.Name,
		category.Description,
		category.ImageURL,
		category.UpdatedAt,
		category.ID,
	)
	if err != nil {
		return types.Category{}, translate(err)
	}
	if err := expectAffected(result.RowsAffected()); err != nil {
		return types.Category{}, err
	}
	return category, nil
}

// Delete removes the category. Categories still referenced by products
// fail with ErrConflict.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM categories WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result.RowsAffected())
}

func scanCategory(row rowScanner) (types.Category, error) {
	var category types.Category
	if err := row.Scan(
		&category.ID,
		&category.OwnerID,
		&category.Name,
		&category.Description,
		&category.ImageURL,
		&category.CreatedAt,
		&category.UpdatedAt,
	); err != nil {
		return types.Category{}, err
	}
	return category, nil
}
