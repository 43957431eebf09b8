package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sfm-market/storefront/types"
)

const productColumns = `id, owner_id, category_id, name, description, price, unit, image_url, images, created_at, updated_at`

// ProductRepository handles persistence for catalog products.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFilter narrows List. Empty fields match every product.
type ProductFilter struct {
	OwnerID    string
	CategoryID string
}

// List returns a page of products matching filter, newest first, along with
// the total count.
func (r *ProductRepository) List(ctx context.Context, filter ProductFilter, offset, limit int) ([]types.Product, int, error) {
	for _, id := range []string{filter.OwnerID, filter.CategoryID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return []types.Product{}, 0, nil
		}
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const where = `WHERE ($1 = '' OR owner_id::text = $1) AND ($2 = '' OR category_id::text = $2)`

	const countQuery = `SELECT COUNT(1) FROM products ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, filter.OwnerID, filter.CategoryID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `SELECT ` + productColumns + `
		FROM products
		` + where + `
		ORDER BY created_at DESC, id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, filter.OwnerID, filter.CategoryID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]types.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (types.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.Product{}, ErrNotFound
	}
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Create(ctx context.Context, product types.Product) (types.Product, error) {
	now := time.Now().UTC()
	product.ID = uuid.NewString()
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Images == nil {
		product.Images = []string{}
	}

	imagesJSON, err := json.Marshal(product.Images)
	if err != nil {
		return types.Product{}, err
	}

	const query = `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.OwnerID,
		product.CategoryID,
		product.Name,
		product.Description,
		product.Price,
		product.Unit,
		product.ImageURL,
		imagesJSON,
		product.CreatedAt,
		product.UpdatedAt,
	); err != nil {
		return types.Product{}, translate(err)
	}
	return product, nil
}

// Update overwrites the editable columns. The owner is never reassigned.
func (r *ProductRepository) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now().UTC()
	if product.Images == nil {
		product.Images = []string{}
	}

	imagesJSON, err := json.Marshal(product.Images)
	if err != nil {
		return types.Product{}, err
	}

	const query = `
		UPDATE products
		SET category_id = $1,
			name = $2,
			description = $3,
			price = $4,
			unit = $5,
			image_url = $6,
			images = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		product.CategoryID,
		product.Name,
		product.Description,
		product.Price,
		product.Unit,
		product.ImageURL,
		imagesJSON,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return types.Product{}, translate(err)
	}
	if err := expectAffected(result.RowsAffected()); err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM products WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result.RowsAffected())
}

func scanProduct(row rowScanner) (types.Product, error) {
	var product types.Product
	var imagesJSON []byte
	if err := row.Scan(
		&product.ID,
		&product.OwnerID,
		&product.CategoryID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Unit,
		&product.ImageURL,
		&imagesJSON,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return types.Product{}, err
	}
	_ = json.Unmarshal(imagesJSON, &product.Images)
	if product.Images == nil {
		product.Images = []string{}
	}
	return product, nil
}
