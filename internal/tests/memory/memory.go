// Package memory provides in-memory repositories and media storage for
// exercising the HTTP stack without postgres or a bucket.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sfm-market/storefront/internal/storage"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
)

// Calls counts every repository call, so tests can assert that a request
// was rejected before reaching persistence.
type Calls struct {
	n atomic.Int64
}

func (c *Calls) hit()         { c.n.Add(1) }
func (c *Calls) Count() int64 { return c.n.Load() }

// Users is an in-memory users table with a unique email index.
type Users struct {
	Calls *Calls
	mu    sync.Mutex
	rows  map[string]types.User
}

func NewUsers(calls *Calls) *Users {
	return &Users{Calls: calls, rows: map[string]types.User{}}
}

func (u *Users) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	all := make([]types.User, 0, len(u.rows))
	for _, row := range u.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	return page(all, offset, limit), len(all), nil
}

func (u *Users) GetByID(ctx context.Context, id string) (types.User, error) {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	row, ok := u.rows[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return row, nil
}

func (u *Users) GetByEmail(ctx context.Context, email string) (types.User, error) {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range u.rows {
		if row.Email == email {
			return row, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, row := range u.rows {
		if row.Email == user.Email {
			return types.User{}, &store.ConflictError{Constraint: "users_email_key"}
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	u.rows[user.ID] = user
	return user, nil
}

func (u *Users) Update(ctx context.Context, user types.User) (types.User, error) {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	u.rows[user.ID] = user
	return user, nil
}

func (u *Users) Delete(ctx context.Context, id string) error {
	u.Calls.hit()
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(u.rows, id)
	return nil
}

// Products is an in-memory products table.
type Products struct {
	Calls *Calls
	mu    sync.Mutex
	rows  map[string]types.Product
}

func NewProducts(calls *Calls) *Products {
	return &Products{Calls: calls, rows: map[string]types.Product{}}
}

func (p *Products) List(ctx context.Context, filter store.ProductFilter, offset, limit int) ([]types.Product, int, error) {
	p.Calls.hit()
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []types.Product
	for _, row := range p.rows {
		if (filter.OwnerID == "" || row.OwnerID == filter.OwnerID) &&
			(filter.CategoryID == "" || row.CategoryID == filter.CategoryID) {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, offset, limit), len(all), nil
}

func (p *Products) Get(ctx context.Context, id string) (types.Product, error) {
	p.Calls.hit()
	p.mu.Lock()
	defer p.mu.Unlock()
	row, ok := p.rows[id]
	if !ok {
		return types.Product{}, store.ErrNotFound
	}
	return row, nil
}

func (p *Products) Create(ctx context.Context, product types.Product) (types.Product, error) {
	p.Calls.hit()
	p.mu.Lock()
	defer p.mu.Unlock()
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	p.rows[product.ID] = product
	return product, nil
}

func (p *Products) Update(ctx context.Context, product types.Product) (types.Product, error) {
	p.Calls.hit()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rows[product.ID]; !ok {
		return types.Product{}, store.ErrNotFound
	}
	p.rows[product.ID] = product
	return product, nil
}

func (p *Products) Delete(ctx context.Context, id string) error {
	p.Calls.hit()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(p.rows, id)
	return nil
}

// Categories is an in-memory categories table. Deleting a category still
// referenced by Products fails with store.ErrConflict.
type Categories struct {
	Calls    *Calls
	Products *Products
	mu       sync.Mutex
	rows     map[string]types.Category
}

func NewCategories(calls *Calls, products *Products) *Categories {
	return &Categories{Calls: calls, Products: products, rows: map[string]types.Category{}}
}

func (c *Categories) List(ctx context.Context) ([]types.Category, error) {
	c.Calls.hit()
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]types.Category, 0, len(c.rows))
	for _, row := range c.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (c *Categories) Get(ctx context.Context, id string) (types.Category, error) {
	c.Calls.hit()
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return row, nil
}

func (c *Categories) Create(ctx context.Context, category types.Category) (types.Category, error) {
	c.Calls.hit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	c.rows[category.ID] = category
	return category, nil
}

func (c *Categories) Update(ctx context.Context, category types.Category) (types.Category, error) {
	c.Calls.hit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[category.ID]; !ok {
		return types.Category{}, store.ErrNotFound
	}
	c.rows[category.ID] = category
	return category, nil
}

func (c *Categories) Delete(ctx context.Context, id string) error {
	c.Calls.hit()
	if c.Products != nil {
		c.Products.mu.Lock()
		for _, p := range c.Products.rows {
			if p.CategoryID == id {
				c.Products.mu.Unlock()
				return &store.ConflictError{Constraint: "products_category_id_fkey"}
			}
		}
		c.Products.mu.Unlock()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(c.rows, id)
	return nil
}

// Media keeps uploaded blobs in memory under /uploads/ URLs and records
// every deletion attempt.
type Media struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
}

func NewMedia() *Media {
	return &Media{objects: map[string][]byte{}}
}

const mediaPrefix = "/uploads/"

func (m *Media) Save(ctx context.Context, folder string, r io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := storage.NewKey(folder, contentType)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return mediaPrefix + key, nil
}

func (m *Media) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Media) DeleteURL(ctx context.Context, url string) error {
	key, err := m.KeyFromURL(url)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, url)
	delete(m.objects, key)
	return nil
}

func (m *Media) KeyFromURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, mediaPrefix)
	if !ok || key == "" {
		return "", storage.ErrForeignURL
	}
	return key, nil
}

// Put seeds an object and returns its URL.
func (m *Media) Put(key string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return mediaPrefix + key
}

// Deletes returns every URL DeleteURL was called with, in order.
func (m *Media) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Has reports whether url is still stored.
func (m *Media) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[strings.TrimPrefix(url, mediaPrefix)]
	return ok
}

func page[T any](all []T, offset, limit int) []T {
	if offset > len(all) {
		offset = len(all)
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

// String renders the call count for failure messages.
func (c *Calls) String() string {
	return fmt.Sprintf("%d calls", c.Count())
}
