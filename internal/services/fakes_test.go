package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sfm-market/storefront/internal/credential"
	"github.com/sfm-market/storefront/internal/mq"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/internal/storage"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
)

type fakeProductRepo struct {
	mu       sync.Mutex
	items    map[string]types.Product
	seq      int
	gets     int
	writes   int
	failNext error
}

func newFakeProductRepo(products ...types.Product) *fakeProductRepo {
	r := &fakeProductRepo{items: map[string]types.Product{}}
	for _, p := range products {
		r.items[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) List(ctx context.Context, filter store.ProductFilter, offset, limit int) ([]types.Product, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []types.Product
	for _, p := range r.items {
		if (filter.OwnerID == "" || p.OwnerID == filter.OwnerID) &&
			(filter.CategoryID == "" || p.CategoryID == filter.CategoryID) {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *fakeProductRepo) Get(ctx context.Context, id string) (types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	p, ok := r.items[id]
	if !ok {
		return types.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (r *fakeProductRepo) Create(ctx context.Context, p types.Product) (types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.seq++
	p.ID = fmt.Sprintf("p%d", r.seq)
	r.items[p.ID] = p
	return p, nil
}

func (r *fakeProductRepo) Update(ctx context.Context, p types.Product) (types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if err := r.failNext; err != nil {
		r.failNext = nil
		return types.Product{}, err
	}
	if _, ok := r.items[p.ID]; !ok {
		return types.Product{}, store.ErrNotFound
	}
	r.items[p.ID] = p
	return p, nil
}

func (r *fakeProductRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *fakeProductRepo) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	return ok
}

type fakeCategoryRepo struct {
	items     map[string]types.Category
	seq       int
	deleteErr error
}

func newFakeCategoryRepo(categories ...types.Category) *fakeCategoryRepo {
	r := &fakeCategoryRepo{items: map[string]types.Category{}}
	for _, c := range categories {
		r.items[c.ID] = c
	}
	return r
}

func (r *fakeCategoryRepo) List(ctx context.Context) ([]types.Category, error) {
	out := make([]types.Category, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeCategoryRepo) Get(ctx context.Context, id string) (types.Category, error) {
	c, ok := r.items[id]
	if !ok {
		return types.Category{}, store.ErrNotFound
	}
	return c, nil
}

func (r *fakeCategoryRepo) Create(ctx context.Context, c types.Category) (types.Category, error) {
	r.seq++
	c.ID = fmt.Sprintf("c%d", r.seq)
	r.items[c.ID] = c
	return c, nil
}

func (r *fakeCategoryRepo) Update(ctx context.Context, c types.Category) (types.Category, error) {
	if _, ok := r.items[c.ID]; !ok {
		return types.Category{}, store.ErrNotFound
	}
	r.items[c.ID] = c
	return c, nil
}

func (r *fakeCategoryRepo) Delete(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

type fakeUserRepo struct {
	items map[string]types.User
	seq   int
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	r := &fakeUserRepo{items: map[string]types.User{}}
	for _, u := range users {
		r.items[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	out := make([]types.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	u, ok := r.items[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, u types.User) (types.User, error) {
	if _, err := r.GetByEmail(ctx, u.Email); err == nil {
		return types.User{}, &store.ConflictError{Constraint: "users_email_key"}
	}
	r.seq++
	u.ID = fmt.Sprintf("u%d", r.seq)
	r.items[u.ID] = u
	return u, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, u types.User) (types.User, error) {
	if _, ok := r.items[u.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.items[u.ID] = u
	return u, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// fakeMedia owns every URL under /uploads/.
type fakeMedia struct {
	mu        sync.Mutex
	saved     []string
	deleted   []string
	deleteErr error
}

func (m *fakeMedia) Save(ctx context.Context, folder string, r io.Reader, size int64, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	url := fmt.Sprintf("/uploads/%s/%d", folder, len(m.saved)+1)
	m.saved = append(m.saved, url)
	return url, nil
}

func (m *fakeMedia) DeleteURL(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return m.deleteErr
}

func (m *fakeMedia) KeyFromURL(url string) (string, error) {
	key, ok := strings.CutPrefix(url, "/uploads/")
	if !ok {
		return "", storage.ErrForeignURL
	}
	return key, nil
}

func (m *fakeMedia) deletedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type fakeEvents struct {
	events []mq.Event
	err    error
}

func (e *fakeEvents) PublishEvent(ctx context.Context, ev mq.Event) (string, error) {
	e.events = append(e.events, ev)
	return "id", e.err
}

func (e *fakeEvents) kinds() []string {
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// plainHasher stores "hash:" + password.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "hash:" + password, nil
}

func (plainHasher) Verify(hash, password string) error {
	if !strings.HasPrefix(hash, "hash:") {
		return errors.New("corrupt hash")
	}
	if hash != "hash:"+password {
		return credential.ErrMismatch
	}
	return nil
}

func sessionFor(subject string, role types.Role) *session.Session {
	return &session.Session{Claims: session.Claims{SubjectID: subject, Role: role}}
}
