package services

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/authz"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
)

// ProductPolicy: sellers mutate their own products, admins any.
var ProductPolicy = authz.Policy[types.Product]{
	Resource: "product",
	OwnerOf:  func(p types.Product) string { return p.OwnerID },
}

// catalogRoles may create and manage products.
var catalogRoles = []types.Role{types.RoleSeller, types.RoleAdmin}

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, filter store.ProductFilter, offset, limit int) ([]types.Product, int, error)
	Get(ctx context.Context, id string) (types.Product, error)
	Create(ctx context.Context, product types.Product) (types.Product, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	Delete(ctx context.Context, id string) error
}

// CategoryLookup resolves category references.
type CategoryLookup interface {
	Get(ctx context.Context, id string) (types.Category, error)
}

// ProductInput is the editable part of a product.
type ProductInput struct {
	CategoryID  string   `json:"category_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Unit        string   `json:"unit"`
	ImageURL    string   `json:"image_url"`
	Images      []string `json:"images"`
}

// ProductService encapsulates product use-cases.
type ProductService struct {
	repo       ProductRepository
	categories CategoryLookup
	media      MediaStore
	janitor    mediaJanitor
	notifier   notifier
}

func NewProductService(repo ProductRepository, categories CategoryLookup, media MediaStore, events EventPublisher, log logr.Logger) *ProductService {
	log = log.WithName("products")
	return &ProductService{
		repo:       repo,
		categories: categories,
		media:      media,
		janitor:    mediaJanitor{media: media, log: log},
		notifier:   newNotifier(events, log),
	}
}

// List returns a page of the catalog. A non-empty categoryID restricts it to
// that category.
func (s *ProductService) List(ctx context.Context, categoryID string, offset, limit int) ([]types.Product, int, error) {
	filter := store.ProductFilter{CategoryID: strings.TrimSpace(categoryID)}
	return s.repo.List(ctx, filter, offset, clampLimit(limit))
}

func (s *ProductService) Get(ctx context.Context, id string) (types.Product, error) {
	return s.repo.Get(ctx, id)
}

// ListMine returns the products owned by the session subject.
func (s *ProductService) ListMine(ctx context.Context, sess *session.Session, offset, limit int) ([]types.Product, int, error) {
	if err := authz.RequireRole(sess, catalogRoles...); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, store.ProductFilter{OwnerID: sess.SubjectID}, offset, clampLimit(limit))
}

// Create stores a new product owned by the session subject.
func (s *ProductService) Create(ctx context.Context, sess *session.Session, in ProductInput) (types.Product, error) {
	if err := authz.RequireRole(sess, catalogRoles...); err != nil {
		return types.Product{}, err
	}
	product, err := in.apply(types.Product{})
	if err != nil {
		return types.Product{}, err
	}
	if err := checkMedia(s.media, "images", product.MediaURLs(), mediaScope(productFolder, sess.SubjectID)); err != nil {
		return types.Product{}, err
	}
	if err := s.checkCategory(ctx, product.CategoryID); err != nil {
		return types.Product{}, err
	}
	product.OwnerID = sess.SubjectID

	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return types.Product{}, err
	}
	s.notifier.notify(ctx, "product", "created", created.ID, sess.SubjectID)
	return created, nil
}

// Update replaces the editable fields of product id. Newly referenced stored
// images must come from the owner or the acting user. Images dropped by the
// update are deleted from storage after the write commits.
func (s *ProductService) Update(ctx context.Context, sess *session.Session, id string, in ProductInput) (types.Product, error) {
	if err := authz.RequireRole(sess, catalogRoles...); err != nil {
		return types.Product{}, err
	}

	var updated types.Product
	previous, err := authz.GuardMutation(ctx, sess, ProductPolicy,
		func(ctx context.Context) (types.Product, error) {
			return s.repo.Get(ctx, id)
		},
		func(ctx context.Context, current types.Product) error {
			next, err := in.apply(current)
			if err != nil {
				return err
			}
			added := orphaned(next.MediaURLs(), current.MediaURLs())
			if err := checkMedia(s.media, "images", added, productScopes(current, sess)...); err != nil {
				return err
			}
			if next.CategoryID != current.CategoryID {
				if err := s.checkCategory(ctx, next.CategoryID); err != nil {
					return err
				}
			}
			updated, err = s.repo.Update(ctx, next)
			return err
		},
	)
	if err != nil {
		return types.Product{}, err
	}

	s.janitor.cleanup(ctx, ProductPolicy.Resource, productScopes(previous, sess), orphaned(previous.MediaURLs(), updated.MediaURLs())...)
	s.notifier.notify(ctx, "product", "updated", updated.ID, sess.SubjectID)
	return updated, nil
}

// Delete removes product id and then its images.
func (s *ProductService) Delete(ctx context.Context, sess *session.Session, id string) error {
	if err := authz.RequireRole(sess, catalogRoles...); err != nil {
		return err
	}

	previous, err := authz.GuardMutation(ctx, sess, ProductPolicy,
		func(ctx context.Context) (types.Product, error) {
			return s.repo.Get(ctx, id)
		},
		func(ctx context.Context, current types.Product) error {
			return s.repo.Delete(ctx, current.ID)
		},
	)
	if err != nil {
		return err
	}

	s.janitor.cleanup(ctx, ProductPolicy.Resource, productScopes(previous, sess), previous.MediaURLs()...)
	s.notifier.notify(ctx, "product", "deleted", previous.ID, sess.SubjectID)
	return nil
}

// UploadImage stores a catalog image and returns its URL. The image is not
// attached to any product until an update references it.
func (s *ProductService) UploadImage(ctx context.Context, sess *session.Session, up Upload) (string, error) {
	if err := authz.RequireRole(sess, catalogRoles...); err != nil {
		return "", err
	}
	if err := up.validate("file", MaxCatalogImageBytes); err != nil {
		return "", err
	}
	return s.media.Save(ctx, uploadFolder(productFolder, sess.SubjectID), bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType)
}

// productScopes are the upload prefixes a mutation of p by sess may attach
// or delete: the owner's, and the actor's own when an admin acts.
func productScopes(p types.Product, sess *session.Session) []string {
	scopes := []string{mediaScope(productFolder, p.OwnerID)}
	if sess != nil && sess.SubjectID != p.OwnerID {
		scopes = append(scopes, mediaScope(productFolder, sess.SubjectID))
	}
	return scopes
}

func (s *ProductService) checkCategory(ctx context.Context, id string) error {
	if _, err := s.categories.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("category_id", "category does not exist")
		}
		return err
	}
	return nil
}

// apply validates in and copies it onto base. Identity and ownership fields
// of base are preserved.
func (in ProductInput) apply(base types.Product) (types.Product, error) {
	name := strings.TrimSpace(in.Name)
	if len([]rune(name)) < 2 {
		return types.Product{}, invalid("name", "must be at least 2 characters")
	}
	if in.Price < 0 {
		return types.Product{}, invalid("price", "must not be negative")
	}
	unit, ok := types.ParseUnit(in.Unit)
	if !ok {
		return types.Product{}, invalid("unit", "must be one of kg, box, piece")
	}
	categoryID := strings.TrimSpace(in.CategoryID)
	if categoryID == "" {
		return types.Product{}, invalid("category_id", "is required")
	}

	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) > MaxProductImages {
		return types.Product{}, invalid("images", "at most %d images allowed", MaxProductImages)
	}

	base.CategoryID = categoryID
	base.Name = name
	base.Description = strings.TrimSpace(in.Description)
	base.Price = in.Price
	base.Unit = unit
	base.ImageURL = strings.TrimSpace(in.ImageURL)
	base.Images = images
	if base.ImageURL == "" && len(images) > 0 {
		base.ImageURL = images[0]
	}
	return base, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
