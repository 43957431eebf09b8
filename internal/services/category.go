package services

import (
	"bytes"
	"context"
	"strings"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/authz"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// CategoryPolicy applies the same ownership rule to categories. Only admins
// can create them, so in practice any admin may mutate any category.
var CategoryPolicy = authz.Policy[types.Category]{
	Resource: "category",
	OwnerOf:  func(c types.Category) string { return c.OwnerID },
}

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]types.Category, error)
	Get(ctx context.Context, id string) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Update(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, id string) error
}

// CategoryInput is the editable part of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo     CategoryRepository
	media    MediaStore
	janitor  mediaJanitor
	notifier notifier
}

func NewCategoryService(repo CategoryRepository, media MediaStore, events EventPublisher, log logr.Logger) *CategoryService {
	log = log.WithName("categories")
	return &CategoryService{
		repo:     repo,
		media:    media,
		janitor:  mediaJanitor{media: media, log: log},
		notifier: newNotifier(events, log),
	}
}

func (s *CategoryService) List(ctx context.Context) ([]types.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Get(ctx context.Context, id string) (types.Category, error) {
	return s.repo.Get(ctx, id)
}

// Category images are shared by all admins, so any admin upload may be
// attached to or removed from any category.
const categoryScope = categoryFolder + "/"

func (s *CategoryService) Create(ctx context.Context, sess *session.Session, in CategoryInput) (types.Category, error) {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return types.Category{}, err
	}
	category, err := in.apply(types.Category{})
	if err != nil {
		return types.Category{}, err
	}
	if err := checkMedia(s.media, "image_url", []string{category.ImageURL}, categoryScope); err != nil {
		return types.Category{}, err
	}
	category.OwnerID = sess.SubjectID

	created, err := s.repo.Create(ctx, category)
	if err != nil {
		return types.Category{}, err
	}
	s.notifier.notify(ctx, "category", "created", created.ID, sess.SubjectID)
	return created, nil
}

// Update replaces the editable fields of category id. A replaced image is
// deleted after the write commits.
func (s *CategoryService) Update(ctx context.Context, sess *session.Session, id string, in CategoryInput) (types.Category, error) {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return types.Category{}, err
	}

	var updated types.Category
	previous, err := authz.GuardMutation(ctx, sess, CategoryPolicy,
		func(ctx context.Context) (types.Category, error) {
			return s.repo.Get(ctx, id)
		},
		func(ctx context.Context, current types.Category) error {
			next, err := in.apply(current)
			if err != nil {
				return err
			}
			if next.ImageURL != current.ImageURL {
				if err := checkMedia(s.media, "image_url", []string{next.ImageURL}, categoryScope); err != nil {
					return err
				}
			}
			updated, err = s.repo.Update(ctx, next)
			return err
		},
	)
	if err != nil {
		return types.Category{}, err
	}

	if previous.ImageURL != updated.ImageURL {
		s.janitor.cleanup(ctx, CategoryPolicy.Resource, []string{categoryScope}, previous.ImageURL)
	}
	s.notifier.notify(ctx, "category", "updated", updated.ID, sess.SubjectID)
	return updated, nil
}

// Delete removes category id. Categories that still have products fail with
// store.ErrConflict.
func (s *CategoryService) Delete(ctx context.Context, sess *session.Session, id string) error {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return err
	}

	previous, err := authz.GuardMutation(ctx, sess, CategoryPolicy,
		func(ctx context.Context) (types.Category, error) {
			return s.repo.Get(ctx, id)
		},
		func(ctx context.Context, current types.Category) error {
			return s.repo.Delete(ctx, current.ID)
		},
	)
	if err != nil {
		return err
	}

	s.janitor.cleanup(ctx, CategoryPolicy.Resource, []string{categoryScope}, previous.ImageURL)
	s.notifier.notify(ctx, "category", "deleted", previous.ID, sess.SubjectID)
	return nil
}

func (s *CategoryService) UploadImage(ctx context.Context, sess *session.Session, up Upload) (string, error) {
	if err := authz.RequireRole(sess, types.RoleAdmin); err != nil {
		return "", err
	}
	if err := up.validate("file", MaxCatalogImageBytes); err != nil {
		return "", err
	}
	return s.media.Save(ctx, uploadFolder(categoryFolder, sess.SubjectID), bytes.NewReader(up.Data), int64(len(up.Data)), up.ContentType)
}

func (in CategoryInput) apply(base types.Category) (types.Category, error) {
	name := strings.TrimSpace(in.Name)
	if len([]rune(name)) < 2 {
		return types.Category{}, invalid("name", "must be at least 2 characters")
	}
	base.Name = name
	base.Description = strings.TrimSpace(in.Description)
	base.ImageURL = strings.TrimSpace(in.ImageURL)
	return base, nil
}
