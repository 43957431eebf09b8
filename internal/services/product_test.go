package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sfm-market/storefront/internal/authz"
	"github.com/sfm-market/storefront/internal/metrics"
	"github.com/sfm-market/storefront/internal/store"
	"github.com/sfm-market/storefront/types"
)

type productFixture struct {
	svc    *ProductService
	repo   *fakeProductRepo
	media  *fakeMedia
	events *fakeEvents
}

func newProductFixture(products ...types.Product) productFixture {
	repo := newFakeProductRepo(products...)
	categories := newFakeCategoryRepo(types.Category{ID: "c1", Name: "Fruit"}, types.Category{ID: "c2", Name: "Veg"})
	media := &fakeMedia{}
	events := &fakeEvents{}
	return productFixture{
		svc:    NewProductService(repo, categories, media, events, logr.Discard()),
		repo:   repo,
		media:  media,
		events: events,
	}
}

func ownedProduct(id, owner string, images ...string) types.Product {
	p := types.Product{ID: id, OwnerID: owner, CategoryID: "c1", Name: "Apples", Unit: types.UnitKilogram, Images: images}
	if len(images) > 0 {
		p.ImageURL = images[0]
	}
	return p
}

func validInput() ProductInput {
	return ProductInput{CategoryID: "c1", Name: "Apples", Price: 2.5, Unit: "kg"}
}

func TestProductDelete_NonOwnerSellerForbidden(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1", "/uploads/products/u1/a.png"))

	err := f.svc.Delete(context.Background(), sessionFor("u2", types.RoleSeller), "r1")
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("Delete = %v, want ErrForbidden", err)
	}
	if !f.repo.has("r1") {
		t.Fatal("r1 was deleted")
	}
	if got := f.media.deletedURLs(); len(got) != 0 {
		t.Fatalf("media deleted on forbidden request: %v", got)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("events published: %v", f.events.kinds())
	}
}

func TestProductDelete_AdminDeletesOthersProduct(t *testing.T) {
	images := []string{"/uploads/products/u2/a.png", "/uploads/products/u2/b.png"}
	f := newProductFixture(ownedProduct("r1", "u2", images...))

	if err := f.svc.Delete(context.Background(), sessionFor("u1", types.RoleAdmin), "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.repo.has("r1") {
		t.Fatal("r1 still present")
	}
	got := f.media.deletedURLs()
	slices.Sort(got)
	if !slices.Equal(got, images) {
		t.Fatalf("deleted media = %v, want each of %v exactly once", got, images)
	}
	if !slices.Equal(f.events.kinds(), []string{"product.deleted"}) {
		t.Fatalf("events = %v", f.events.kinds())
	}
}

func TestProductDelete_MissingBeforeForbidden(t *testing.T) {
	f := newProductFixture()
	err := f.svc.Delete(context.Background(), sessionFor("u2", types.RoleSeller), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete missing = %v, want ErrNotFound", err)
	}
}

func TestProductMutations_RoleGateSkipsPersistence(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1"))

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"anonymous delete", func() error { return f.svc.Delete(context.Background(), nil, "r1") }, authz.ErrUnauthenticated},
		{"buyer delete own", func() error { return f.svc.Delete(context.Background(), sessionFor("u1", types.RoleUser), "r1") }, authz.ErrForbidden},
		{"anonymous update", func() error {
			_, err := f.svc.Update(context.Background(), nil, "r1", validInput())
			return err
		}, authz.ErrUnauthenticated},
		{"buyer create", func() error {
			_, err := f.svc.Create(context.Background(), sessionFor("u3", types.RoleUser), validInput())
			return err
		}, authz.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.repo.gets != 0 || f.repo.writes != 0 {
		t.Fatalf("persistence touched: %d gets, %d writes", f.repo.gets, f.repo.writes)
	}
}

func TestProductCreate(t *testing.T) {
	f := newProductFixture()
	sess := sessionFor("u1", types.RoleSeller)

	in := validInput()
	in.Images = []string{" /uploads/products/u1/a.png ", ""}
	created, err := f.svc.Create(context.Background(), sess, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.OwnerID != "u1" {
		t.Errorf("owner = %q, want u1", created.OwnerID)
	}
	if created.ImageURL != "/uploads/products/u1/a.png" || len(created.Images) != 1 {
		t.Errorf("images = %q %v", created.ImageURL, created.Images)
	}
	if created.Unit != types.UnitKilogram {
		t.Errorf("unit = %q", created.Unit)
	}
}

func TestProductCreate_Validation(t *testing.T) {
	f := newProductFixture()
	sess := sessionFor("u1", types.RoleSeller)

	tests := []struct {
		name   string
		mutate func(*ProductInput)
	}{
		{"short name", func(in *ProductInput) { in.Name = "A" }},
		{"negative price", func(in *ProductInput) { in.Price = -1 }},
		{"bad unit", func(in *ProductInput) { in.Unit = "litre" }},
		{"missing category", func(in *ProductInput) { in.CategoryID = "" }},
		{"unknown category", func(in *ProductInput) { in.CategoryID = "c404" }},
		{"too many images", func(in *ProductInput) { in.Images = []string{"1", "2", "3", "4", "5", "6", "7"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := f.svc.Create(context.Background(), sess, in); !IsValidation(err) {
				t.Fatalf("Create = %v, want validation error", err)
			}
		})
	}
}

func TestProductUpdate_CleansRemovedImages(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1", "/uploads/products/u1/a.png", "/uploads/products/u1/b.png", "https://cdn.other/x.png"))

	in := validInput()
	in.CategoryID = "c2"
	in.Images = []string{"/uploads/products/u1/b.png", "/uploads/products/u1/c.png"}
	updated, err := f.svc.Update(context.Background(), sessionFor("u1", types.RoleSeller), "r1", in)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.OwnerID != "u1" || updated.ID != "r1" || updated.CategoryID != "c2" {
		t.Fatalf("updated = %+v", updated)
	}
	if got := f.media.deletedURLs(); !slices.Equal(got, []string{"/uploads/products/u1/a.png"}) {
		t.Fatalf("deleted = %v, want only a.png", got)
	}
}

func TestProductImagesMustComeFromOwner(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1", "/uploads/products/u1/a.png"))
	seller := sessionFor("u1", types.RoleSeller)
	foreign := []string{
		"/uploads/products/u2/stolen.png",
		"/uploads/avatars/u1/face.png",
		"/uploads/products/u10/a.png",
	}

	for _, url := range foreign {
		in := validInput()
		in.Images = []string{url}
		if _, err := f.svc.Create(context.Background(), seller, in); !IsValidation(err) {
			t.Errorf("Create(%q) = %v, want validation error", url, err)
		}
		in = validInput()
		in.Images = []string{"/uploads/products/u1/a.png", url}
		if _, err := f.svc.Update(context.Background(), seller, "r1", in); !IsValidation(err) {
			t.Errorf("Update(%q) = %v, want validation error", url, err)
		}
		in = validInput()
		in.ImageURL = url
		if _, err := f.svc.Update(context.Background(), seller, "r1", in); !IsValidation(err) {
			t.Errorf("Update(image_url %q) = %v, want validation error", url, err)
		}
	}
	if f.repo.writes != 0 {
		t.Fatalf("writes = %d, want 0", f.repo.writes)
	}
	if got := f.media.deletedURLs(); len(got) != 0 {
		t.Fatalf("deleted = %v", got)
	}

	in := validInput()
	in.Images = []string{"https://cdn.other/x.png"}
	if _, err := f.svc.Create(context.Background(), seller, in); err != nil {
		t.Fatalf("external image: %v", err)
	}
}

func TestProductUpdate_LegacyImageKeptButNotDeleted(t *testing.T) {
	legacy := "/uploads/products/old.png"
	f := newProductFixture(ownedProduct("r1", "u1", legacy, "/uploads/products/u1/a.png"))
	seller := sessionFor("u1", types.RoleSeller)

	in := validInput()
	in.Images = []string{legacy}
	if _, err := f.svc.Update(context.Background(), seller, "r1", in); err != nil {
		t.Fatalf("keeping an existing image: %v", err)
	}
	in.Images = nil
	if _, err := f.svc.Update(context.Background(), seller, "r1", in); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := f.media.deletedURLs(); !slices.Equal(got, []string{"/uploads/products/u1/a.png"}) {
		t.Fatalf("deleted = %v, want only the owner's upload", got)
	}
}

func TestProductUpdate_AdminCleansOwnerImages(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u2", "/uploads/products/u2/a.png", "/uploads/products/u2/b.png"))
	admin := sessionFor("a1", types.RoleAdmin)

	in := validInput()
	in.Images = []string{"/uploads/products/u2/b.png", "/uploads/products/a1/banner.png"}
	updated, err := f.svc.Update(context.Background(), admin, "r1", in)
	if err != nil {
		t.Fatalf("admin Update: %v", err)
	}
	if updated.OwnerID != "u2" {
		t.Fatalf("owner = %q", updated.OwnerID)
	}
	if got := f.media.deletedURLs(); !slices.Equal(got, []string{"/uploads/products/u2/a.png"}) {
		t.Fatalf("deleted = %v", got)
	}

	in.Images = []string{"/uploads/products/u3/other.png"}
	if _, err := f.svc.Update(context.Background(), admin, "r1", in); !IsValidation(err) {
		t.Fatalf("admin attaching a third seller's image = %v, want validation error", err)
	}
}

func TestProductList_CategoryFilter(t *testing.T) {
	fruit := ownedProduct("r1", "u1")
	veg := ownedProduct("r2", "u2")
	veg.CategoryID = "c2"
	f := newProductFixture(fruit, veg)

	items, total, err := f.svc.List(context.Background(), " c2 ", 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != "r2" {
		t.Fatalf("List(c2) = %v, total %d", items, total)
	}
	if _, total, _ := f.svc.List(context.Background(), "", 0, 10); total != 2 {
		t.Fatalf("List() total = %d, want 2", total)
	}
}

func TestProductUpdate_ForbiddenLeavesProductUntouched(t *testing.T) {
	original := ownedProduct("r1", "u1", "/uploads/products/u1/a.png")
	f := newProductFixture(original)

	in := validInput()
	in.Name = "Stolen"
	if _, err := f.svc.Update(context.Background(), sessionFor("u2", types.RoleSeller), "r1", in); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("Update = %v, want ErrForbidden", err)
	}
	got, _ := f.repo.Get(context.Background(), "r1")
	if got.Name != original.Name {
		t.Fatalf("name changed to %q", got.Name)
	}
	if f.repo.writes != 0 {
		t.Fatalf("writes = %d", f.repo.writes)
	}
}

func TestProductUpdate_WriteFailureKeepsMedia(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1", "/uploads/products/u1/a.png"))
	f.repo.failNext = errors.New("db down")

	in := validInput()
	if _, err := f.svc.Update(context.Background(), sessionFor("u1", types.RoleSeller), "r1", in); err == nil {
		t.Fatal("expected error")
	}
	if got := f.media.deletedURLs(); len(got) != 0 {
		t.Fatalf("media deleted after failed write: %v", got)
	}
}

func TestProductDelete_CleanupFailureSwallowed(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1", "/uploads/products/u1/a.png"))
	f.media.deleteErr = errors.New("bucket unavailable")
	before := testutil.ToFloat64(metrics.MediaCleanupFailuresTotal.WithLabelValues("product"))

	if err := f.svc.Delete(context.Background(), sessionFor("u1", types.RoleSeller), "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.repo.has("r1") {
		t.Fatal("r1 still present")
	}
	after := testutil.ToFloat64(metrics.MediaCleanupFailuresTotal.WithLabelValues("product"))
	if after-before != 1 {
		t.Fatalf("cleanup failures metric delta = %v, want 1", after-before)
	}
}

func TestProductListMine(t *testing.T) {
	f := newProductFixture(ownedProduct("r1", "u1"), ownedProduct("r2", "u2"), ownedProduct("r3", "u1"))

	items, total, err := f.svc.ListMine(context.Background(), sessionFor("u1", types.RoleSeller), 0, 10)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("ListMine = %d items, total %d", len(items), total)
	}
	for _, p := range items {
		if p.OwnerID != "u1" {
			t.Errorf("foreign product %s", p.ID)
		}
	}

	if _, _, err := f.svc.ListMine(context.Background(), nil, 0, 10); !errors.Is(err, authz.ErrUnauthenticated) {
		t.Fatalf("anonymous ListMine = %v", err)
	}
}

func TestProductUploadImage(t *testing.T) {
	f := newProductFixture()
	sess := sessionFor("u1", types.RoleSeller)

	url, err := f.svc.UploadImage(context.Background(), sess, Upload{Data: []byte("png"), ContentType: "image/png"})
	if err != nil || !strings.HasPrefix(url, "/uploads/products/u1/") {
		t.Fatalf("UploadImage = %q, %v", url, err)
	}

	bad := []Upload{
		{Data: nil, ContentType: "image/png"},
		{Data: []byte("x"), ContentType: "application/pdf"},
		{Data: make([]byte, MaxCatalogImageBytes+1), ContentType: "image/png"},
	}
	for _, up := range bad {
		if _, err := f.svc.UploadImage(context.Background(), sess, up); !IsValidation(err) {
			t.Errorf("UploadImage(%s, %d bytes) = %v, want validation error", up.ContentType, len(up.Data), err)
		}
	}
}

func TestProductEventsBestEffort(t *testing.T) {
	f := newProductFixture()
	f.events.err = errors.New("broker down")

	if _, err := f.svc.Create(context.Background(), sessionFor("u1", types.RoleAdmin), validInput()); err != nil {
		t.Fatalf("Create with failing broker: %v", err)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("publish attempts = %d", len(f.events.events))
	}
}
