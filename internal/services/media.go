package services

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/metrics"
	"github.com/sfm-market/storefront/internal/storage"
)

const (
	// MaxAvatarBytes caps avatar uploads.
	MaxAvatarBytes = 2 << 20
	// MaxCatalogImageBytes caps product and category image uploads.
	MaxCatalogImageBytes = 5 << 20
	// MaxProductImages caps the gallery size of a product.
	MaxProductImages = 6
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// MediaStore persists uploaded blobs and deletes them by URL. KeyFromURL
// fails with storage.ErrForeignURL for URLs it did not produce.
type MediaStore interface {
	Save(ctx context.Context, folder string, r io.Reader, size int64, contentType string) (string, error)
	DeleteURL(ctx context.Context, url string) error
	KeyFromURL(url string) (string, error)
}

// Uploads land under <folder>/<subject id>/ so a stored key names the
// subject that uploaded it.
const (
	avatarFolder   = "avatars"
	productFolder  = "products"
	categoryFolder = "categories"
)

// uploadFolder is the folder an upload by subject is saved in.
func uploadFolder(folder, subject string) string {
	return folder + "/" + subject
}

// mediaScope is the key prefix of everything subject uploaded to folder.
// An empty subject yields no scope.
func mediaScope(folder, subject string) string {
	if subject == "" {
		return ""
	}
	return uploadFolder(folder, subject) + "/"
}

func inScope(key string, scopes []string) bool {
	for _, scope := range scopes {
		if scope != "" && strings.HasPrefix(key, scope) {
			return true
		}
	}
	return false
}

// checkMedia rejects stored URLs whose key falls outside every scope.
// External URLs pass untouched since they are never deleted.
func checkMedia(media MediaStore, field string, urls []string, scopes ...string) error {
	if media == nil {
		return nil
	}
	for _, url := range urls {
		if url == "" {
			continue
		}
		key, err := media.KeyFromURL(url)
		if errors.Is(err, storage.ErrForeignURL) {
			continue
		}
		if err != nil {
			return invalid(field, "invalid storage url")
		}
		if !inScope(key, scopes) {
			return invalid(field, "must reference an image you uploaded")
		}
	}
	return nil
}

// Upload is an image received from a client. ContentType is the sniffed
// type, not the one the client declared.
type Upload struct {
	Data        []byte
	ContentType string
}

func (u Upload) validate(field string, maxBytes int) error {
	if len(u.Data) == 0 {
		return invalid(field, "file is empty")
	}
	if len(u.Data) > maxBytes {
		return invalid(field, "file exceeds %d bytes", maxBytes)
	}
	if !slices.Contains(allowedImageTypes, u.ContentType) {
		return invalid(field, "unsupported content type %q", u.ContentType)
	}
	return nil
}

// mediaJanitor deletes blobs that a committed write left unreferenced.
// Failures never reach the caller.
type mediaJanitor struct {
	media MediaStore
	log   logr.Logger
}

// cleanup deletes each stored URL whose key lies in one of scopes, once
// each. External URLs and keys outside the scopes are left alone.
func (j mediaJanitor) cleanup(ctx context.Context, resource string, scopes []string, urls ...string) {
	if j.media == nil {
		return
	}
	seen := make(map[string]bool, len(urls))
	for _, url := range urls {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		key, err := j.media.KeyFromURL(url)
		if err != nil || !inScope(key, scopes) {
			continue
		}
		if err := j.media.DeleteURL(ctx, url); err != nil {
			metrics.MediaCleanupFailuresTotal.WithLabelValues(resource).Inc()
			j.log.Error(err, "failed to delete orphaned media", "resource", resource, "url", url)
		}
	}
}

// orphaned returns the entries of before that are absent from after.
func orphaned(before, after []string) []string {
	var out []string
	for _, url := range before {
		if !slices.Contains(after, url) {
			out = append(out, url)
		}
	}
	return out
}
