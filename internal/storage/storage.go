// Package storage persists uploaded media and maps stored objects to the
// public URLs saved on users, products and categories.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/sfm-market/storefront/config"
)

var (
	// ErrObjectNotFound is returned by backends when a key does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrForeignURL is returned when a URL was not produced by this storage.
	ErrForeignURL = errors.New("storage: url not served by this storage")
	// ErrInvalidKey is returned for keys that escape the storage namespace.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend and owns the key to URL mapping.
type Storage struct {
	backend   ObjectStorage
	publicURL string
}

// NewStorage constructs a Storage serving objects under publicURL.
func NewStorage(backend ObjectStorage, publicURL string) *Storage {
	return &Storage{backend: backend, publicURL: strings.TrimRight(publicURL, "/")}
}

// FromConfig builds the backend selected by cfg and ensures its bucket exists.
func FromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "local":
		backend, err = NewLocalDir(cfg.LocalDir)
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: init %s backend: %w", cfg.Backend, err)
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket %s: %w", backend.Bucket(), err)
	}
	return NewStorage(backend, cfg.PublicURL), nil
}

// Save stores r under a fresh key in folder and returns the object's public URL.
func (s *Storage) Save(ctx context.Context, folder string, r io.Reader, size int64, contentType string) (string, error) {
	key := NewKey(folder, contentType)
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Open opens the object stored under key.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, key)
}

// DeleteURL removes the object behind a URL produced by Save. Objects that
// are already gone are not an error.
func (s *Storage) DeleteURL(ctx context.Context, url string) error {
	key, err := s.KeyFromURL(url)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL of key.
func (s *Storage) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL reverses URL. It fails with ErrForeignURL for anything outside
// the public prefix.
func (s *Storage) KeyFromURL(url string) (string, error) {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", ErrForeignURL
	}
	return cleanKey(strings.TrimPrefix(url, prefix))
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// NewKey returns a unique object key in folder, with an extension matching
// contentType when one is known.
func NewKey(folder, contentType string) string {
	ext := ""
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = preferredExt(contentType, exts)
	}
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()+ext)
}

func preferredExt(contentType string, exts []string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return exts[0]
}

func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
