package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"
	"github.com/sfm-market/storefront/internal/storage"
)

// ObjectOpener reads stored media by key.
type ObjectOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Uploads streams stored media under the route's wildcard.
func Uploads(media ObjectOpener, log logr.Logger) http.HandlerFunc {
	log = log.WithName("uploads")
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		body, err := media.Open(r.Context(), key)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrInvalidKey):
				writeError(w, http.StatusNotFound, "file not found")
			default:
				log.Error(err, "failed to open upload", "key", key)
				writeError(w, http.StatusInternalServerError, "failed to read file")
			}
			return
		}
		defer body.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, body); err != nil {
			log.V(1).Info("upload stream interrupted", "key", key, "error", err.Error())
		}
	}
}
