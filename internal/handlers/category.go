package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// CategoryHandler provides HTTP handlers for catalog categories.
type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// CategoryRouter registers category routes. Writes are admin only.
func CategoryRouter(r chi.Router, categoryService *services.CategoryService) {
	handler := NewCategoryHandler(categoryService)
	admins := RequireRole(types.RoleAdmin)

	r.Get("/", handler.ListCategories)
	r.With(admins).Post("/", handler.CreateCategory)
	r.With(admins).Post("/images", handler.UploadImage)
	r.Route("/{categoryID}", func(r chi.Router) {
		r.Get("/", handler.GetCategory)
		r.With(admins).Put("/", handler.UpdateCategory)
		r.With(admins).Delete("/", handler.DeleteCategory)
	})
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.categoryService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.categoryService.Get(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		writeServiceError(w, err, "category not found", "failed to fetch category")
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req services.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.categoryService.Create(r.Context(), session.FromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, err, "category not found", "failed to create category")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req services.CategoryInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.categoryService.Update(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "categoryID"), req)
	if err != nil {
		writeServiceError(w, err, "category not found", "failed to update category")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categoryService.Delete(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "categoryID")); err != nil {
		writeServiceError(w, err, "category not found", "failed to delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CategoryHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, "file", services.MaxCatalogImageBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.categoryService.UploadImage(r.Context(), session.FromContext(r.Context()), upload)
	if err != nil {
		writeServiceError(w, err, "category not found", "failed to store image")
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}
