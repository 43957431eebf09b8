package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sfm-market/storefront/internal/services"
	"github.com/sfm-market/storefront/internal/session"
	"github.com/sfm-market/storefront/types"
)

// ProductHandler provides HTTP handlers for catalog products.
type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ProductRouter registers product routes. Reads are public; writes need a
// SELLER or ADMIN session, and updates and deletes also need ownership.
func ProductRouter(r chi.Router, productService *services.ProductService) {
	handler := NewProductHandler(productService)
	sellers := RequireRole(types.RoleSeller, types.RoleAdmin)

	r.Get("/", handler.ListProducts)
	r.With(sellers).Post("/", handler.CreateProduct)
	r.With(sellers).Get("/mine", handler.ListMyProducts)
	r.With(sellers).Post("/images", handler.UploadImage)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", handler.GetProduct)
		r.With(sellers).Put("/", handler.UpdateProduct)
		r.With(sellers).Delete("/", handler.DeleteProduct)
	})
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	categoryID := r.URL.Query().Get("category_id")
	items, total, err := h.productService.List(r.Context(), categoryID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Product]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ProductHandler) ListMyProducts(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.productService.ListMine(r.Context(), session.FromContext(r.Context()), offset, limit)
	if err != nil {
		writeServiceError(w, err, "product not found", "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Product]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, err, "product not found", "failed to fetch product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req services.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.productService.Create(r.Context(), session.FromContext(r.Context()), req)
	if err != nil {
		writeServiceError(w, err, "product not found", "failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req services.ProductInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.productService.Update(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "productID"), req)
	if err != nil {
		writeServiceError(w, err, "product not found", "failed to update product")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.productService.Delete(r.Context(), session.FromContext(r.Context()), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(w, err, "product not found", "failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	upload, err := readUpload(w, r, "file", services.MaxCatalogImageBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.productService.UploadImage(r.Context(), session.FromContext(r.Context()), upload)
	if err != nil {
		writeServiceError(w, err, "product not found", "failed to store image")
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}

// UploadResponse carries the public URL of a stored upload.
type UploadResponse struct {
	URL string `json:"url"`
}
