package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/product"
)

type ProductService interface {
	GetAllProducts(ctx context.Context) ([]product.Product, error)
	GetFilteredProducts(ctx context.Context, f product.Filter) ([]product.Product, error)
	GetProduct(ctx context.Context, id string) (product.Product, error)
	AddProduct(ctx context.Context, in product.Input) (product.Product, error)
	UpdateProduct(ctx context.Context, id string, in product.Input) (product.Product, error)
	DeleteProduct(ctx context.Context, id string) (product.Product, error)
}

type ProductHandler struct {
	svc ProductService
}

func NewProductHandler(svc ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// List returns the whole catalog, or the filtered view when category or
// search is given.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	f := product.Filter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	}

	var (
		products []product.Product
		err      error
	)
	if f.IsZero() {
		products, err = h.svc.GetAllProducts(r.Context())
	} else {
		products, err = h.svc.GetFilteredProducts(r.Context(), f)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.svc.AddProduct(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
