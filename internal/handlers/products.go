package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/platform/httpx"
	"github.com/pharmakart/api/internal/repositories"
	"github.com/pharmakart/api/internal/services"
)

// ProductHandlers exposes the catalog endpoints.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs ProductHandlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/{productID}", h.getProduct)
	r.Patch("/{productID}", h.updateProduct)
	r.Delete("/{productID}", h.deleteProduct)
}

type createProductRequest struct {
	PharmacyID           string `json:"pharmacy_id"`
	Name                 string `json:"name"`
	Category             string `json:"category"`
	Description          string `json:"description"`
	Price                string `json:"price"`
	Stock                int    `json:"stock"`
	Active               *bool  `json:"active"`
	RequiresPrescription bool   `json:"requires_prescription"`
	Actor                string `json:"actor"`
}

type updateProductRequest struct {
	Name                 *string `json:"name"`
	Category             *string `json:"category"`
	Description          *string `json:"description"`
	Price                *string `json:"price"`
	Stock                *int    `json:"stock"`
	Active               *bool   `json:"active"`
	RequiresPrescription *bool   `json:"requires_prescription"`
	Actor                string  `json:"actor"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		writeValidation(w, r, "invalid price")
		return
	}

	cmd := services.CreateProductCommand{
		PharmacyID:           req.PharmacyID,
		Name:                 req.Name,
		Category:             req.Category,
		Description:          req.Description,
		Price:                price,
		Stock:                req.Stock,
		Active:               true,
		RequiresPrescription: req.RequiresPrescription,
		ActorID:              actorID(r, req.Actor),
	}
	if req.Active != nil {
		cmd.Active = *req.Active
	}

	product, err := h.catalog.Create(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newProductResponse(product))
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		writeValidation(w, r, err.Error())
		return
	}

	page, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPageResponse(page, newProductResponse))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, r, "invalid request body: "+err.Error())
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:            chi.URLParam(r, "productID"),
		Name:                 req.Name,
		Category:             req.Category,
		Description:          req.Description,
		Stock:                req.Stock,
		Active:               req.Active,
		RequiresPrescription: req.RequiresPrescription,
		ActorID:              actorID(r, req.Actor),
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(strings.TrimSpace(*req.Price))
		if err != nil {
			writeValidation(w, r, "invalid price")
			return
		}
		cmd.Price = &price
	}

	product, err := h.catalog.Update(r.Context(), cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "productID"), actorID(r, r.URL.Query().Get("actor"))); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseProductFilter(r *http.Request) (repositories.ProductListFilter, error) {
	values := r.URL.Query()

	var filter repositories.ProductListFilter
	filter.PharmacyID = strings.TrimSpace(values.Get("pharmacy_id"))
	filter.Category = strings.TrimSpace(values.Get("category"))
	if raw := strings.TrimSpace(values.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, err
		}
		filter.Active = &active
	}

	var err error
	if filter.Sort, err = parseSort(values, "name", "price", "createdAt"); err != nil {
		return filter, err
	}
	if filter.Page, err = parseListParams(values); err != nil {
		return filter, err
	}
	return filter, nil
}

type productResponse struct {
	ID                   string    `json:"id"`
	PharmacyID           string    `json:"pharmacy_id"`
	Name                 string    `json:"name"`
	Category             string    `json:"category,omitempty"`
	Description          string    `json:"description,omitempty"`
	Price                string    `json:"price"`
	Stock                int       `json:"stock"`
	Active               bool      `json:"active"`
	RequiresPrescription bool      `json:"requires_prescription"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func newProductResponse(product domain.Product) productResponse {
	return productResponse{
		ID:                   product.ID,
		PharmacyID:           product.PharmacyID,
		Name:                 product.Name,
		Category:             product.Category,
		Description:          product.Description,
		Price:                product.Price.String(),
		Stock:                product.Stock,
		Active:               product.Active,
		RequiresPrescription: product.RequiresPrescription,
		CreatedAt:            product.CreatedAt,
		UpdatedAt:            product.UpdatedAt,
	}
}
