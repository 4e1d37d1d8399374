package catalog

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	Service  *Service
	Currency string
}

// ProductView is a product priced for a requested quantity.
type ProductView struct {
	Product
	Quantity     int           `json:"quantity"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	PriceExclVAT pricing.Money `json:"priceExclVat"`
}

func priceFor(p Product, qty int) (ProductView, error) {
	priced, err := pricing.PriceLine(pricing.Line{
		ProductID:       p.ID,
		Quantity:        qty,
		Tiers:           p.Tiers,
		VATRate:         p.VATRate,
		CashbackPercent: p.CashbackPercent,
	})
	if err != nil {
		return ProductView{}, err
	}
	return ProductView{Product: p, Quantity: qty, UnitPrice: priced.UnitPrice, PriceExclVAT: priced.PriceExclVAT}, nil
}

// Products handles GET /api/v1/products?category=&subcategory=&qty=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	q := r.URL.Query()
	qty, err := positiveParam(q.Get("qty"), "qty", 1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var f Filter
	if f.CategoryID, err = positiveParam(q.Get("category"), "category", 0); err != nil {
		h.writeError(w, err)
		return
	}
	if f.SubcategoryID, err = positiveParam(q.Get("subcategory"), "subcategory", 0); err != nil {
		h.writeError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 50)

	products, err := h.Service.Products(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	window := common.Page(products, page, perPage)
	views := make([]ProductView, 0, len(window))
	for _, p := range window {
		v, err := priceFor(p, qty)
		if err != nil {
			h.writeError(w, err)
			return
		}
		views = append(views, v)
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(products)))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       views,
		"currency":   h.Currency,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(products)},
	})
}

// ProductDetail handles GET /api/v1/products/{id}?qty=.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := positiveParam(chi.URLParam(r, "id"), "id", 0)
	if err != nil || id == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	qty, err := positiveParam(r.URL.Query().Get("qty"), "qty", 1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.Service.Product(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v, err := priceFor(p, qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v, "currency": h.Currency})
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	rows, err := h.Service.Categories(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

// Subcategories handles GET /api/v1/categories/{id}/subcategories.
func (h *Handler) Subcategories(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	id, err := positiveParam(chi.URLParam(r, "id"), "id", 0)
	if err != nil || id == 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid category id", nil)
		return
	}
	rows, err := h.Service.Subcategories(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h == nil || h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

func positiveParam(raw, field string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		appErr := common.NewAppError("BAD_REQUEST", field+" must be a positive integer", http.StatusBadRequest, err)
		appErr.Details = map[string]any{"field": field, "value": raw}
		return 0, appErr
	}
	return n, nil
}

// ErrorStatus maps catalog failures to an HTTP status and code. ok is false
// for errors the catalog does not own.
func ErrorStatus(err error) (status int, code string, ok bool) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND", true
	case errors.Is(err, ErrInvalidProduct):
		return http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", true
	case errors.Is(err, resilience.ErrOpenCircuit):
		return http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", true
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "CATALOG_UNAVAILABLE", true
	}
	return 0, "", false
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	if status, code, ok := ErrorStatus(err); ok {
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	if status, _ := pricing.ErrorStatus(err); status != http.StatusInternalServerError {
		pricing.WriteError(w, err)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
