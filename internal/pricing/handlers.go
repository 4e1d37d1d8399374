package pricing

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler exposes stateless price quotes over HTTP.
type Handler struct {
	Shipping Money
	Currency string
}

type quoteLine struct {
	ProductID       int         `json:"productId"`
	Quantity        int         `json:"quantity"`
	Tiers           []PriceTier `json:"tiers"`
	VATRate         Money       `json:"vatRate"`
	CashbackPercent Money       `json:"cashbackPercent"`
}

type quoteRequest struct {
	Lines        []quoteLine `json:"lines"`
	ShippingCost *Money      `json:"shippingCost"`
}

// Quote prices an arbitrary set of lines without touching any cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var payload quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	lines := make([]Line, 0, len(payload.Lines))
	for _, l := range payload.Lines {
		lines = append(lines, Line{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			Tiers:           l.Tiers,
			VATRate:         l.VATRate,
			CashbackPercent: l.CashbackPercent,
		})
	}
	shipping := h.Shipping
	if payload.ShippingCost != nil {
		shipping = *payload.ShippingCost
	}
	totals, err := Aggregate(lines, shipping)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"totals":   totals,
			"currency": h.Currency,
		},
	})
}

// WriteError renders pricing failures with a stable error code. Errors that
// are not pricing errors become a 500.
func WriteError(w http.ResponseWriter, err error) {
	status, code := ErrorStatus(err)
	var details any
	var rangeErr *RangeError
	if errors.As(err, &rangeErr) {
		details = map[string]any{"field": rangeErr.Field, "value": rangeErr.Value}
	}
	common.JSONError(w, status, code, err.Error(), details)
}

// ErrorStatus maps pricing errors onto an HTTP status and error code.
func ErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return http.StatusUnprocessableEntity, "EMPTY_CART"
	case errors.Is(err, ErrInvalidRange):
		return http.StatusUnprocessableEntity, "INVALID_RANGE"
	case errors.Is(err, ErrMalformedTierData):
		return http.StatusUnprocessableEntity, "MALFORMED_TIERS"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
