package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/orders"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type customerPayload struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type addressPayload struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"required,max=120"`
	PostalCode string `json:"postalCode" validate:"required,max=16"`
	Country    string `json:"country" validate:"omitempty,len=2"`
}

type checkoutRequest struct {
	Customer customerPayload `json:"customer" validate:"required"`
	Address  addressPayload  `json:"address" validate:"required"`
}

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "cart session required", nil)
		return
	}
	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := validate.Struct(payload); err != nil {
		var details []map[string]string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
			}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload", details)
		return
	}
	out, err := h.Svc.Place(r.Context(), session, Input{
		Customer: orders.Customer(payload.Customer),
		Address:  orders.Address(payload.Address),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry shortly", nil)
		return
	case errors.Is(err, orders.ErrDuplicate):
		common.JSONError(w, http.StatusConflict, "ORDER_CONFLICT", "order reference already used", nil)
		return
	}
	if status, _ := pricing.ErrorStatus(err); status != http.StatusInternalServerError {
		pricing.WriteError(w, err)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
