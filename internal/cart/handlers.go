package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// CSRFCookie is the double-submit cookie issued alongside a new session.
const CSRFCookie = "X-CSRF-Token"

// CookieOptions control the cookies issued by NewSession.
type CookieOptions struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	TTL      time.Duration
}

// Handler exposes the session cart endpoints.
type Handler struct {
	Svc      *Service
	Currency string
	Cookies  CookieOptions
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type addItemRequest struct {
	ProductID int `json:"productId" validate:"required,min=1"`
	Quantity  int `json:"quantity" validate:"required,min=1,max=9999"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=9999"`
}

// RequireSession resolves the cart session from the header or cookie and
// rejects requests without a valid one.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := common.SessionIDFromRequest(r)
		if raw == "" {
			common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "cart session required", nil)
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "SESSION_INVALID", "cart session must be a UUID", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSessionID(r.Context(), id.String())))
	})
}

// NewSession handles POST /api/v1/cart/session.
func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	maxAge := int(h.Cookies.TTL / time.Second)
	sameSite := h.Cookies.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookie,
		Value:    id,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.Cookies.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    uuid.NewString(),
		Path:     "/",
		Domain:   h.Cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.Cookies.Secure,
		SameSite: sameSite,
	})
	w.Header().Set(common.SessionHeader, id)
	common.Data(w, http.StatusCreated, map[string]any{"session": id})
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.View(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if !decode(w, r, &payload) {
		return
	}
	view, err := h.Svc.Add(r.Context(), session, payload.ProductID, payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w, http.StatusCreated, view)
}

// UpdateItem handles PATCH /api/v1/cart/items/{productId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := productParam(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if !decode(w, r, &payload) {
		return
	}
	view, err := h.Svc.SetQuantity(r.Context(), session, productID, *payload.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := productParam(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Remove(r.Context(), session, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), session); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "cart session required", nil)
		return "", false
	}
	return session, true
}

func (h *Handler) writeView(w http.ResponseWriter, status int, view View) {
	common.JSON(w, status, map[string]any{"data": view, "currency": h.Currency})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var details []map[string]string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, map[string]string{"field": fe.Field(), "rule": fe.Tag()})
			}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid payload", details)
		return false
	}
	return true
}

func productParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "productId"))
	if err != nil || id < 1 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "LINE_NOT_FOUND", err.Error(), nil)
		return
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry shortly", nil)
		return
	}
	if status, code, ok := catalog.ErrorStatus(err); ok {
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	if status, _ := pricing.ErrorStatus(err); status != http.StatusInternalServerError {
		pricing.WriteError(w, err)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
