package orders

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler exposes recorded orders to the session that placed them.
type Handler struct {
	Repo Repository
}

// Get handles GET /api/v1/orders/{ref}. Orders of other sessions are reported
// as not found.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	ref := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ref")))
	if ref == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order reference required", nil)
		return
	}
	o, err := h.Repo.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if session, _ := common.SessionID(r.Context()); session != o.SessionID {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	common.Data(w, http.StatusOK, o)
}
