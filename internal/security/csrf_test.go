package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func csrfTarget() http.Handler {
	return CSRF{Header: "X-CSRF-Token"}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFBlocksCookieSessionWithoutToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "abc"})
	rr := httptest.NewRecorder()
	csrfTarget().ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "CSRF_REJECTED")
}

func TestCSRFAllowsMatchingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "abc"})
	req.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "secure-token"})
	req.Header.Set("X-CSRF-Token", "secure-token")
	rr := httptest.NewRecorder()
	csrfTarget().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCSRFRejectsMismatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "abc"})
	req.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "one"})
	req.Header.Set("X-CSRF-Token", "two")
	rr := httptest.NewRecorder()
	csrfTarget().ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCSRFSkipsHeaderSessionsAndSafeMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.Header.Set("X-Cart-Session", "abc")
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "abc"})
	rr := httptest.NewRecorder()
	csrfTarget().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	get := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	get.AddCookie(&http.Cookie{Name: "cart_session", Value: "abc"})
	rr = httptest.NewRecorder()
	csrfTarget().ServeHTTP(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
}
