package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// CSRF protects cookie-carried cart sessions using the double-submit
// technique. Requests that name their session in the X-Cart-Session header
// cannot be forged cross-site and pass through.
type CSRF struct {
	Header string
}

// Middleware enforces that unsafe requests include a token header matching
// the cookie of the same name.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		if strings.TrimSpace(r.Header.Get(common.SessionHeader)) != "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := r.Cookie(common.SessionCookie); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf token", nil)
			return
		}
		cookie, err := r.Cookie(headerName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf cookie", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(strings.TrimSpace(cookie.Value))) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "csrf token mismatch", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
