package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestIdemRejectsReplayPerSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	status := http.StatusCreated
	h := Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	send := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req.Header.Set("Idempotency-Key", "k1")
		req = req.WithContext(WithSessionID(req.Context(), session))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusCreated, send("s1"))
	require.Equal(t, http.StatusConflict, send("s1"))
	require.Equal(t, http.StatusCreated, send("s2"))
	require.Equal(t, 2, calls)

	status = http.StatusBadGateway
	require.Equal(t, http.StatusBadGateway, send("s3"))
	require.Equal(t, http.StatusBadGateway, send("s3"))
	require.Equal(t, 4, calls)
}

func TestSessionIDFromRequestPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, SessionIDFromRequest(req))

	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	require.Equal(t, "from-cookie", SessionIDFromRequest(req))

	req.Header.Set(SessionHeader, " from-header ")
	require.Equal(t, "from-header", SessionIDFromRequest(req))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "not-an-ip")
	require.Equal(t, "10.0.0.1", ClientIP(req))
}

func TestPagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=2&per_page=5000", nil)
	page, perPage := ParsePagination(req, 50)
	require.Equal(t, 2, page)
	require.Equal(t, MaxPerPage, perPage)

	items := []int{1, 2, 3, 4, 5}
	require.Equal(t, []int{3, 4}, Page(items, 2, 2))
	require.Equal(t, []int{5}, Page(items, 3, 2))
	require.Empty(t, Page(items, 4, 2))
}
