package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoBody(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		wantStatus    int
	}{
		{"within limit", 64, `{"productId":1,"quantity":2}`, 0, http.StatusOK},
		{"exactly at limit", 5, "12345", 0, http.StatusOK},
		{"one byte over", 5, "123456", 0, http.StatusRequestEntityTooLarge},
		{"declared length over", 5, "abc", 100, http.StatusRequestEntityTooLarge},
		{"unknown length over", 5, "abcdefgh", -1, http.StatusRequestEntityTooLarge},
		{"limit disabled", 0, strings.Repeat("x", 4096), 0, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := BodyLimit{Max: tc.max}.Middleware(echoBody(t))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.body))
			if tc.contentLength != 0 {
				req.ContentLength = tc.contentLength
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}

func TestBodyLimitRejectionEnvelope(t *testing.T) {
	handler := BodyLimit{Max: 16}.Middleware(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(strings.Repeat("a", 17)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
	require.NotEmpty(t, env.Error.Message)
	require.EqualValues(t, 16, env.Error.Details["maxBytes"])
}

func TestBodyLimitRestoresContentLength(t *testing.T) {
	var seen int64
	handler := BodyLimit{Max: 32}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("hello"))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.EqualValues(t, 5, seen)
}
