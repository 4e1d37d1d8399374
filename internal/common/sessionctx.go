package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const sessionIDKey ctxKey = "cart/session-id"

// WithSessionID stores the resolved cart session identifier on the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the cart session identifier from the context if present.
func SessionID(ctx context.Context) (string, bool) {
	v := ctx.Value(sessionIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// Session transport names shared by the cart middleware and request logging.
const (
	SessionHeader = "X-Cart-Session"
	SessionCookie = "cart_session"
)

// SessionIDFromRequest reads the cart session from the header, then the
// cookie. It does not validate the value.
func SessionIDFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if v := strings.TrimSpace(r.Header.Get(SessionHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
