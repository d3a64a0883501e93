package binding

import (
	"net/http"
	"time"
)

const (
	// HeaderName carries the binding on API requests.
	HeaderName = "X-Member-Binding"
	// CookieName carries the binding for browser clients.
	CookieName = "member_binding"
	// QueryParam carries the binding on websocket upgrades from clients that
	// cannot set headers.
	QueryParam = "binding"
)

// FromHeader returns the binding carried in h, preferring the explicit
// header over the cookie.
func FromHeader(h http.Header) string {
	if token := h.Get(HeaderName); token != "" {
		return token
	}
	r := http.Request{Header: h}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// FromRequest is FromHeader with a fallback to the query string.
func FromRequest(r *http.Request) string {
	if token := FromHeader(r.Header); token != "" {
		return token
	}
	return r.URL.Query().Get(QueryParam)
}

// Cookie wraps token for Set-Cookie. A zero ttl makes a session cookie.
func Cookie(token string, ttl time.Duration, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}
