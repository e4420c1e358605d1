package security

import (
	"net/http"
	"slices"
	"strconv"
	"time"
)

// HeadersConfig lists the headers stamped on every API response.
type HeadersConfig struct {
	// Static headers are set before the handler runs, so handlers may
	// override them (an export download replacing Cache-Control, say).
	Static http.Header

	// HSTS is the Strict-Transport-Security value; only sent over TLS.
	HSTS string
}

// DefaultHeadersConfig suits a JSON API: responses are never rendered as a
// document, framed or cached.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		Static: http.Header{
			"Content-Security-Policy":      {"default-src 'none'; frame-ancestors 'none'"},
			"X-Content-Type-Options":       {"nosniff"},
			"X-Frame-Options":              {"DENY"},
			"Referrer-Policy":              {"no-referrer"},
			"Cross-Origin-Resource-Policy": {"same-origin"},
			"Cache-Control":                {"no-store"},
		},
		HSTS: HSTSValue(365*24*time.Hour, true),
	}
}

// HSTSValue formats a Strict-Transport-Security value.
func HSTSValue(maxAge time.Duration, includeSubdomains bool) string {
	v := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10)
	if includeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

type HeadersMiddleware struct {
	static http.Header
	hsts   string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	static := make(http.Header, len(config.Static))
	for k, v := range config.Static {
		static[http.CanonicalHeaderKey(k)] = slices.Clone(v)
	}
	return &HeadersMiddleware{static: static, hsts: config.HSTS}
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for k, v := range h.static {
			headers[k] = slices.Clone(v)
		}
		if r.TLS != nil && h.hsts != "" {
			headers.Set("Strict-Transport-Security", h.hsts)
		}
		next.ServeHTTP(w, r)
	})
}
