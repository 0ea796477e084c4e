// Package security holds response hardening and request size middleware.
package security

import (
	"net/http"
	"strconv"
)

var staticHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	// quotes and payment intents are per shopper and short lived
	{"Cache-Control", "no-store"},
}

// Headers hardens responses of the JSON API. HSTS is only sent on requests
// that arrived over TLS, directly or behind a proxy that sets X-Forwarded-Proto.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := ""
	if h.EnableHSTS {
		maxAge := h.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 31536000
		}
		hsts = "max-age=" + strconv.Itoa(maxAge)
		if h.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range staticHeaders {
			hdr.Set(kv[0], kv[1])
		}
		if hsts != "" && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
