package middleware

import "net/http"

// SecurityConfig holds configuration for response hardening.
type SecurityConfig struct {
	// IsDevelopment drops HSTS so plain-HTTP local setups keep working.
	IsDevelopment bool
	// MaxRequestBodySize caps management API bodies.
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns production defaults: HSTS on, 1MB bodies.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{MaxRequestBodySize: 1 << 20}
}

const hsts = "max-age=31536000; includeSubDomains"

// apiHeaders go on every response. Everything served is JSON or metrics
// text that no browser should render, frame or cache.
var apiHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// Security sets hardening headers before the handler runs.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects bodies that declare a Content-Length above maxBytes
// and caps the rest, so later reads fail with *http.MaxBytesError.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
