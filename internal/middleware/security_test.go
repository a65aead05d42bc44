package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		isDev  bool
		header string
		want   string
	}{
		{"nosniff", false, "X-Content-Type-Options", "nosniff"},
		{"no framing", false, "X-Frame-Options", "DENY"},
		{"no referrer", false, "Referrer-Policy", "no-referrer"},
		{"csp", false, "Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"no caching", false, "Cache-Control", "no-store"},
		{"hsts in production", false, "Strict-Transport-Security", hsts},
		{"no hsts in development", true, "Strict-Transport-Security", ""},
		{"headers kept in development", true, "X-Content-Type-Options", "nosniff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := Security(SecurityConfig{IsDevelopment: tt.isDev})(okHandler())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if got := rec.Header().Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		limit         int64
		body          string
		contentLength int64 // -1 means unknown (chunked)
		wantStatus    int
	}{
		{"within limit", 64, `{"subject":"hi"}`, 16, http.StatusOK},
		{"declared too large", 8, `{"subject":"hi"}`, 16, http.StatusRequestEntityTooLarge},
		{"streamed past limit", 8, `{"subject":"hi"}`, -1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := MaxBodySize(tt.limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := io.ReadAll(r.Body); err != nil {
					var tooLarge *http.MaxBytesError
					if errors.As(err, &tooLarge) {
						w.WriteHeader(http.StatusRequestEntityTooLarge)
						return
					}
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/templates", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
