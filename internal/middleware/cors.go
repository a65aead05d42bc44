package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CORSConfig controls which browser origins may call the management API.
// The personal send endpoint is for servers and never carries CORS headers.
type CORSConfig struct {
	// AllowedOrigins holds exact origins ("https://app.example.com") or
	// subdomain patterns ("*.example.com"). Empty denies every origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	// MaxAge is how long a browser may cache a preflight answer.
	MaxAge time.Duration
}

// DefaultCORSConfig denies all origins and allows the management API's
// methods and headers once origins are configured.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         time.Hour,
	}
}

// CORS answers preflight requests and tags responses for allowed origins.
// Credentials travel in headers, so Access-Control-Allow-Credentials is
// never sent.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := newOriginMatcher(cfg.AllowedOrigins)
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	var maxAge string
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !origins.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				// The browser blocks the response without an allow header.
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

type originMatcher struct {
	exact    map[string]struct{}
	suffixes []string // ".example.com"
}

func newOriginMatcher(patterns []string) originMatcher {
	m := originMatcher{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		host := p
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if strings.HasPrefix(host, "*.") {
			m.suffixes = append(m.suffixes, host[1:])
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	if len(m.suffixes) == 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	for _, suffix := range m.suffixes {
		// "*.example.com" covers sub.example.com but not example.com itself.
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
