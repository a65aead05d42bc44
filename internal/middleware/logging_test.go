package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailroute/mailroute/internal/metrics"
)

// logLine runs one request through Logger and returns the decoded log entry.
func logLine(t *testing.T, h http.Handler, req *http.Request) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	Logger(logger, metrics.NewInMemory())(h).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogging_NeverLogsCredentials(t *testing.T) {
	t.Parallel()

	key := "mr_live_a1b2c3_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"
	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"bearer", "Authorization", "Bearer " + key},
		{"x-api-key", "X-API-Key", key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			req := httptest.NewRequest(http.MethodPost, "/alice/welcome", strings.NewReader(`{"recipient_email":"bob@example.com"}`))
			req.Header.Set(tt.header, tt.value)

			Logger(logger, nil)(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			for _, secret := range []string{key, "mr_live_", "Bearer", "bob@example.com"} {
				if strings.Contains(out, secret) {
					t.Errorf("log output contains %q: %s", secret, out)
				}
			}
		})
	}
}

func TestLogging_Fields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logger(slog.New(slog.NewJSONHandler(&buf, nil)), nil))
	r.Post("/{username}/{template_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/alice/welcome", nil)
	req.Header.Set("User-Agent", "billing-service/2.0")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}

	want := map[string]any{
		"msg":         "http request",
		"method":      "POST",
		"path":        "/alice/welcome",
		"route":       "/{username}/{template_id}",
		"status_code": float64(201),
		"user_agent":  "billing-service/2.0",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be absent for unauthenticated requests")
	}
}

func TestLogging_UnmatchedRoute(t *testing.T) {
	t.Parallel()

	entry := logLine(t, chi.NewRouter(), httptest.NewRequest(http.MethodGet, "/nope/nope/nope", nil))
	if entry["route"] != "unmatched" {
		t.Errorf("route = %v, want unmatched", entry["route"])
	}
}

func TestLogging_UserFromAuth(t *testing.T) {
	t.Parallel()

	h := newAuthHandler(&fakeKeyAuth{key: testKey}, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-API-Key", testKey)
	entry := logLine(t, h, req)

	if entry["user_id"] != "alice" {
		t.Errorf("user_id = %v, want alice", entry["user_id"])
	}
}

func TestLogging_Level(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNoContent, "INFO"},
		{http.StatusUnauthorized, "WARN"},
		{http.StatusUnprocessableEntity, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
		{http.StatusBadGateway, "ERROR"},
		{http.StatusGatewayTimeout, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(tt.status) })
			entry := logLine(t, h, httptest.NewRequest(http.MethodPost, "/alice/welcome", nil))
			if entry["level"] != tt.want {
				t.Errorf("level = %v, want %s", entry["level"], tt.want)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	t.Run("defaults to 200 on write", func(t *testing.T) {
		rw := wrapResponseWriter(httptest.NewRecorder())
		_, _ = rw.Write([]byte("{}"))
		if rw.status != http.StatusOK {
			t.Errorf("status = %d, want 200", rw.status)
		}
	})

	t.Run("first WriteHeader wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := wrapResponseWriter(rec)
		rw.WriteHeader(http.StatusTooManyRequests)
		rw.WriteHeader(http.StatusInternalServerError)
		if rw.status != http.StatusTooManyRequests || rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, recorder = %d, want 429", rw.status, rec.Code)
		}
	})
}

func TestLogging_RecordsMetrics(t *testing.T) {
	t.Parallel()

	recorder := metrics.NewInMemory()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	h := Logger(logger, recorder)(okHandler())

	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}

	if got := recorder.Snapshot().HTTPRequests; got != 3 {
		t.Errorf("HTTPRequests = %d, want 3", got)
	}
}
