package main

import (
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mailroute/mailroute/internal/config"
	"github.com/mailroute/mailroute/internal/quota"
)

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"postgres://mail:s3cret@db:5432/mail?sslmode=disable", "postgres://mail@db:5432/mail?sslmode=disable"},
		{"redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"redis://cache:6379", "redis://cache:6379"},
	}

	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	dsn := "postgres://mail:s3cret@db:5432/mail"
	err := errors.New("dial " + dsn + ": refused; password=hunter2 rejected")

	got := sanitizeError(err, dsn)
	if strings.Contains(got, "s3cret") || strings.Contains(got, "hunter2") {
		t.Errorf("secret leaked: %q", got)
	}
	if sanitizeError(nil) != "" {
		t.Error("nil error should sanitize to empty string")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewQuotaStore_Memory(t *testing.T) {
	t.Parallel()

	store := newQuotaStore(&config.Config{QuotaBackend: config.QuotaBackendMemory}, nil, nil)
	if _, ok := store.(*quota.MemoryStore); !ok {
		t.Errorf("store = %T, want *quota.MemoryStore", store)
	}
}
