package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
)

func requestWithScopes(scopes ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	if scopes == nil {
		return req
	}
	ac := &model.AuthContext{KeyID: "01KEY", KeyPrefix: "a1b2c3", UserID: "01USER", Username: "alice", Scopes: scopes}
	return req.WithContext(auth.ContextWithAuth(req.Context(), ac))
}

func TestRequireScope(t *testing.T) {
	t.Parallel()

	read, write, admin := model.ScopeRead, model.ScopeWrite, model.ScopeAdmin

	tests := []struct {
		name       string
		guard      func() func(http.Handler) http.Handler
		scopes     []string
		wantStatus int
	}{
		{"read key reads", RequireRead, []string{read}, http.StatusOK},
		{"read key cannot write", RequireWrite, []string{read}, http.StatusForbidden},
		{"read key cannot administer", RequireAdmin, []string{read}, http.StatusForbidden},
		{"write key writes", RequireWrite, []string{read, write}, http.StatusOK},
		{"write-only key cannot read", RequireRead, []string{write}, http.StatusForbidden},
		{"write key cannot administer", RequireAdmin, []string{read, write}, http.StatusForbidden},
		{"admin reads", RequireRead, []string{admin}, http.StatusOK},
		{"admin writes", RequireWrite, []string{admin}, http.StatusOK},
		{"admin administers", RequireAdmin, []string{admin}, http.StatusOK},
		{"empty scopes", RequireRead, []string{}, http.StatusForbidden},
		{"no auth context", RequireRead, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			tt.guard()(okHandler()).ServeHTTP(rec, requestWithScopes(tt.scopes...))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireScope_ErrorEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RequireAdmin()(okHandler()).ServeHTTP(rec, requestWithScopes(model.ScopeRead))

	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "FORBIDDEN" {
		t.Errorf("code = %q, want FORBIDDEN", body.Error.Code)
	}
	if body.Error.Message != "API key lacks the admin scope" {
		t.Errorf("message = %q", body.Error.Message)
	}
}
