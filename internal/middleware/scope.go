package middleware

import (
	"net/http"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
)

// RequireScope rejects requests whose API key lacks scope. Admin keys pass
// every check. It must run after Auth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	denied := "API key lacks the " + scope + " scope"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			switch {
			case authCtx == nil:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			case !authCtx.HasScope(scope):
				writeError(w, http.StatusForbidden, "FORBIDDEN", denied)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RequireRead guards listing and lookups.
func RequireRead() func(http.Handler) http.Handler { return RequireScope(model.ScopeRead) }

// RequireWrite guards template changes.
func RequireWrite() func(http.Handler) http.Handler { return RequireScope(model.ScopeWrite) }

// RequireAdmin guards key management and SMTP settings.
func RequireAdmin() func(http.Handler) http.Handler { return RequireScope(model.ScopeAdmin) }
