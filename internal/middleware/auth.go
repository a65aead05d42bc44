package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/service"
)

// MinAuthFailureDuration is the minimum time a rejected authentication
// takes, so that callers cannot tell which check failed.
const MinAuthFailureDuration = 200 * time.Millisecond

// KeyAuthenticator verifies a bare API key.
type KeyAuthenticator interface {
	AuthenticateKey(ctx context.Context, key string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger        *slog.Logger
	Authenticator KeyAuthenticator
	// MinFailureDuration overrides MinAuthFailureDuration. Tests only.
	MinFailureDuration time.Duration
}

// Auth returns a middleware that authenticates management API requests.
// It extracts the API key from the Authorization or X-API-Key header,
// verifies it, and injects the auth context into the request.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	floor := cfg.MinFailureDuration
	if floor == 0 {
		floor = MinAuthFailureDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			key := ExtractAPIKey(r)
			if key == "" {
				authFailed(cfg.Logger, r, "missing_key")
				WaitAtLeast(r.Context(), start, floor)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			authCtx, err := cfg.Authenticator.AuthenticateKey(r.Context(), key)
			if err != nil {
				var authErr *service.AuthError
				if !errors.As(err, &authErr) {
					cfg.Logger.Error("authentication backend error",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
					return
				}
				authFailed(cfg.Logger, r, authErr.Reason)
				WaitAtLeast(r.Context(), start, floor)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
				return
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("key_id", authCtx.KeyID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.String("user_id", authCtx.UserID),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			annotateUser(r.Context(), authCtx.UserID)
			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authFailed(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", ClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// WaitAtLeast blocks until d has elapsed since start or ctx is done.
func WaitAtLeast(ctx context.Context, start time.Time, d time.Duration) {
	remaining := d - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// ExtractAPIKey extracts the API key from the request.
// Supports both "Authorization: Bearer <key>" and "X-API-Key: <key>" headers.
func ExtractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if key, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
