package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/service"
)

const dateLayout = "2006-01-02"

// UsageReporter is the usage service used by AccountHandler.
type UsageReporter interface {
	User(ctx context.Context, userID string) (*model.User, error)
	Usage(ctx context.Context, user *model.User) (*model.UsageResponse, error)
	Stats(ctx context.Context, userID string, from, to time.Time) ([]*model.DailySendStats, error)
}

// AccountHandler serves the caller's profile, quota usage and statistics.
type AccountHandler struct {
	logger *slog.Logger
	usage  UsageReporter
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(logger *slog.Logger, usage UsageReporter) *AccountHandler {
	return &AccountHandler{logger: logger, usage: usage}
}

// MeResponse is the body of GET /api/v1/me.
type MeResponse struct {
	User   *model.User          `json:"user"`
	Scopes []string             `json:"scopes"`
	KeyID  string               `json:"key_id"`
	Usage  *model.UsageResponse `json:"usage"`
}

// Me handles GET /api/v1/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())

	user, usage, ok := h.load(w, r, authCtx.UserID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		User:   user,
		Scopes: authCtx.Scopes,
		KeyID:  authCtx.KeyID,
		Usage:  usage,
	})
}

// Usage handles GET /api/v1/usage.
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	_, usage, ok := h.load(w, r, auth.UserIDFromContext(r.Context()))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// Stats handles GET /api/v1/stats?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	from, ok := parseDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDate(w, r, "to")
	if !ok {
		return
	}

	stats, err := h.usage.Stats(r.Context(), userID, from, to)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": stats})
}

func (h *AccountHandler) load(w http.ResponseWriter, r *http.Request, userID string) (*model.User, *model.UsageResponse, bool) {
	user, err := h.usage.User(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, nil, false
	}
	usage, err := h.usage.Usage(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return nil, nil, false
	}
	return user, usage, true
}

func parseDate(w http.ResponseWriter, r *http.Request, param string) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeServiceError(w, r, nil, &service.ValidationError{Field: param, Message: "must be a date in YYYY-MM-DD format"})
		return time.Time{}, false
	}
	return t, true
}
