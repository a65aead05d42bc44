package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
)

// SMTPManager is the relay settings service used by SMTPHandler.
type SMTPManager interface {
	Get(ctx context.Context, userID string) (*model.SMTPConfig, error)
	Set(ctx context.Context, userID string, req model.SMTPConfigRequest) (*model.SMTPConfig, error)
}

// SMTPHandler handles the SMTP relay settings endpoints.
type SMTPHandler struct {
	logger *slog.Logger
	smtp   SMTPManager
}

// NewSMTPHandler creates a new SMTPHandler.
func NewSMTPHandler(logger *slog.Logger, smtp SMTPManager) *SMTPHandler {
	return &SMTPHandler{logger: logger, smtp: smtp}
}

// Get handles GET /api/v1/smtp. The password is never returned.
func (h *SMTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	cfg, err := h.smtp.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.ToResponse())
}

// Put handles PUT /api/v1/smtp. An omitted password keeps the stored one.
func (h *SMTPHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req model.SMTPConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.smtp.Set(r.Context(), userID, req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	// Re-read so has_password reflects a kept secret.
	cfg, err := h.smtp.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("smtp config updated",
		slog.String("user_id", userID),
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("tls_mode", cfg.TLSMode),
	)
	writeJSON(w, http.StatusOK, cfg.ToResponse())
}
