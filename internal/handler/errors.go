package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mailroute/mailroute/internal/middleware"
	"github.com/mailroute/mailroute/internal/service"
)

// writeServiceError maps management service errors onto the error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error())
	case errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_SCOPE", err.Error())
	case errors.Is(err, service.ErrInvalidDateRange):
		writeError(w, http.StatusUnprocessableEntity, "INVALID_DATE_RANGE", err.Error())
	case errors.Is(err, service.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "TEMPLATE_NOT_FOUND", "Template not found")
	case errors.Is(err, service.ErrTemplateNotOwned):
		writeError(w, http.StatusForbidden, "TEMPLATE_NOT_OWNED", "Template belongs to another user; copy it first")
	case errors.Is(err, service.ErrTemplateExists):
		writeError(w, http.StatusConflict, "TEMPLATE_EXISTS", "A template with this id already exists")
	case errors.Is(err, service.ErrAPIKeyNotFound):
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
	case errors.Is(err, service.ErrSMTPNotConfigured):
		writeError(w, http.StatusNotFound, "SMTP_NOT_CONFIGURED", "SMTP relay is not configured")
	default:
		logger.Error("request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
