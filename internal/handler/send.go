package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailroute/mailroute/internal/middleware"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/service"
)

// MaxSendBodySize caps the personal endpoint's JSON body.
const MaxSendBodySize = 1 << 20

// Dispatcher sends one templated message.
type Dispatcher interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*model.SendResult, error)
}

// SendHandler serves the personal endpoint POST /{username}/{template_id}.
type SendHandler struct {
	dispatcher  Dispatcher
	logger      *slog.Logger
	authFailMin time.Duration
}

// NewSendHandler creates a SendHandler.
func NewSendHandler(dispatcher Dispatcher, logger *slog.Logger) *SendHandler {
	return &SendHandler{
		dispatcher:  dispatcher,
		logger:      logger.With("component", "send_handler"),
		authFailMin: middleware.MinAuthFailureDuration,
	}
}

// Send handles POST /{username}/{template_id}.
func (h *SendHandler) Send(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxSendBodySize)
	var body model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeSendResult(w, http.StatusRequestEntityTooLarge, failure(model.ErrorKindValidation, "request body too large"))
			return
		}
		writeSendResult(w, http.StatusUnprocessableEntity, failure(model.ErrorKindValidation, "invalid JSON body"))
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), service.DispatchRequest{
		Username:       chi.URLParam(r, "username"),
		TemplateID:     chi.URLParam(r, "template_id"),
		APIKey:         middleware.ExtractAPIKey(r),
		RecipientEmail: body.RecipientEmail,
		Variables:      body.Variables,
	})
	if err != nil {
		h.writeDispatchError(w, r, start, err)
		return
	}

	writeSendResult(w, http.StatusOK, result)
}

func (h *SendHandler) writeDispatchError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	var (
		authErr       *service.AuthError
		notFoundErr   *service.NotFoundError
		validationErr *service.ValidationError
		rateLimitErr  *service.RateLimitError
		deliveryErr   *service.DeliveryError
	)

	switch {
	case errors.As(err, &authErr):
		middleware.WaitAtLeast(r.Context(), start, h.authFailMin)
		writeSendResult(w, http.StatusUnauthorized, failure(model.ErrorKindAuth, "invalid credentials"))
	case errors.As(err, &notFoundErr):
		writeSendResult(w, http.StatusNotFound, failure(model.ErrorKindNotFound, "template not found"))
	case errors.As(err, &validationErr):
		writeSendResult(w, http.StatusUnprocessableEntity, failure(model.ErrorKindValidation, validationErr.Error()))
	case errors.As(err, &rateLimitErr):
		secs := int64((rateLimitErr.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
		writeSendResult(w, http.StatusTooManyRequests, failure(model.ErrorKindRateLimit, "daily send limit reached"))
	case errors.As(err, &deliveryErr):
		status := http.StatusBadGateway
		if deliveryErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		writeSendResult(w, status, failure(model.ErrorKindDelivery, deliveryErr.Reason))
	default:
		h.logger.Error("dispatch failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeSendResult(w, http.StatusInternalServerError, failure(model.ErrorKindInternal, "internal error"))
	}
}

func failure(kind, message string) *model.SendResult {
	return &model.SendResult{Success: false, ErrorKind: kind, Message: message}
}

func writeSendResult(w http.ResponseWriter, status int, result *model.SendResult) {
	writeJSON(w, status, result)
}
