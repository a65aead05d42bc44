package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/mailroute/mailroute/internal/model"
)

// AuthError is returned when the username or API key cannot be verified.
// Callers must not reveal Reason to the client.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Reason }

// NotFoundError is returned when a template cannot be resolved for the user.
type NotFoundError struct {
	TemplateID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("template %q not found", e.TemplateID) }

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// RateLimitError is returned when the user's send quota is exhausted.
type RateLimitError struct {
	Limit      int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily limit of %d reached, retry after %s", e.Limit, e.RetryAfter)
}

// DeliveryError is returned when the SMTP relay did not accept the message.
type DeliveryError struct {
	Reason  string
	Timeout bool
	Err     error
}

func (e *DeliveryError) Error() string { return "delivery failed: " + e.Reason }

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrorKind maps an error returned by the service to its wire kind.
// Unrecognised errors are internal.
func ErrorKind(err error) string {
	var (
		authErr       *AuthError
		notFoundErr   *NotFoundError
		validationErr *ValidationError
		rateLimitErr  *RateLimitError
		deliveryErr   *DeliveryError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return model.ErrorKindAuth
	case errors.As(err, &notFoundErr):
		return model.ErrorKindNotFound
	case errors.As(err, &validationErr):
		return model.ErrorKindValidation
	case errors.As(err, &rateLimitErr):
		return model.ErrorKindRateLimit
	case errors.As(err, &deliveryErr):
		return model.ErrorKindDelivery
	default:
		return model.ErrorKindInternal
	}
}
