package model

import (
	"encoding/json"
	"time"
)

// Error kinds reported in SendResult.
const (
	ErrorKindAuth       = "auth_error"
	ErrorKindNotFound   = "not_found"
	ErrorKindValidation = "validation_error"
	ErrorKindRateLimit  = "rate_limited"
	ErrorKindDelivery   = "delivery_error"
	ErrorKindInternal   = "internal_error"
)

// SendRequest is the JSON body accepted by the personal endpoint.
type SendRequest struct {
	RecipientEmail string         `json:"recipient_email"`
	Variables      map[string]any `json:"variables,omitempty"`
}

// SendResult is returned to the caller of the personal endpoint.
// It is not persisted.
type SendResult struct {
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Send event statuses.
const (
	SendStatusSent        = "sent"
	SendStatusFailed      = "failed"
	SendStatusRateLimited = "rate_limited"
)

// SendEvent is a delivery log entry written by the analytics worker.
type SendEvent struct {
	ID      string `json:"id"`       // ULID
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	UserID          string `json:"user_id"`
	TemplateID      string `json:"template_id"`
	RecipientDomain string `json:"recipient_domain"`
	Status          string `json:"status"`
	ErrorKind       string `json:"error_kind,omitempty"`
	MessageID       string `json:"message_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DailySendStats holds per-user aggregated counters for one UTC day.
type DailySendStats struct {
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	Sent        int64     `json:"sent"`
	Failed      int64     `json:"failed"`
	RateLimited int64     `json:"rate_limited"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (s DailySendStats) MarshalJSON() ([]byte, error) {
	type alias DailySendStats
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{
		alias: alias(s),
		Date:  s.Date.UTC().Format("2006-01-02"),
	})
}

// UsageResponse reports quota consumption for the current window.
type UsageResponse struct {
	Username    string    `json:"username"`
	Sent        int64     `json:"sent"`
	Limit       int64     `json:"limit"` // -1 means unlimited
	Remaining   int64     `json:"remaining"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}
