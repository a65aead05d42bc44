package analytics

import (
	"errors"
	"fmt"

	"github.com/mailroute/mailroute/internal/model"
)

const maxFieldLength = 255

// ValidateSendEventPayload rejects payloads the worker cannot persist.
func ValidateSendEventPayload(p SendEventPayload) error {
	if p.UserID == "" {
		return errors.New("user_id is required")
	}
	if p.TemplateID == "" {
		return errors.New("template_id is required")
	}
	switch p.Status {
	case model.SendStatusSent:
		if p.ErrorKind != "" {
			return errors.New("error_kind must be empty for sent events")
		}
	case model.SendStatusFailed, model.SendStatusRateLimited:
		if p.ErrorKind == "" {
			return fmt.Errorf("error_kind is required for %s events", p.Status)
		}
	default:
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.OccurredAt <= 0 {
		return errors.New("occurred_at must be set")
	}
	for name, v := range map[string]string{
		"user_id":          p.UserID,
		"template_id":      p.TemplateID,
		"recipient_domain": p.RecipientDomain,
		"message_id":       p.MessageID,
	} {
		if len(v) > maxFieldLength {
			return fmt.Errorf("%s too long", name)
		}
	}
	return nil
}
