package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/render"
)

// TemplateUpserter creates or replaces templates.
type TemplateUpserter interface {
	Upsert(ctx context.Context, tpl *model.Template) error
}

// SystemTemplates are the built-in public templates every user can send.
var SystemTemplates = []model.TemplateRequest{
	{
		TemplateID: "welcome",
		Subject:    "Welcome to {{app_name}}, {{name}}",
		HTMLBody:   "<p>Hi {{name}},</p><p>Thanks for signing up for {{app_name}}.</p>",
		TextBody:   "Hi {{name}},\n\nThanks for signing up for {{app_name}}.",
	},
	{
		TemplateID: "verify-email",
		Subject:    "Confirm your email for {{app_name}}",
		HTMLBody:   `<p>Confirm your address by opening <a href="{{link}}">this link</a>.</p>`,
		TextBody:   "Confirm your address by opening {{link}}",
	},
	{
		TemplateID: "password-reset",
		Subject:    "Reset your {{app_name}} password",
		HTMLBody:   `<p>Use <a href="{{link}}">this link</a> to choose a new password. It expires in {{expires_in}}.</p>`,
		TextBody:   "Use this link to choose a new password: {{link}}\nIt expires in {{expires_in}}.",
	},
	{
		TemplateID: "otp",
		Subject:    "Your {{app_name}} code is {{code}}",
		HTMLBody:   "<p>Your one-time code is <strong>{{code}}</strong>.</p>",
		TextBody:   "Your one-time code is {{code}}.",
	},
	{
		TemplateID: "contact-form",
		Subject:    "New message from {{name}}",
		HTMLBody:   "<p><strong>{{name}}</strong> ({{email}}) wrote:</p><p>{{message}}</p>",
		TextBody:   "{{name}} ({{email}}) wrote:\n\n{{message}}",
	},
}

// SeedSystemTemplates upserts SystemTemplates and returns how many were
// written.
func SeedSystemTemplates(ctx context.Context, store TemplateUpserter) (int, error) {
	now := time.Now().UTC()
	for i, req := range SystemTemplates {
		tpl := &model.Template{
			OwnerUserID: model.SystemUserID,
			TemplateID:  req.TemplateID,
			Subject:     req.Subject,
			HTMLBody:    req.HTMLBody,
			TextBody:    req.TextBody,
			Variables:   render.Placeholders(req.Subject, req.HTMLBody, req.TextBody),
			IsPublic:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := store.Upsert(ctx, tpl); err != nil {
			return i, fmt.Errorf("seed %s: %w", req.TemplateID, err)
		}
	}
	return len(SystemTemplates), nil
}
