package model

import (
	"regexp"
	"time"
)

var templateIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Template is a stored subject/body pair with named placeholders.
// It is addressed only by (OwnerUserID, TemplateID); there is no surrogate key.
type Template struct {
	OwnerUserID string    `json:"owner_user_id"`
	TemplateID  string    `json:"template_id"`
	Subject     string    `json:"subject"`
	HTMLBody    string    `json:"html_body"`
	TextBody    string    `json:"text_body,omitempty"`
	Variables   []string  `json:"variables"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsOwnedBy reports whether userID may mutate the template.
func (t *Template) IsOwnedBy(userID string) bool {
	return t.OwnerUserID == userID
}

// IsSystem reports whether the template is a built-in system template.
func (t *Template) IsSystem() bool {
	return t.OwnerUserID == SystemUserID
}

// ValidTemplateID reports whether s is an acceptable template identifier.
func ValidTemplateID(s string) bool {
	return templateIDRegex.MatchString(s)
}

// TemplateRequest is the body for creating or replacing a template.
type TemplateRequest struct {
	TemplateID string   `json:"template_id"`
	Subject    string   `json:"subject"`
	HTMLBody   string   `json:"html_body"`
	TextBody   string   `json:"text_body,omitempty"`
	Variables  []string `json:"variables,omitempty"`
	IsPublic   bool     `json:"is_public"`
}

// TemplateCopyRequest copies a public template into the caller's namespace.
type TemplateCopyRequest struct {
	TemplateID string `json:"template_id,omitempty"`
}

// TemplateResponse is the API view of a template.
type TemplateResponse struct {
	TemplateID string    `json:"template_id"`
	Subject    string    `json:"subject"`
	HTMLBody   string    `json:"html_body"`
	TextBody   string    `json:"text_body,omitempty"`
	Variables  []string  `json:"variables"`
	IsPublic   bool      `json:"is_public"`
	Owned      bool      `json:"owned"`
	System     bool      `json:"system"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToResponse converts a Template to its API view for the given viewer.
func (t *Template) ToResponse(viewerID string) TemplateResponse {
	vars := t.Variables
	if vars == nil {
		vars = []string{}
	}
	return TemplateResponse{
		TemplateID: t.TemplateID,
		Subject:    t.Subject,
		HTMLBody:   t.HTMLBody,
		TextBody:   t.TextBody,
		Variables:  vars,
		IsPublic:   t.IsPublic,
		Owned:      t.IsOwnedBy(viewerID),
		System:     t.IsSystem(),
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
