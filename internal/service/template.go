package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/render"
	"github.com/mailroute/mailroute/internal/repository"
)

// Template service errors.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
	ErrTemplateNotOwned = errors.New("template is owned by another user")
)

const (
	maxSubjectLength = 998
	maxBodyLength    = 512 * 1024
)

// TemplateStore persists templates.
type TemplateStore interface {
	Create(ctx context.Context, tpl *model.Template) error
	Get(ctx context.Context, ownerID, templateID string) (*model.Template, error)
	Find(ctx context.Context, userID, templateID string) (*model.Template, error)
	List(ctx context.Context, userID string) ([]*model.Template, error)
	Update(ctx context.Context, tpl *model.Template) error
	Delete(ctx context.Context, ownerID, templateID string) error
}

// TemplateService manages user templates. Public templates are readable
// by everyone but only their owner may change them; others copy first.
type TemplateService struct {
	store TemplateStore
}

// NewTemplateService creates a TemplateService.
func NewTemplateService(store TemplateStore) *TemplateService {
	return &TemplateService{store: store}
}

// Create stores a new template owned by userID.
func (s *TemplateService) Create(ctx context.Context, userID string, req model.TemplateRequest) (*model.Template, error) {
	if !model.ValidTemplateID(req.TemplateID) {
		return nil, &ValidationError{Field: "template_id", Message: "must be 1-64 characters of letters, digits, '_' or '-'"}
	}
	tpl, err := buildTemplate(userID, req.TemplateID, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, tpl); err != nil {
		if errors.Is(err, repository.ErrTemplateExists) {
			return nil, ErrTemplateExists
		}
		return nil, err
	}
	return tpl, nil
}

// Get resolves a template the user can see.
func (s *TemplateService) Get(ctx context.Context, userID, templateID string) (*model.Template, error) {
	tpl, err := s.store.Find(ctx, userID, templateID)
	if err != nil {
		return nil, mapTemplateErr(err)
	}
	return tpl, nil
}

// List returns the user's templates and every public template.
func (s *TemplateService) List(ctx context.Context, userID string) ([]*model.Template, error) {
	return s.store.List(ctx, userID)
}

// Update replaces a template the user owns.
func (s *TemplateService) Update(ctx context.Context, userID, templateID string, req model.TemplateRequest) (*model.Template, error) {
	existing, err := s.owned(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}

	tpl, err := buildTemplate(userID, templateID, req)
	if err != nil {
		return nil, err
	}
	tpl.CreatedAt = existing.CreatedAt

	if err := s.store.Update(ctx, tpl); err != nil {
		return nil, mapTemplateErr(err)
	}
	return tpl, nil
}

// Delete removes a template the user owns.
func (s *TemplateService) Delete(ctx context.Context, userID, templateID string) error {
	if _, err := s.owned(ctx, userID, templateID); err != nil {
		return err
	}
	return mapTemplateErr(s.store.Delete(ctx, userID, templateID))
}

// Copy duplicates a visible template into the user's namespace as a
// private template. newID defaults to the source id.
func (s *TemplateService) Copy(ctx context.Context, userID, templateID, newID string) (*model.Template, error) {
	src, err := s.store.Find(ctx, userID, templateID)
	if err != nil {
		return nil, mapTemplateErr(err)
	}

	if newID == "" {
		newID = templateID
	}
	if !model.ValidTemplateID(newID) {
		return nil, &ValidationError{Field: "template_id", Message: "must be 1-64 characters of letters, digits, '_' or '-'"}
	}

	now := time.Now().UTC()
	dup := &model.Template{
		OwnerUserID: userID,
		TemplateID:  newID,
		Subject:     src.Subject,
		HTMLBody:    src.HTMLBody,
		TextBody:    src.TextBody,
		Variables:   slices.Clone(src.Variables),
		IsPublic:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, dup); err != nil {
		if errors.Is(err, repository.ErrTemplateExists) {
			return nil, ErrTemplateExists
		}
		return nil, err
	}
	return dup, nil
}

// owned returns the user's own template, distinguishing a template the user
// can see but not change from one that does not exist.
func (s *TemplateService) owned(ctx context.Context, userID, templateID string) (*model.Template, error) {
	tpl, err := s.store.Get(ctx, userID, templateID)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, repository.ErrTemplateNotFound) {
		return nil, err
	}
	if _, err := s.store.Find(ctx, userID, templateID); err == nil {
		return nil, ErrTemplateNotOwned
	}
	return nil, ErrTemplateNotFound
}

func buildTemplate(ownerID, templateID string, req model.TemplateRequest) (*model.Template, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return nil, &ValidationError{Field: "subject", Message: "is required"}
	}
	if len(req.Subject) > maxSubjectLength {
		return nil, &ValidationError{Field: "subject", Message: "is too long"}
	}
	if strings.TrimSpace(req.HTMLBody) == "" && strings.TrimSpace(req.TextBody) == "" {
		return nil, &ValidationError{Field: "html_body", Message: "html_body or text_body is required"}
	}
	if len(req.HTMLBody) > maxBodyLength || len(req.TextBody) > maxBodyLength {
		return nil, &ValidationError{Field: "html_body", Message: "body is too large"}
	}

	vars := render.Placeholders(req.Subject, req.HTMLBody, req.TextBody)
	if len(req.Variables) > 0 {
		vars = normalizeVariables(req.Variables)
		if vars == nil {
			return nil, &ValidationError{Field: "variables", Message: "names must be letters, digits or '_'"}
		}
	}

	now := time.Now().UTC()
	return &model.Template{
		OwnerUserID: ownerID,
		TemplateID:  templateID,
		Subject:     req.Subject,
		HTMLBody:    req.HTMLBody,
		TextBody:    req.TextBody,
		Variables:   vars,
		IsPublic:    req.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// normalizeVariables sorts and dedupes names, returning nil if any is not
// a valid placeholder identifier.
func normalizeVariables(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !render.ValidIdentifier(n) {
			return nil
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func mapTemplateErr(err error) error {
	if errors.Is(err, repository.ErrTemplateNotFound) {
		return ErrTemplateNotFound
	}
	return err
}
