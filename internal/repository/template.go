package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	gocache "github.com/patrickmn/go-cache"

	"github.com/mailroute/mailroute/internal/model"
)

// Common errors for template repository operations.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
)

const templateColumns = `owner_user_id, template_id, subject, html_body, COALESCE(text_body, ''), variables, is_public, created_at, updated_at`

// publicMiss marks a cached negative lookup.
type publicMiss struct{}

// TemplateRepository reads and writes templates. Lookups that fall back to
// public templates are cached in process for ttl.
type TemplateRepository struct {
	repo   *Repository
	public *gocache.Cache
}

// NewTemplateRepository creates a TemplateRepository. A non-positive ttl
// disables the public template cache.
func NewTemplateRepository(repo *Repository, ttl time.Duration) *TemplateRepository {
	t := &TemplateRepository{repo: repo}
	if ttl > 0 {
		t.public = gocache.New(ttl, 2*ttl)
	}
	return t
}

// Create inserts a template. Returns ErrTemplateExists when the owner
// already has a template with the same id.
func (t *TemplateRepository) Create(ctx context.Context, tpl *model.Template) error {
	query := `
		INSERT INTO templates (owner_user_id, template_id, subject, html_body, text_body, variables, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err := t.repo.pool.Exec(ctx, query,
		tpl.OwnerUserID,
		tpl.TemplateID,
		tpl.Subject,
		tpl.HTMLBody,
		nullableString(tpl.TextBody),
		variablesArray(tpl.Variables),
		tpl.IsPublic,
		tpl.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTemplateExists
		}
		return fmt.Errorf("failed to create template: %w", err)
	}

	tpl.UpdatedAt = tpl.CreatedAt
	t.forgetPublic(tpl.TemplateID)
	return nil
}

// Get returns the template owned by ownerID, without fallback.
func (t *TemplateRepository) Get(ctx context.Context, ownerID, templateID string) (*model.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE owner_user_id = $1 AND template_id = $2`
	return scanTemplate(t.repo.pool.QueryRow(ctx, query, ownerID, templateID))
}

// Find resolves templateID for userID: the user's own template wins, then a
// system template, then the oldest public template from another user.
func (t *TemplateRepository) Find(ctx context.Context, userID, templateID string) (*model.Template, error) {
	tpl, err := t.Get(ctx, userID, templateID)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, ErrTemplateNotFound) {
		return nil, err
	}
	return t.FindPublic(ctx, templateID)
}

// FindPublic resolves a public template by id.
func (t *TemplateRepository) FindPublic(ctx context.Context, templateID string) (*model.Template, error) {
	if t.public != nil {
		if v, ok := t.public.Get(templateID); ok {
			if tpl, ok := v.(*model.Template); ok {
				return tpl, nil
			}
			return nil, ErrTemplateNotFound
		}
	}

	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE template_id = $1 AND is_public
		ORDER BY (owner_user_id = $2) DESC, created_at ASC
		LIMIT 1
	`
	tpl, err := scanTemplate(t.repo.pool.QueryRow(ctx, query, templateID, model.SystemUserID))
	if t.public != nil {
		switch {
		case err == nil:
			t.public.SetDefault(templateID, tpl)
		case errors.Is(err, ErrTemplateNotFound):
			t.public.SetDefault(templateID, publicMiss{})
		}
	}
	return tpl, err
}

// List returns the user's templates followed by public templates owned by
// others.
func (t *TemplateRepository) List(ctx context.Context, userID string) ([]*model.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE owner_user_id = $1 OR is_public
		ORDER BY (owner_user_id = $1) DESC, template_id ASC, created_at ASC
	`

	rows, err := t.repo.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Update replaces the mutable fields of a template owned by tpl.OwnerUserID.
func (t *TemplateRepository) Update(ctx context.Context, tpl *model.Template) error {
	query := `
		UPDATE templates
		SET subject = $3, html_body = $4, text_body = $5, variables = $6, is_public = $7, updated_at = $8
		WHERE owner_user_id = $1 AND template_id = $2
	`

	tpl.UpdatedAt = time.Now().UTC()
	result, err := t.repo.pool.Exec(ctx, query,
		tpl.OwnerUserID,
		tpl.TemplateID,
		tpl.Subject,
		tpl.HTMLBody,
		nullableString(tpl.TextBody),
		variablesArray(tpl.Variables),
		tpl.IsPublic,
		tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}

	t.forgetPublic(tpl.TemplateID)
	return nil
}

// Upsert creates or replaces a template. Used to seed system templates.
func (t *TemplateRepository) Upsert(ctx context.Context, tpl *model.Template) error {
	query := `
		INSERT INTO templates (owner_user_id, template_id, subject, html_body, text_body, variables, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (owner_user_id, template_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			html_body = EXCLUDED.html_body,
			text_body = EXCLUDED.text_body,
			variables = EXCLUDED.variables,
			is_public = EXCLUDED.is_public,
			updated_at = EXCLUDED.updated_at
	`

	_, err := t.repo.pool.Exec(ctx, query,
		tpl.OwnerUserID,
		tpl.TemplateID,
		tpl.Subject,
		tpl.HTMLBody,
		nullableString(tpl.TextBody),
		variablesArray(tpl.Variables),
		tpl.IsPublic,
		tpl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}

	t.forgetPublic(tpl.TemplateID)
	return nil
}

// Delete removes a template owned by ownerID.
func (t *TemplateRepository) Delete(ctx context.Context, ownerID, templateID string) error {
	result, err := t.repo.pool.Exec(ctx,
		`DELETE FROM templates WHERE owner_user_id = $1 AND template_id = $2`,
		ownerID, templateID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}

	t.forgetPublic(templateID)
	return nil
}

// forgetPublic drops the cached public lookup. Other instances converge
// after the cache ttl.
func (t *TemplateRepository) forgetPublic(templateID string) {
	if t.public != nil {
		t.public.Delete(templateID)
	}
}

func scanTemplate(row pgx.Row) (*model.Template, error) {
	var tpl model.Template
	var vars []string

	err := row.Scan(
		&tpl.OwnerUserID,
		&tpl.TemplateID,
		&tpl.Subject,
		&tpl.HTMLBody,
		&tpl.TextBody,
		pq.Array(&vars),
		&tpl.IsPublic,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	tpl.Variables = vars
	return &tpl, nil
}

// variablesArray keeps a nil slice from being written as NULL.
func variablesArray(v []string) any {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}
