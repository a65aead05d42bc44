package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
)

// TemplateManager is the template service used by TemplateHandler.
type TemplateManager interface {
	Create(ctx context.Context, userID string, req model.TemplateRequest) (*model.Template, error)
	Get(ctx context.Context, userID, templateID string) (*model.Template, error)
	List(ctx context.Context, userID string) ([]*model.Template, error)
	Update(ctx context.Context, userID, templateID string, req model.TemplateRequest) (*model.Template, error)
	Delete(ctx context.Context, userID, templateID string) error
	Copy(ctx context.Context, userID, templateID, newID string) (*model.Template, error)
}

// TemplateHandler handles template management endpoints.
type TemplateHandler struct {
	logger    *slog.Logger
	templates TemplateManager
}

// NewTemplateHandler creates a new TemplateHandler.
func NewTemplateHandler(logger *slog.Logger, templates TemplateManager) *TemplateHandler {
	return &TemplateHandler{logger: logger, templates: templates}
}

// List handles GET /api/v1/templates. It returns the caller's templates
// plus every public template they can dispatch.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	templates, err := h.templates.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	responses := make([]model.TemplateResponse, 0, len(templates))
	for _, tpl := range templates {
		responses = append(responses, tpl.ToResponse(userID))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": responses})
}

// Get handles GET /api/v1/templates/{template_id}.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	tpl, err := h.templates.Get(r.Context(), userID, chi.URLParam(r, "template_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl.ToResponse(userID))
}

// Create handles POST /api/v1/templates.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req model.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tpl, err := h.templates.Create(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("template created",
		slog.String("user_id", userID),
		slog.String("template_id", tpl.TemplateID),
		slog.Bool("public", tpl.IsPublic),
	)
	writeJSON(w, http.StatusCreated, tpl.ToResponse(userID))
}

// Update handles PUT /api/v1/templates/{template_id}. Only the owner may
// replace a template.
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	templateID := chi.URLParam(r, "template_id")

	var req model.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateID != "" && req.TemplateID != templateID {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "template_id cannot be changed")
		return
	}

	tpl, err := h.templates.Update(r.Context(), userID, templateID, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("template updated", slog.String("user_id", userID), slog.String("template_id", templateID))
	writeJSON(w, http.StatusOK, tpl.ToResponse(userID))
}

// Delete handles DELETE /api/v1/templates/{template_id}.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	templateID := chi.URLParam(r, "template_id")

	if err := h.templates.Delete(r.Context(), userID, templateID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("template deleted", slog.String("user_id", userID), slog.String("template_id", templateID))
	w.WriteHeader(http.StatusNoContent)
}

// Copy handles POST /api/v1/templates/{template_id}/copy. The body is
// optional and may name the new template id.
func (h *TemplateHandler) Copy(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req model.TemplateCopyRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	tpl, err := h.templates.Copy(r.Context(), userID, chi.URLParam(r, "template_id"), req.TemplateID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("template copied",
		slog.String("user_id", userID),
		slog.String("source_template_id", chi.URLParam(r, "template_id")),
		slog.String("template_id", tpl.TemplateID),
	)
	writeJSON(w, http.StatusCreated, tpl.ToResponse(userID))
}
