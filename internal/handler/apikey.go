package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/service"
)

// APIKeyManager is the key lifecycle used by APIKeyHandler.
type APIKeyManager interface {
	Create(ctx context.Context, userID, name string, scopes []string) (*service.CreatedKey, error)
	List(ctx context.Context, userID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, userID, keyID string) (time.Time, error)
	Rotate(ctx context.Context, userID, keyID string) (*service.RotatedKey, error)
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	logger *slog.Logger
	keys   APIKeyManager
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(logger *slog.Logger, keys APIKeyManager) *APIKeyHandler {
	return &APIKeyHandler{
		logger: logger,
		keys:   keys,
	}
}

// CreateAPIKey handles POST /api/v1/api-keys
func (h *APIKeyHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req model.APIKeyCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.keys.Create(r.Context(), authCtx.UserID, req.Name, req.Scopes)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	// The plaintext key is shown once only.
	writeJSON(w, http.StatusCreated, createResponse(created))
}

// ListAPIKeys handles GET /api/v1/api-keys
func (h *APIKeyHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	keys, err := h.keys.List(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// RevokeAPIKey handles DELETE /api/v1/api-keys/{key_id}
func (h *APIKeyHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	if _, err := h.keys.Revoke(r.Context(), authCtx.UserID, chi.URLParam(r, "key_id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RotateAPIKey handles POST /api/v1/api-keys/{key_id}/rotate
func (h *APIKeyHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	rotated, err := h.keys.Rotate(r.Context(), authCtx.UserID, chi.URLParam(r, "key_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.APIKeyRotateResponse{
		OldKeyID:        rotated.OldKeyID,
		OldKeyRevokedAt: rotated.RevokedAt,
		NewKey:          createResponse(rotated.New),
	})
}

func createResponse(created *service.CreatedKey) model.APIKeyCreateResponse {
	return model.APIKeyCreateResponse{
		ID:        created.Key.ID,
		Key:       created.Plaintext,
		Name:      created.Key.Name,
		KeyPrefix: created.Key.KeyPrefix,
		Scopes:    created.Key.Scopes,
		CreatedAt: created.Key.CreatedAt,
	}
}
