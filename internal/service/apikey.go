package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/repository"
)

// API key service errors.
var (
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrInvalidScope   = errors.New("invalid scope")
)

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, id string) (time.Time, error)
	RotateAPIKey(ctx context.Context, userID, oldID string, next *model.APIKey) (time.Time, error)
}

// KeyForgetter drops cached verifications of a key.
type KeyForgetter interface {
	Forget(ctx context.Context, keyID string) error
}

// APIKeyService manages the lifecycle of a user's API keys.
type APIKeyService struct {
	store  APIKeyStore
	forget KeyForgetter
	env    string
	logger *slog.Logger
}

// NewAPIKeyService creates an APIKeyService. env selects the key prefix
// (live or test).
func NewAPIKeyService(store APIKeyStore, forget KeyForgetter, env string, logger *slog.Logger) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyService{
		store:  store,
		forget: forget,
		env:    env,
		logger: logger.With("component", "apikey_service"),
	}
}

// CreatedKey is a stored key plus its plaintext, which is never stored.
type CreatedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// Create issues a new key for userID. Empty scopes default to read+write.
func (s *APIKeyService) Create(ctx context.Context, userID, name string, scopes []string) (*CreatedKey, error) {
	scopes, err := normalizeScopes(scopes)
	if err != nil {
		return nil, err
	}

	created, err := s.newKey(userID, name, scopes)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAPIKey(ctx, created.Key); err != nil {
		return nil, err
	}

	s.logger.Info("api key created", "user_id", userID, "key_id", created.Key.ID, "key_prefix", created.Key.KeyPrefix)
	return created, nil
}

// List returns all of the user's keys, revoked ones included.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return s.store.ListAPIKeysByUserID(ctx, userID)
}

// Revoke deactivates a key and evicts it from the auth cache.
func (s *APIKeyService) Revoke(ctx context.Context, userID, keyID string) (time.Time, error) {
	revokedAt, err := s.store.RevokeAPIKey(ctx, userID, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return time.Time{}, ErrAPIKeyNotFound
		}
		return time.Time{}, err
	}

	s.evict(ctx, keyID)
	s.logger.Info("api key revoked", "user_id", userID, "key_id", keyID)
	return revokedAt, nil
}

// RotatedKey describes a completed rotation.
type RotatedKey struct {
	OldKeyID  string
	RevokedAt time.Time
	New       *CreatedKey
}

// Rotate replaces an active key with a new one carrying the same name and
// scopes. The old key stops working immediately.
func (s *APIKeyService) Rotate(ctx context.Context, userID, keyID string) (*RotatedKey, error) {
	old, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}
	if old.UserID != userID || !old.IsActive {
		return nil, ErrAPIKeyNotFound
	}

	next, err := s.newKey(userID, old.Name, old.Scopes)
	if err != nil {
		return nil, err
	}

	revokedAt, err := s.store.RotateAPIKey(ctx, userID, keyID, next.Key)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}

	s.evict(ctx, keyID)
	s.logger.Info("api key rotated", "user_id", userID, "old_key_id", keyID, "new_key_id", next.Key.ID)
	return &RotatedKey{OldKeyID: keyID, RevokedAt: revokedAt, New: next}, nil
}

func (s *APIKeyService) newKey(userID, name string, scopes []string) (*CreatedKey, error) {
	generated, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}
	return &CreatedKey{
		Key: &model.APIKey{
			ID:        ulid.Make().String(),
			UserID:    userID,
			KeyHash:   generated.Hash,
			KeyPrefix: generated.Prefix,
			Scopes:    scopes,
			Name:      name,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		},
		Plaintext: generated.Plaintext,
	}, nil
}

// evict is best effort; a stale entry expires with the cache TTL.
func (s *APIKeyService) evict(ctx context.Context, keyID string) {
	if s.forget == nil {
		return
	}
	if err := s.forget.Forget(ctx, keyID); err != nil {
		s.logger.Error("failed to evict revoked key from auth cache", "key_id", keyID, "error", err)
	}
}

func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return []string{model.ScopeRead, model.ScopeWrite}, nil
	}
	out := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		if !slices.Contains(model.ValidScopes, sc) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidScope, sc)
		}
		if !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	slices.Sort(out)
	return out, nil
}
