package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/metrics"
	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/repository"
)

const lastUsedTimeout = 5 * time.Second

// UserStore looks up users.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// KeyStore looks up API key candidates for verification.
type KeyStore interface {
	GetActiveAPIKeysByPrefix(ctx context.Context, userID, prefix string) ([]*model.APIKey, error)
	FindActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache remembers verified keys so argon2 runs once per TTL.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
	InvalidateKey(ctx context.Context, keyID string) error
}

// Authenticator verifies API keys for both the personal endpoint and the
// management API.
type Authenticator struct {
	users   UserStore
	keys    KeyStore
	cache   AuthCache
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewAuthenticator creates an Authenticator. cache may be nil.
func NewAuthenticator(users UserStore, keys KeyStore, cache AuthCache, logger *slog.Logger, recorder metrics.Recorder) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Authenticator{
		users:   users,
		keys:    keys,
		cache:   cache,
		logger:  logger.With("component", "authenticator"),
		metrics: recorder,
	}
}

// AuthenticateUser verifies that key is an active key of username.
func (a *Authenticator) AuthenticateUser(ctx context.Context, username, key string) (*model.User, *model.AuthContext, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.VerifyDummy(key)
			return nil, nil, &AuthError{Reason: "unknown user"}
		}
		return nil, nil, fmt.Errorf("lookup user: %w", err)
	}

	cacheKey := auth.CacheKey(key)
	if cached := a.cached(ctx, cacheKey); cached != nil && cached.UserID == user.ID {
		return user, cached, nil
	}

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		auth.VerifyDummy(key)
		return nil, nil, &AuthError{Reason: "invalid key"}
	}

	candidates, err := a.keys.GetActiveAPIKeysByPrefix(ctx, user.ID, parsed.Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup api keys: %w", err)
	}

	matched := verify(key, candidates)
	if matched == nil {
		return nil, nil, &AuthError{Reason: "invalid key"}
	}

	authCtx := newAuthContext(matched, user)
	a.remember(ctx, cacheKey, authCtx)
	return user, authCtx, nil
}

// AuthenticateKey verifies key without a username, for the management API.
func (a *Authenticator) AuthenticateKey(ctx context.Context, key string) (*model.AuthContext, error) {
	cacheKey := auth.CacheKey(key)
	if cached := a.cached(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		auth.VerifyDummy(key)
		return nil, &AuthError{Reason: "invalid key"}
	}

	candidates, err := a.keys.FindActiveAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		return nil, fmt.Errorf("lookup api keys: %w", err)
	}

	matched := verify(key, candidates)
	if matched == nil {
		return nil, &AuthError{Reason: "invalid key"}
	}

	user, err := a.users.GetUserByID(ctx, matched.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, &AuthError{Reason: "orphaned key"}
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	authCtx := newAuthContext(matched, user)
	a.remember(ctx, cacheKey, authCtx)
	return authCtx, nil
}

// Forget drops cached verifications of keyID.
func (a *Authenticator) Forget(ctx context.Context, keyID string) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.InvalidateKey(ctx, keyID)
}

func (a *Authenticator) cached(ctx context.Context, cacheKey string) *model.AuthContext {
	if a.cache == nil {
		return nil
	}
	authCtx, err := a.cache.GetAuthContext(ctx, cacheKey)
	if err != nil {
		a.logger.Warn("auth cache read failed", "error", err)
		return nil
	}
	a.metrics.IncAuthCache(authCtx != nil)
	return authCtx
}

// remember caches a fresh verification and touches last_used_at in the
// background. Neither affects the request outcome.
func (a *Authenticator) remember(ctx context.Context, cacheKey string, authCtx *model.AuthContext) {
	if a.cache != nil {
		if err := a.cache.SetAuthContext(ctx, cacheKey, authCtx); err != nil {
			a.logger.Warn("auth cache write failed", "key_id", authCtx.KeyID, "error", err)
		}
	}

	go func(keyID string) {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()
		if err := a.keys.UpdateAPIKeyLastUsed(ctx, keyID); err != nil {
			a.logger.Warn("failed to update key last used", "key_id", keyID, "error", err)
		}
	}(authCtx.KeyID)
}

// verify checks key against every candidate so prefix collisions resolve
// correctly. With no candidates a dummy verification keeps timing flat.
func verify(key string, candidates []*model.APIKey) *model.APIKey {
	if len(candidates) == 0 {
		auth.VerifyDummy(key)
		return nil
	}
	for _, k := range candidates {
		ok, err := auth.VerifyKey(key, k.KeyHash)
		if err == nil && ok {
			return k
		}
	}
	return nil
}

func newAuthContext(key *model.APIKey, user *model.User) *model.AuthContext {
	return &model.AuthContext{
		KeyID:     key.ID,
		KeyPrefix: key.KeyPrefix,
		UserID:    user.ID,
		Username:  user.Username,
		Scopes:    key.Scopes,
	}
}
