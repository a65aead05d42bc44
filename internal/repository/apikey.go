package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/mailroute/mailroute/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
)

const apiKeyColumns = `id, user_id, key_hash, key_prefix, scopes, name, is_active, revoked_at, last_used_at, created_at`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateAPIKey inserts a new API key.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return insertAPIKey(ctx, r.pool, key)
}

func insertAPIKey(ctx context.Context, db execer, key *model.APIKey) error {
	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
	`

	_, err := db.Exec(ctx, query,
		key.ID,
		key.UserID,
		key.KeyHash,
		key.KeyPrefix,
		pq.Array(key.Scopes),
		key.Name,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	key.IsActive = true
	return nil
}

// GetAPIKeyByID retrieves an API key by its ID.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	return key, err
}

// GetActiveAPIKeysByPrefix returns the user's active keys sharing a visible prefix.
// These are the only candidates worth an argon2 verification.
func (r *Repository) GetActiveAPIKeysByPrefix(ctx context.Context, userID, prefix string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_prefix = $1 AND user_id = $2 AND is_active
	`
	return r.queryAPIKeys(ctx, query, prefix, userID)
}

// FindActiveAPIKeysByPrefix returns active keys with the prefix across all
// users. Used by management API auth, where the caller's user is not known
// up front.
func (r *Repository) FindActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_prefix = $1 AND is_active
	`
	return r.queryAPIKeys(ctx, query, prefix)
}

// ListAPIKeysByUserID retrieves all API keys for a user, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.queryAPIKeys(ctx, query, userID)
}

// RevokeAPIKey deactivates a key owned by userID.
func (r *Repository) RevokeAPIKey(ctx context.Context, userID, id string) (time.Time, error) {
	return revokeAPIKey(ctx, r.pool, userID, id)
}

func revokeAPIKey(ctx context.Context, db execer, userID, id string) (time.Time, error) {
	now := time.Now().UTC()
	result, err := db.Exec(ctx, `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND is_active
	`, id, userID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to revoke API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return time.Time{}, ErrAPIKeyNotFound
	}
	return now, nil
}

// RotateAPIKey revokes oldID and inserts next in one transaction.
func (r *Repository) RotateAPIKey(ctx context.Context, userID, oldID string, next *model.APIKey) (time.Time, error) {
	var revokedAt time.Time
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if revokedAt, err = revokeAPIKey(ctx, tx, userID, oldID); err != nil {
			return err
		}
		return insertAPIKey(ctx, tx, next)
	})
	if err != nil {
		return time.Time{}, err
	}
	return revokedAt, nil
}

// DeleteAPIKey removes a key row entirely.
func (r *Repository) DeleteAPIKey(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed stamps last_used_at. Called asynchronously after
// a successful verification.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, query string, args ...any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// scanAPIKey scans from either pgx.Row or pgx.Rows.
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	var scopes []string

	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&key.KeyPrefix,
		pq.Array(&scopes),
		&key.Name,
		&key.IsActive,
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}

	key.Scopes = scopes
	return &key, nil
}
