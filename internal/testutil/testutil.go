// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 424242

// AcquireDBLock grabs a global advisory lock to serialize DB tests across packages.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewDB connects to DATABASE_URL, takes the advisory lock and rebuilds
// the schema from the embedded migrations. It skips when the variable is unset.
func NewDB(t testing.TB) *pgxpool.Pool {
	t.Helper()

	url := RequireEnv(t, "DATABASE_URL")
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping integration test: Postgres not available: %v", err)
	}

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		pool.Close()
		t.Fatalf("lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
		pool.Close()
	})

	if err := migrations.Migrate(ctx, pool, "reset", nil); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := migrations.Migrate(ctx, pool, "up", nil); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	return pool
}

// NewRedis connects to REDIS_URL (default localhost) or skips.
func NewRedis(t testing.TB) *redis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewTestUser creates a user value with a unique username.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	id := ulid.Make().String()
	return &model.User{
		ID:        id,
		Username:  "u" + id[len(id)-10:],
		Email:     id + "@example.com",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestAPIKey creates an API key value for userID. The hash is not a
// real argon2 hash.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	id := ulid.Make().String()
	return &model.APIKey{
		ID:        id,
		UserID:    userID,
		KeyHash:   "hash-" + id,
		KeyPrefix: "abc123",
		Scopes:    []string{model.ScopeRead, model.ScopeWrite},
		Name:      "Test Key",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestTemplate creates a private template value owned by ownerID.
func NewTestTemplate(t testing.TB, ownerID, templateID string) *model.Template {
	t.Helper()
	return &model.Template{
		OwnerUserID: ownerID,
		TemplateID:  templateID,
		Subject:     "Hello {{name}}",
		HTMLBody:    "<p>Your code is {{code}}</p>",
		TextBody:    "Your code is {{code}}",
		Variables:   []string{"code", "name"},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}
