package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps one quota_records row per user per window.
// Rows for past windows are left in place for auditing.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Increment implements Store. The conditional upsert takes the row lock,
// so concurrent callers serialize on (user_id, window_start).
func (s *PostgresStore) Increment(ctx context.Context, userID string, windowStart, _ time.Time, limit int64) (int64, bool, error) {
	query := `
		INSERT INTO quota_records (user_id, window_start, sent_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, window_start) DO UPDATE
		SET sent_count = quota_records.sent_count + 1
		WHERE quota_records.sent_count < $3
		RETURNING sent_count
	`

	var count int64
	err := s.pool.QueryRow(ctx, query, userID, windowStart, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		current, cerr := s.Count(ctx, userID, windowStart)
		if cerr != nil {
			return 0, false, cerr
		}
		return current, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("upsert quota record: %w", err)
	}
	return count, true, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context, userID string, windowStart time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT sent_count FROM quota_records WHERE user_id = $1 AND window_start = $2`,
		userID, windowStart,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select quota record: %w", err)
	}
	return count, nil
}
