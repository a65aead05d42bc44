package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mailroute/mailroute/internal/model"
)

// SendEventRepository persists the delivery log and its daily rollup.
type SendEventRepository struct {
	repo *Repository
}

// NewSendEventRepository creates a SendEventRepository.
func NewSendEventRepository(repo *Repository) *SendEventRepository {
	return &SendEventRepository{repo: repo}
}

// BulkInsert inserts events; duplicates by event_id are ignored so stream
// redelivery is idempotent.
func (r *SendEventRepository) BulkInsert(ctx context.Context, events []*model.SendEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO send_events (
			id, event_id, user_id, template_id, recipient_domain,
			status, error_kind, message_id, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query,
			e.ID,
			e.EventID,
			e.UserID,
			e.TemplateID,
			e.RecipientDomain,
			e.Status,
			nullableString(e.ErrorKind),
			nullableString(e.MessageID),
			e.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

type dailyKey struct {
	userID string
	date   time.Time
}

// uniqueDailyKeys returns the distinct (user, UTC day) pairs touched by events.
func uniqueDailyKeys(events []*model.SendEvent) []dailyKey {
	seen := make(map[dailyKey]struct{})
	keys := make([]dailyKey, 0)
	for _, e := range events {
		k := dailyKey{userID: e.UserID, date: e.OccurredAt.UTC().Truncate(24 * time.Hour)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// UpdateDailyStats recomputes the daily rollup for every (user, day) the
// events touch. Recomputing from send_events keeps the rollup correct when
// a batch is retried.
func (r *SendEventRepository) UpdateDailyStats(ctx context.Context, events []*model.SendEvent) error {
	query := `
		INSERT INTO daily_send_stats (user_id, date, sent, failed, rate_limited, updated_at)
		SELECT $1, $2::date,
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'rate_limited'),
			NOW()
		FROM send_events
		WHERE user_id = $1 AND occurred_at >= $3 AND occurred_at < $4
		ON CONFLICT (user_id, date) DO UPDATE SET
			sent = EXCLUDED.sent,
			failed = EXCLUDED.failed,
			rate_limited = EXCLUDED.rate_limited,
			updated_at = NOW()
	`

	for _, k := range uniqueDailyKeys(events) {
		if _, err := r.repo.pool.Exec(ctx, query, k.userID, k.date, k.date, k.date.Add(24*time.Hour)); err != nil {
			return fmt.Errorf("recalculate daily stats %s:%s: %w", k.userID, k.date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// GetDailyStats returns the user's rollup between from and to inclusive,
// newest first.
func (r *SendEventRepository) GetDailyStats(ctx context.Context, userID string, from, to time.Time) ([]*model.DailySendStats, error) {
	query := `
		SELECT user_id, date, sent, failed, rate_limited, updated_at
		FROM daily_send_stats
		WHERE user_id = $1 AND date >= $2::date AND date <= $3::date
		ORDER BY date DESC
	`

	rows, err := r.repo.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	stats := make([]*model.DailySendStats, 0)
	for rows.Next() {
		var s model.DailySendStats
		if err := rows.Scan(&s.UserID, &s.Date, &s.Sent, &s.Failed, &s.RateLimited, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}
