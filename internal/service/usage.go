package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/quota"
)

const (
	defaultStatsDays = 7
	maxStatsDays     = 90
)

// ErrInvalidDateRange is returned for a reversed or oversized stats range.
var ErrInvalidDateRange = errors.New("invalid date range")

// UsageReader reads quota consumption without charging it.
type UsageReader interface {
	Usage(ctx context.Context, userID string, limit int64) (quota.Usage, error)
}

// StatsReader reads the daily send rollup.
type StatsReader interface {
	GetDailyStats(ctx context.Context, userID string, from, to time.Time) ([]*model.DailySendStats, error)
}

// UsageService reports quota usage and send statistics.
type UsageService struct {
	users        UserStore
	quota        UsageReader
	stats        StatsReader
	defaultLimit int64
	now          func() time.Time
}

// NewUsageService creates a UsageService. stats may be nil when analytics
// is disabled.
func NewUsageService(users UserStore, q UsageReader, stats StatsReader, defaultLimit int64) *UsageService {
	return &UsageService{
		users:        users,
		quota:        q,
		stats:        stats,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// User returns the user by id.
func (s *UsageService) User(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// Usage reports the user's consumption in the current window.
func (s *UsageService) Usage(ctx context.Context, user *model.User) (*model.UsageResponse, error) {
	u, err := s.quota.Usage(ctx, user.ID, user.EffectiveDailyLimit(s.defaultLimit))
	if err != nil {
		return nil, fmt.Errorf("read quota usage: %w", err)
	}
	return &model.UsageResponse{
		Username:    user.Username,
		Sent:        u.Count,
		Limit:       u.Limit,
		Remaining:   u.Remaining(),
		WindowStart: u.WindowStart,
		ResetAt:     u.ResetAt,
	}, nil
}

// Stats returns daily send counters between from and to inclusive, as UTC
// dates. Zero values default to the last seven days.
func (s *UsageService) Stats(ctx context.Context, userID string, from, to time.Time) ([]*model.DailySendStats, error) {
	from, to, err := s.statsRange(from, to)
	if err != nil {
		return nil, err
	}
	if s.stats == nil {
		return []*model.DailySendStats{}, nil
	}

	stats, err := s.stats.GetDailyStats(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []*model.DailySendStats{}
	}
	return stats, nil
}

func (s *UsageService) statsRange(from, to time.Time) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = s.now()
	}
	to = to.UTC().Truncate(24 * time.Hour)
	if from.IsZero() {
		from = to.AddDate(0, 0, -(defaultStatsDays - 1))
	}
	from = from.UTC().Truncate(24 * time.Hour)

	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from is after to", ErrInvalidDateRange)
	}
	if to.Sub(from) >= maxStatsDays*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: at most %d days", ErrInvalidDateRange, maxStatsDays)
	}
	return from, to, nil
}
