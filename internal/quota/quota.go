// Package quota enforces per-user send quotas over fixed UTC windows.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Unlimited disables quota enforcement for a user.
const Unlimited int64 = -1

// DefaultWindow is one UTC day.
const DefaultWindow = 24 * time.Hour

// ErrInvalidLimit is returned for limits below Unlimited.
var ErrInvalidLimit = errors.New("quota: invalid limit")

// Store performs the atomic check-and-increment for one window.
//
// Increment must add one to the user's counter for windowStart only when
// the current count is below limit, as a single atomic operation visible
// to every process sharing the store. It reports the count after the call
// and whether the increment happened.
type Store interface {
	Increment(ctx context.Context, userID string, windowStart, windowEnd time.Time, limit int64) (count int64, allowed bool, err error)
	Count(ctx context.Context, userID string, windowStart time.Time) (int64, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// Remaining returns the sends left in the window, or Unlimited.
func (d Decision) Remaining() int64 {
	if d.Limit == Unlimited {
		return Unlimited
	}
	return max(d.Limit-d.Count, 0)
}

// Usage reports consumption for the current window without mutating it.
type Usage struct {
	Count       int64
	Limit       int64
	WindowStart time.Time
	ResetAt     time.Time
}

// Remaining returns the sends left in the window, or Unlimited.
func (u Usage) Remaining() int64 {
	if u.Limit == Unlimited {
		return Unlimited
	}
	return max(u.Limit-u.Count, 0)
}

// Tracker applies limits on top of a Store.
type Tracker struct {
	store  Store
	window time.Duration
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. A non-positive window selects DefaultWindow.
func NewTracker(store Store, window time.Duration, opts ...Option) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{store: store, window: window, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the bounds of the window containing at.
func (t *Tracker) Window(at time.Time) (start, end time.Time) {
	start = at.UTC().Truncate(t.window)
	return start, start.Add(t.window)
}

// CheckAndIncrement consumes one send from the user's quota if any is left.
// Unlimited is allowed without touching the store and a zero limit is
// always denied.
func (t *Tracker) CheckAndIncrement(ctx context.Context, userID string, limit int64) (Decision, error) {
	now := t.now()
	start, end := t.Window(now)

	switch {
	case limit == Unlimited:
		return Decision{Allowed: true, Limit: Unlimited, ResetAt: end}, nil
	case limit < Unlimited:
		return Decision{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	case limit == 0:
		return Decision{Limit: 0, ResetAt: end, RetryAfter: retryAfter(now, end)}, nil
	}

	count, allowed, err := t.store.Increment(ctx, userID, start, end, limit)
	if err != nil {
		return Decision{}, fmt.Errorf("quota increment: %w", err)
	}

	d := Decision{Allowed: allowed, Count: count, Limit: limit, ResetAt: end}
	if !allowed {
		d.RetryAfter = retryAfter(now, end)
	}
	return d, nil
}

// Usage returns the user's consumption in the current window.
func (t *Tracker) Usage(ctx context.Context, userID string, limit int64) (Usage, error) {
	start, end := t.Window(t.now())

	count, err := t.store.Count(ctx, userID, start)
	if err != nil {
		return Usage{}, fmt.Errorf("quota count: %w", err)
	}

	return Usage{Count: count, Limit: limit, WindowStart: start, ResetAt: end}, nil
}

// retryAfter rounds up to whole seconds with a floor of one second.
func retryAfter(now, end time.Time) time.Duration {
	d := end.Sub(now)
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
