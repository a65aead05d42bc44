package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps MemoryStore and records calls.
type countingStore struct {
	*MemoryStore
	calls atomic.Int64
	err   error
}

func (s *countingStore) Increment(ctx context.Context, userID string, start, end time.Time, limit int64) (int64, bool, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, false, s.err
	}
	return s.MemoryStore.Increment(ctx, userID, start, end, limit)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTracker_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr := NewTracker(NewMemoryStore(), DefaultWindow, WithClock(fixedClock(now)))
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		d, err := tr.CheckAndIncrement(ctx, "alice", 2)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
	}

	d, err := tr.CheckAndIncrement(ctx, "alice", 2)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(2), d.Count)
	assert.Equal(t, int64(0), d.Remaining())
	assert.Equal(t, 14*time.Hour, d.RetryAfter)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), d.ResetAt)

	// Other users are unaffected.
	d, err = tr.CheckAndIncrement(ctx, "bob", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestTracker_UnlimitedSkipsStore(t *testing.T) {
	t.Parallel()

	store := &countingStore{MemoryStore: NewMemoryStore()}
	tr := NewTracker(store, DefaultWindow)

	for i := 0; i < 10; i++ {
		d, err := tr.CheckAndIncrement(context.Background(), "verified", Unlimited)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, Unlimited, d.Remaining())
	}
	assert.Zero(t, store.calls.Load())
}

func TestTracker_ZeroLimitDenied(t *testing.T) {
	t.Parallel()

	store := &countingStore{MemoryStore: NewMemoryStore()}
	tr := NewTracker(store, DefaultWindow)

	d, err := tr.CheckAndIncrement(context.Background(), "u", 0)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	assert.Zero(t, store.calls.Load())
}

func TestTracker_InvalidLimit(t *testing.T) {
	t.Parallel()

	tr := NewTracker(NewMemoryStore(), DefaultWindow)
	_, err := tr.CheckAndIncrement(context.Background(), "u", -2)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestTracker_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	tr := NewTracker(&countingStore{MemoryStore: NewMemoryStore(), err: boom}, DefaultWindow)

	_, err := tr.CheckAndIncrement(context.Background(), "u", 5)
	assert.ErrorIs(t, err, boom)
}

func TestTracker_NewWindowResets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 23, 59, 59, 500_000_000, time.UTC)
	tr := NewTracker(NewMemoryStore(), DefaultWindow, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	d, err := tr.CheckAndIncrement(ctx, "alice", 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = tr.CheckAndIncrement(ctx, "alice", 1)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter, "sub-second remainder rounds up to 1s")

	now = now.Add(time.Second)
	d, err = tr.CheckAndIncrement(ctx, "alice", 1)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestTracker_Window(t *testing.T) {
	t.Parallel()

	tr := NewTracker(NewMemoryStore(), time.Hour)
	loc := time.FixedZone("UTC+7", 7*3600)

	start, end := tr.Window(time.Date(2026, 3, 1, 10, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), start)
	assert.Equal(t, start.Add(time.Hour), end)
}

func TestTracker_ConcurrentNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	const (
		limit   = 25
		workers = 100
	)
	tr := NewTracker(NewMemoryStore(), DefaultWindow)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := tr.CheckAndIncrement(context.Background(), "alice", limit)
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed.Load())

	u, err := tr.Usage(context.Background(), "alice", limit)
	require.NoError(t, err)
	assert.Equal(t, int64(limit), u.Count)
	assert.Equal(t, int64(0), u.Remaining())
}

func TestTracker_Usage(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tr := NewTracker(NewMemoryStore(), DefaultWindow, WithClock(fixedClock(now)))
	ctx := context.Background()

	u, err := tr.Usage(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Zero(t, u.Count)
	assert.Equal(t, int64(10), u.Remaining())

	_, err = tr.CheckAndIncrement(ctx, "alice", 10)
	require.NoError(t, err)

	u, err = tr.Usage(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Count)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), u.WindowStart)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), u.ResetAt)

	u, err = tr.Usage(ctx, "alice", Unlimited)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, u.Remaining())
}
