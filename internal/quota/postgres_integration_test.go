//go:build integration

package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailroute/mailroute/internal/testutil"
)

func TestPostgresStore_ConcurrentIncrement(t *testing.T) {
	pool := testutil.NewDB(t)
	store := NewPostgresStore(pool)
	tr := NewTracker(store, DefaultWindow)
	ctx := context.Background()

	const limit = 7
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := tr.CheckAndIncrement(ctx, "alice", limit)
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

	start, _ := tr.Window(time.Now())
	count, err := store.Count(ctx, "alice", start)
	require.NoError(t, err)
	assert.Equal(t, int64(limit), count)

	d, err := tr.CheckAndIncrement(ctx, "alice", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(limit), d.Count)
}
