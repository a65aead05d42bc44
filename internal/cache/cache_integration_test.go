//go:build integration

package cache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oklog/ulid/v2"

	"github.com/mailroute/mailroute/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379"
	}
	c, err := New(context.Background(), url)
	if err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAuthContext_InvalidateKey(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	keyID := ulid.Make().String()
	ac := &model.AuthContext{KeyID: keyID, KeyPrefix: "abcdef", UserID: "u1", Username: "alice", Scopes: []string{"read"}}

	for _, ck := range []string{"ck1-" + keyID, "ck2-" + keyID} {
		if err := c.SetAuthContext(ctx, ck, ac); err != nil {
			t.Fatalf("SetAuthContext: %v", err)
		}
	}

	got, err := c.GetAuthContext(ctx, "ck1-"+keyID)
	if err != nil || got == nil || got.Username != "alice" {
		t.Fatalf("GetAuthContext = %+v, %v", got, err)
	}

	if err := c.InvalidateKey(ctx, keyID); err != nil {
		t.Fatalf("InvalidateKey: %v", err)
	}

	for _, ck := range []string{"ck1-" + keyID, "ck2-" + keyID} {
		got, err := c.GetAuthContext(ctx, ck)
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("%s should be gone after invalidation", ck)
		}
	}
}

func TestAllowIP_Concurrency(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ip := "198.51.100." + ulid.Make().String()
	const burst = 5

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.AllowIP(ctx, ip, 0.01, burst)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != burst {
		t.Errorf("allowed = %d, want %d", got, burst)
	}
}
