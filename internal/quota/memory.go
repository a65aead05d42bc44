package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. It is only suitable for a
// single instance and for tests.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[memoryKey]int64
}

type memoryKey struct {
	userID string
	start  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[memoryKey]int64)}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, userID string, windowStart, _ time.Time, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{userID: userID, start: windowStart.Unix()}
	cur := s.counts[k]
	if cur >= limit {
		return cur, false, nil
	}
	cur++
	s.counts[k] = cur
	return cur, true, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, userID string, windowStart time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[memoryKey{userID: userID, start: windowStart.Unix()}], nil
}
