package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// countingStore tracks how many aggregate queries reach the database.
type countingStore struct {
	Store
	mu       sync.Mutex
	countHit int
	sumHit   int
}

func (c *countingStore) Count(ctx context.Context, eventType, userID string, window domain.TimeRange) (int64, error) {
	c.mu.Lock()
	c.countHit++
	c.mu.Unlock()
	return c.Store.Count(ctx, eventType, userID, window)
}

func (c *countingStore) Sum(ctx context.Context, eventType, userID, field string, window domain.TimeRange) (float64, error) {
	c.mu.Lock()
	c.sumHit++
	c.mu.Unlock()
	return c.Store.Sum(ctx, eventType, userID, field, window)
}

type mapCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string][]byte)}
}

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mapCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *mapCache) Ping(ctx context.Context) error { return nil }
func (m *mapCache) Close() error                   { return nil }

func TestCachedStoreAbsorbsRepeatedAggregates(t *testing.T) {
	base := &countingStore{Store: newTestStore(t)}
	cached := NewCachedStore(base, newMapCache(), 10*time.Second)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	if err := cached.SaveEvent(ctx, txnEvent("ev-1", "user-1", 150, now.Add(-time.Minute))); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	window := domain.Window(now, time.Hour)
	for i := 0; i < 5; i++ {
		count, err := cached.Count(ctx, domain.EventTransactionInitiated, "user-1", window)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("Count = %d, want 1", count)
		}

		sum, err := cached.Sum(ctx, domain.EventTransactionInitiated, "user-1", "amount", window)
		if err != nil {
			t.Fatalf("Sum failed: %v", err)
		}
		if sum != 150 {
			t.Fatalf("Sum = %v, want 150", sum)
		}
	}

	if base.countHit != 1 {
		t.Errorf("database Count queries = %d, want 1", base.countHit)
	}
	if base.sumHit != 1 {
		t.Errorf("database Sum queries = %d, want 1", base.sumHit)
	}
}

func TestCachedStoreKeysSeparateQueries(t *testing.T) {
	base := &countingStore{Store: newTestStore(t)}
	cached := NewCachedStore(base, newMapCache(), 10*time.Second)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	cached.Count(ctx, domain.EventTransactionInitiated, "user-1", domain.Window(now, time.Hour))
	cached.Count(ctx, domain.EventTransactionInitiated, "user-2", domain.Window(now, time.Hour))
	cached.Count(ctx, domain.EventSessionStarted, "user-1", domain.Window(now, time.Hour))
	cached.Count(ctx, domain.EventTransactionInitiated, "user-1", domain.Window(now, 24*time.Hour))

	if base.countHit != 4 {
		t.Errorf("database Count queries = %d, want 4 distinct keys", base.countHit)
	}
}
