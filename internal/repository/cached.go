package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// CachedStore is a read-through decorator over a Store. Count and Sum
// carry most of the scoring load and repeat heavily for active users,
// so they are cached with a short TTL; everything else passes through.
type CachedStore struct {
	Store
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedStore wraps a store with aggregate caching.
func NewCachedStore(store Store, cache domain.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedStore{Store: store, cache: cache, ttl: ttl}
}

// aggregateKey buckets the window bounds to 10-second resolution so
// back-to-back scoring calls for the same user share cache entries.
func aggregateKey(op, eventType, userID, field string, window domain.TimeRange) string {
	bucket := 10 * time.Second
	return fmt.Sprintf("agg:%s:%s:%s:%s:%d:%d",
		op, eventType, userID, field,
		window.Start.Truncate(bucket).Unix(),
		window.End.Truncate(bucket).Unix(),
	)
}

// Count serves from cache when possible.
func (c *CachedStore) Count(ctx context.Context, eventType, userID string, window domain.TimeRange) (int64, error) {
	key := aggregateKey("count", eventType, userID, "", window)
	if raw, err := c.cache.Get(ctx, key); err == nil && raw != nil {
		if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return v, nil
		}
	}

	count, err := c.Store.Count(ctx, eventType, userID, window)
	if err != nil {
		return 0, err
	}

	c.cache.Set(ctx, key, []byte(strconv.FormatInt(count, 10)), c.ttl)
	return count, nil
}

// Sum serves from cache when possible.
func (c *CachedStore) Sum(ctx context.Context, eventType, userID, field string, window domain.TimeRange) (float64, error) {
	key := aggregateKey("sum", eventType, userID, field, window)
	if raw, err := c.cache.Get(ctx, key); err == nil && raw != nil {
		if v, err := strconv.ParseFloat(string(raw), 64); err == nil {
			return v, nil
		}
	}

	sum, err := c.Store.Sum(ctx, eventType, userID, field, window)
	if err != nil {
		return 0, err
	}

	c.cache.Set(ctx, key, []byte(strconv.FormatFloat(sum, 'g', -1, 64)), c.ttl)
	return sum, nil
}
