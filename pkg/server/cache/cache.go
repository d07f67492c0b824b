package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
	"github.com/ldj4245/coin-community-backend-sub000/pkg/metrics"
)

// Cache stores JSON-encoded results in a Backend. Concurrent misses on the
// same key share one computation.
type Cache struct {
	backend Backend
	group   singleflight.Group
	logger  *logging.Logger
}

// New creates a cache over backend.
func New(backend Backend, logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Cache{
		backend: backend,
		logger:  logger.With("component", "cache"),
	}
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

// ComputeFunc produces a value and reports whether it may be cached.
// Values that mean "no data" should return cacheable false.
type ComputeFunc[T any] func(ctx context.Context) (T, bool, error)

// GetOrCompute returns the cached value of key or computes, stores and
// returns it. Errors and non-cacheable values are never stored. A ttl of
// zero disables caching for the call but keeps miss coalescing. kind labels
// the metrics.
func GetOrCompute[T any](ctx context.Context, c *Cache, kind, key string, ttl time.Duration, fn ComputeFunc[T]) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		metrics.RecordCache(kind, true)
		return v, nil
	}
	metrics.RecordCache(kind, false)

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		// another caller may have filled the key while we waited
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}
		v, cacheable, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if cacheable && ttl > 0 {
			c.store(ctx, key, v, ttl)
		}
		return v, nil
	})
	if shared {
		c.logger.Debug("Coalesced cache miss", "key", key)
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		return v, false
	}
	return v, true
}

func (c *Cache) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("Could not encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Could not store cache entry", "key", key, "error", err)
	}
}

// MarkOnce atomically claims key for ttl. It reports true for the first
// caller in that window. On backend failure it reports true.
func (c *Cache) MarkOnce(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := c.backend.SetNX(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339)), ttl)
	if err != nil {
		c.logger.Warn("Could not claim marker", "key", key, "error", err)
		return true
	}
	return ok
}
