// Package cache keeps computed results for a short, per-kind TTL.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ldj4245/coin-community-backend-sub000/pkg/logging"
)

// DefaultJanitorInterval is how often expired memory entries are swept.
const DefaultJanitorInterval = time.Minute

// Backend stores opaque values with an expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Close() error
}

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryBackend is an in-process Backend. Expired entries are invisible at
// once and removed by a janitor goroutine.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryBackend starts a memory backend sweeping every janitorInterval.
func NewMemoryBackend(janitorInterval time.Duration) *MemoryBackend {
	if janitorInterval <= 0 {
		janitorInterval = DefaultJanitorInterval
	}
	m := &MemoryBackend{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.janitor(janitorInterval)
	return m
}

func (m *MemoryBackend) janitor(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryBackend) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

// Get returns the value of key if present and not expired.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expires) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl, replacing any previous value.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, expires: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// SetNX stores value only if key is absent or expired.
func (m *MemoryBackend) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		return false, nil
	}
	m.entries[key] = entry{value: value, expires: now.Add(ttl)}
	return true, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the janitor.
func (m *MemoryBackend) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}

// RedisBackend stores values in Redis under a key prefix. When Redis
// fails, it serves from an in-process fallback so a Redis outage costs
// sharing, not availability.
type RedisBackend struct {
	client   *redis.Client
	prefix   string
	fallback *MemoryBackend
	logger   *logging.Logger
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client, prefix string, logger *logging.Logger) *RedisBackend {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &RedisBackend{
		client:   client,
		prefix:   prefix,
		fallback: NewMemoryBackend(DefaultJanitorInterval),
		logger:   logger.With("component", "cache", "backend", "redis"),
	}
}

// Get reads key from Redis, or from the fallback if Redis fails.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	switch {
	case err == nil:
		return data, true, nil
	case errors.Is(err, redis.Nil):
		return r.fallback.Get(ctx, key)
	default:
		r.logger.Warn("Redis get failed, using memory", "key", key, "error", err)
		return r.fallback.Get(ctx, key)
	}
}

// Set writes key to Redis, or to the fallback if Redis fails.
func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.logger.Warn("Redis set failed, using memory", "key", key, "error", err)
		return r.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

// SetNX is an atomic set-if-absent in Redis, or in the fallback if Redis fails.
func (r *RedisBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, value, ttl).Result()
	if err != nil {
		r.logger.Warn("Redis setnx failed, using memory", "key", key, "error", err)
		return r.fallback.SetNX(ctx, key, value, ttl)
	}
	return ok, nil
}

// Close stops the fallback. The client is owned by the caller.
func (r *RedisBackend) Close() error {
	return r.fallback.Close()
}
