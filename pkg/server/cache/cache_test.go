package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

func newMemory(t *testing.T) *MemoryBackend {
	t.Helper()
	m := NewMemoryBackend(time.Hour)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemoryBackendExpiry(t *testing.T) {
	m := newMemory(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 10*time.Second))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	now = now.Add(10 * time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok, "entry expires at its deadline")

	assert.Equal(t, 1, m.Len())
	m.sweep()
	assert.Equal(t, 0, m.Len())
}

func TestMemoryBackendSetNX(t *testing.T) {
	m := newMemory(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "k", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.SetNX(ctx, "k", []byte("2"), time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = m.SetNX(ctx, "k", []byte("3"), time.Minute)
	assert.True(t, ok, "an expired marker can be claimed again")
}

func TestGetOrComputeCachesValues(t *testing.T) {
	c := New(newMemory(t), nil)
	ctx := context.Background()
	var calls int32

	fn := func(context.Context) (payload, bool, error) {
		n := atomic.AddInt32(&calls, 1)
		return payload{Symbol: "BTC", Count: int(n)}, true, nil
	}

	first, err := GetOrCompute(ctx, c, "prices", "prices:BTC", time.Minute, fn)
	require.NoError(t, err)
	second, err := GetOrCompute(ctx, c, "prices", "prices:BTC", time.Minute, fn)
	require.NoError(t, err)

	assert.Equal(t, payload{Symbol: "BTC", Count: 1}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeSkipsErrorsAndNoData(t *testing.T) {
	c := New(newMemory(t), nil)
	ctx := context.Background()
	var calls int32

	boom := errors.New("boom")
	_, err := GetOrCompute(ctx, c, "premium", "premium:BTC", time.Minute, func(context.Context) (payload, bool, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, false, boom
	})
	require.ErrorIs(t, err, boom)

	for i := 0; i < 2; i++ {
		_, err = GetOrCompute(ctx, c, "premium", "premium:BTC", time.Minute, func(context.Context) (payload, bool, error) {
			atomic.AddInt32(&calls, 1)
			return payload{}, false, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "nothing was cached")
}

func TestGetOrComputeZeroTTLDoesNotStore(t *testing.T) {
	m := newMemory(t)
	c := New(m, nil)
	_, err := GetOrCompute(context.Background(), c, "prices", "k", 0, func(context.Context) (payload, bool, error) {
		return payload{Symbol: "ETH"}, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestGetOrComputeCoalescesMisses(t *testing.T) {
	c := New(newMemory(t), nil)
	ctx := context.Background()
	var calls int32
	release := make(chan struct{})

	fn := func(context.Context) (payload, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return payload{Symbol: "XRP"}, true, nil
	}

	var wg sync.WaitGroup
	results := make([]payload, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrCompute(ctx, c, "comparison", "comparison:XRP", time.Minute, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "XRP", r.Symbol)
	}
}

func TestGetOrComputeDropsUndecodableEntry(t *testing.T) {
	m := newMemory(t)
	c := New(m, nil)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("not json"), time.Minute))

	v, err := GetOrCompute(ctx, c, "prices", "k", time.Minute, func(context.Context) (payload, bool, error) {
		return payload{Symbol: "SOL"}, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SOL", v.Symbol)
}

func TestMarkOnce(t *testing.T) {
	c := New(newMemory(t), nil)
	ctx := context.Background()

	assert.True(t, c.MarkOnce(ctx, "alert:BTC:up:42", time.Minute))
	assert.False(t, c.MarkOnce(ctx, "alert:BTC:up:42", time.Minute))
	assert.True(t, c.MarkOnce(ctx, "alert:BTC:down:42", time.Minute))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := NewRedisBackend(client, "coinprices:", nil)
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func TestRedisBackend(t *testing.T) {
	mr, b := newRedis(t)
	c := New(b, nil)
	ctx := context.Background()

	v, err := GetOrCompute(ctx, c, "prices", "prices:BTC", 30*time.Second, func(context.Context) (payload, bool, error) {
		return payload{Symbol: "BTC", Count: 7}, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v.Count)

	require.True(t, mr.Exists("coinprices:prices:BTC"))
	assert.Equal(t, 30*time.Second, mr.TTL("coinprices:prices:BTC"))

	mr.FastForward(31 * time.Second)
	_, ok, err := b.Get(ctx, "prices:BTC")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, c.MarkOnce(ctx, "alert:BTC", time.Minute))
	assert.False(t, c.MarkOnce(ctx, "alert:BTC", time.Minute))
}

func TestRedisBackendFallsBackToMemory(t *testing.T) {
	mr, b := newRedis(t)
	ctx := context.Background()
	mr.Close()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	ok, err = b.SetNX(ctx, "m", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = b.SetNX(ctx, "m", []byte("1"), time.Minute)
	assert.False(t, ok)
}
