package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftmill/genroute"
)

func TestMemoryCachePutGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "a product description", time.Hour, []string{"product:1"}))

	content, err := c.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "a product description", content)
}

func TestMemoryCacheMissOnUnknown(t *testing.T) {
	c := NewMemoryCache()

	_, err := c.Get(context.Background(), "fp-unknown")
	assert.ErrorIs(t, err, genroute.ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	current := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c := NewMemoryCache(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "content", time.Hour, nil))

	mu.Lock()
	current = current.Add(30 * time.Minute)
	mu.Unlock()
	_, err := c.Get(ctx, "fp-1")
	require.NoError(t, err, "entry must still be live before its TTL")

	mu.Lock()
	current = current.Add(31 * time.Minute)
	mu.Unlock()
	_, err = c.Get(ctx, "fp-1")
	assert.ErrorIs(t, err, genroute.ErrCacheMiss, "expired entries read as misses")
	assert.Zero(t, c.Len(), "expired entries are dropped on read")
}

func TestMemoryCacheInvalidateByRef(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "about tool 42", time.Hour, []string{"tool:42"}))
	require.NoError(t, c.Put(ctx, "fp-2", "tool 42 vs 43", time.Hour, []string{"tool:42", "tool:43"}))
	require.NoError(t, c.Put(ctx, "fp-3", "about tool 43", time.Hour, []string{"tool:43"}))

	evicted, err := c.Invalidate(ctx, "tool:42")
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	_, err = c.Get(ctx, "fp-1")
	assert.ErrorIs(t, err, genroute.ErrCacheMiss)
	_, err = c.Get(ctx, "fp-2")
	assert.ErrorIs(t, err, genroute.ErrCacheMiss)

	content, err := c.Get(ctx, "fp-3")
	require.NoError(t, err)
	assert.Equal(t, "about tool 43", content, "entries not referencing the ref must survive")
}

func TestMemoryCacheInvalidateUnknownRef(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "content", time.Hour, []string{"tool:42"}))

	evicted, err := c.Invalidate(ctx, "tool:99")
	require.NoError(t, err)
	assert.Zero(t, evicted)

	_, err = c.Get(ctx, "fp-1")
	assert.NoError(t, err)
}

func TestMemoryCachePutReplacesRefs(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "v1", time.Hour, []string{"tool:42"}))
	require.NoError(t, c.Put(ctx, "fp-1", "v2", time.Hour, []string{"tool:43"}))

	content, err := c.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", content)

	// The old ref no longer reaches the entry.
	evicted, err := c.Invalidate(ctx, "tool:42")
	require.NoError(t, err)
	assert.Zero(t, evicted)

	evicted, err = c.Invalidate(ctx, "tool:43")
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
}

func TestMemoryCachePurgeExpired(t *testing.T) {
	current := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c := NewMemoryCache(WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "fp-1", "short", time.Minute, nil))
	require.NoError(t, c.Put(ctx, "fp-2", "long", time.Hour, nil))

	mu.Lock()
	current = current.Add(5 * time.Minute)
	mu.Unlock()

	assert.Equal(t, 1, c.PurgeExpired())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Put(ctx, "fp-1", "content", time.Hour, []string{"tool:42"})
			_, _ = c.Get(ctx, "fp-1")
			_, _ = c.Invalidate(ctx, "tool:42")
		}()
	}
	wg.Wait()
}
