package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPresigner struct {
	*MemoryStore
	calls int
}

func (c *countingPresigner) Presign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	c.calls++
	return c.MemoryStore.Presign(ctx, bucket, path, ttl)
}

func TestCachedPresigner(t *testing.T) {
	ctx := context.Background()
	store := &countingPresigner{MemoryStore: NewMemoryStore()}
	_, err := store.Upload(ctx, "private", "a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	require.NoError(t, err)

	cache := NewCachedPresigner(store, 8, time.Hour)

	first, err := cache.Presign(ctx, "private", "a.jpg")
	require.NoError(t, err)
	second, err := cache.Presign(ctx, "private", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("private", "a.jpg")
	_, err = cache.Presign(ctx, "private", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestCachedPresignerDoesNotCacheErrors(t *testing.T) {
	store := &countingPresigner{MemoryStore: NewMemoryStore()}
	cache := NewCachedPresigner(store, 8, time.Hour)

	_, err := cache.Presign(context.Background(), "private", "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, cache.Len())
}
