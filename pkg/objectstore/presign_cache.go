package objectstore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedPresigner memoizes presigned URLs so list endpoints do not sign the
// same private image on every request. Entries expire at half the URL TTL,
// which keeps every served URL valid for at least ttl/2.
type CachedPresigner struct {
	store Store
	ttl   time.Duration
	cache *expirable.LRU[string, string]
}

// NewCachedPresigner wraps store with an LRU of the given size
func NewCachedPresigner(store Store, size int, ttl time.Duration) *CachedPresigner {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedPresigner{
		store: store,
		ttl:   ttl,
		cache: expirable.NewLRU[string, string](size, nil, ttl/2),
	}
}

func cacheKey(bucket, path string) string {
	return bucket + "/" + path
}

// Presign returns a cached URL or signs a new one
func (c *CachedPresigner) Presign(ctx context.Context, bucket, path string) (string, error) {
	key := cacheKey(bucket, path)
	if u, ok := c.cache.Get(key); ok {
		return u, nil
	}
	u, err := c.store.Presign(ctx, bucket, path, c.ttl)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, u)
	return u, nil
}

// Invalidate drops any cached URL for bucket/path
func (c *CachedPresigner) Invalidate(bucket, path string) {
	c.cache.Remove(cacheKey(bucket, path))
}

// Len returns the number of cached URLs
func (c *CachedPresigner) Len() int {
	return c.cache.Len()
}
