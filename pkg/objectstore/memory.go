package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It backs local development
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string]memoryObject),
		now:     time.Now,
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]memoryObject)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Upload(ctx context.Context, bucket, path string, body io.Reader, _ int64, contentType string) (*Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if err := m.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.buckets[bucket][path] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()

	return &Object{Bucket: bucket, Path: path, PublicURL: m.PublicURL(bucket, path)}, nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], path)
	return nil
}

func (m *MemoryStore) Move(ctx context.Context, srcBucket, dstBucket, path string) error {
	if err := m.EnsureBucket(ctx, dstBucket); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[srcBucket][path]
	if !ok {
		return fmt.Errorf("move %s/%s: %w", srcBucket, path, ErrNotFound)
	}
	m.buckets[dstBucket][path] = obj
	delete(m.buckets[srcBucket], path)
	return nil
}

func (m *MemoryStore) Presign(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if !m.Has(bucket, path) {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, path, ErrNotFound)
	}
	q := url.Values{}
	q.Set("expires", fmt.Sprint(m.now().Add(ttl).Unix()))
	return m.PublicURL(bucket, path) + "?" + q.Encode(), nil
}

func (m *MemoryStore) PublicURL(bucket, path string) string {
	return "memory://" + bucket + "/" + path
}

// Has reports whether bucket/path exists
func (m *MemoryStore) Has(bucket, path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket][path]
	return ok
}

// Len returns the number of objects in bucket
func (m *MemoryStore) Len(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets[bucket])
}
