// Package objectstore stores recipe and cookbook images in public and
// private buckets. Public objects are served by URL; private objects are
// only reachable through short-lived presigned URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/observability"
)

// ErrNotFound is returned when an object or bucket does not exist
var ErrNotFound = errors.New("object not found")

// Object describes a stored object
type Object struct {
	Bucket    string
	Path      string
	PublicURL string
}

// Store is the backend contract shared by S3, MinIO and the in-memory store
type Store interface {
	// Upload writes body to bucket/path
	Upload(ctx context.Context, bucket, path string, body io.Reader, size int64, contentType string) (*Object, error)
	// Delete removes bucket/path; deleting a missing object is not an error
	Delete(ctx context.Context, bucket, path string) error
	// Move relocates path from srcBucket to dstBucket, keeping the path
	Move(ctx context.Context, srcBucket, dstBucket, path string) error
	// Presign returns a time-limited GET URL
	Presign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
	// PublicURL returns the unsigned URL of an object in a public bucket
	PublicURL(bucket, path string) string
	// EnsureBucket creates bucket when missing
	EnsureBucket(ctx context.Context, bucket string) error
	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error
	// Name identifies the backend in metrics
	Name() string
}

// New builds the configured backend wrapped with metrics
func New(ctx context.Context, cfg config.ObjectStoreConfig, metrics *observability.Metrics) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "s3":
		store, err = NewS3Store(ctx, cfg)
	case "minio":
		store, err = NewMinioStore(cfg)
	case "memory", "":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown object store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewInstrumented(store, metrics), nil
}
