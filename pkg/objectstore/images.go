package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/larder/pkg/config"
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ImageExtension returns the file extension for an accepted image content
// type, and false for anything else.
func ImageExtension(contentType string) (string, bool) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// Images stores entity images. Public entities keep their image in the
// public bucket; private ones in the private bucket behind presigned URLs.
// Callers persist only the object path.
type Images struct {
	store         Store
	publicBucket  string
	privateBucket string
	presigner     *CachedPresigner
}

// NewImages binds store to the configured buckets
func NewImages(store Store, cfg config.ObjectStoreConfig) *Images {
	return &Images{
		store:         store,
		publicBucket:  cfg.PublicBucket,
		privateBucket: cfg.PrivateBucket,
		presigner:     NewCachedPresigner(store, cfg.PresignCache, cfg.PresignTTL),
	}
}

func (i *Images) bucket(public bool) string {
	if public {
		return i.publicBucket
	}
	return i.privateBucket
}

// EnsureBuckets creates both buckets if missing
func (i *Images) EnsureBuckets(ctx context.Context) error {
	for _, b := range []string{i.publicBucket, i.privateBucket} {
		if err := i.store.EnsureBucket(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Put uploads an image under prefix and returns its object path
func (i *Images) Put(ctx context.Context, prefix string, public bool, body io.Reader, size int64, contentType string) (string, error) {
	ext, ok := ImageExtension(contentType)
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}
	path := fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), uuid.NewString(), ext)
	if _, err := i.store.Upload(ctx, i.bucket(public), path, body, size, contentType); err != nil {
		return "", err
	}
	return path, nil
}

// URL resolves a stored path to a URL the client can fetch. Empty paths
// resolve to an empty URL.
func (i *Images) URL(ctx context.Context, path string, public bool) (string, error) {
	if path == "" {
		return "", nil
	}
	if public {
		return i.store.PublicURL(i.publicBucket, path), nil
	}
	return i.presigner.Presign(ctx, i.privateBucket, path)
}

// Delete removes a stored image; empty paths are ignored
func (i *Images) Delete(ctx context.Context, path string, public bool) error {
	if path == "" {
		return nil
	}
	i.presigner.Invalidate(i.bucket(public), path)
	return i.store.Delete(ctx, i.bucket(public), path)
}

// SetVisibility moves an image between buckets when an entity's public flag
// changes.
func (i *Images) SetVisibility(ctx context.Context, path string, wasPublic, public bool) error {
	if path == "" || wasPublic == public {
		return nil
	}
	i.presigner.Invalidate(i.bucket(wasPublic), path)
	return i.store.Move(ctx, i.bucket(wasPublic), i.bucket(public), path)
}

// Ping checks the backing store
func (i *Images) Ping(ctx context.Context) error {
	return i.store.Ping(ctx)
}
