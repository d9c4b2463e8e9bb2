package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/platinummonkey/larder/pkg/config"
)

// MinioStore implements Store for MinIO and other S3 compatible servers
type MinioStore struct {
	client *minio.Client
	cfg    config.ObjectStoreConfig
}

// NewMinioStore creates the client. Endpoint is host:port without a scheme.
func NewMinioStore(cfg config.ObjectStoreConfig) (*MinioStore, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &MinioStore{client: client, cfg: cfg}, nil
}

func (m *MinioStore) Name() string { return "minio" }

func (m *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (m *MinioStore) Upload(ctx context.Context, bucket, path string, body io.Reader, size int64, contentType string) (*Object, error) {
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, bucket, path, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}
	return &Object{Bucket: bucket, Path: path, PublicURL: m.PublicURL(bucket, path)}, nil
}

func (m *MinioStore) Delete(ctx context.Context, bucket, path string) error {
	if err := m.client.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (m *MinioStore) Move(ctx context.Context, srcBucket, dstBucket, path string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: path},
		minio.CopySrcOptions{Bucket: srcBucket, Object: path},
	)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("copy object %s/%s: %w", srcBucket, path, ErrNotFound)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	return m.Delete(ctx, srcBucket, path)
}

func (m *MinioStore) Presign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

func (m *MinioStore) PublicURL(bucket, path string) string {
	if m.cfg.PublicBaseURL != "" {
		return strings.TrimRight(m.cfg.PublicBaseURL, "/") + "/" + path
	}
	return m.client.EndpointURL().String() + "/" + bucket + "/" + path
}

func (m *MinioStore) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.cfg.PrivateBucket)
	return err
}
