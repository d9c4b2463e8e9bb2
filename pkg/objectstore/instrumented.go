package objectstore

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/larder/pkg/observability"
)

// Instrumented decorates a Store with Prometheus and OpenTelemetry metrics
type Instrumented struct {
	Store
	metrics  *observability.Metrics
	uploaded metric.Int64Counter
}

// NewInstrumented wraps store. metrics may be nil.
func NewInstrumented(store Store, metrics *observability.Metrics) *Instrumented {
	meter := otel.Meter("github.com/platinummonkey/larder/pkg/objectstore")
	uploaded, err := meter.Int64Counter("larder.objectstore.uploaded_bytes",
		metric.WithDescription("Bytes written to object storage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &Instrumented{Store: store, metrics: metrics, uploaded: uploaded}
}

func (i *Instrumented) Upload(ctx context.Context, bucket, path string, body io.Reader, size int64, contentType string) (*Object, error) {
	start := time.Now()
	counted := &countingReader{r: body}
	obj, err := i.Store.Upload(ctx, bucket, path, counted, size, contentType)
	i.metrics.RecordStorage("upload", i.Name(), start, err)
	if err == nil && i.uploaded != nil {
		i.uploaded.Add(ctx, counted.n, metric.WithAttributes(
			attribute.String("backend", i.Name()),
			attribute.String("bucket", bucket),
		))
	}
	return obj, err
}

func (i *Instrumented) Delete(ctx context.Context, bucket, path string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, bucket, path)
	i.metrics.RecordStorage("delete", i.Name(), start, err)
	return err
}

func (i *Instrumented) Move(ctx context.Context, srcBucket, dstBucket, path string) error {
	start := time.Now()
	err := i.Store.Move(ctx, srcBucket, dstBucket, path)
	i.metrics.RecordStorage("move", i.Name(), start, err)
	return err
}

func (i *Instrumented) Presign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	start := time.Now()
	u, err := i.Store.Presign(ctx, bucket, path, ttl)
	i.metrics.RecordStorage("presign", i.Name(), start, err)
	return u, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
