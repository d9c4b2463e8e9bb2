package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/config"
)

func TestMinioStorePresignAndPublicURL(t *testing.T) {
	store, err := NewMinioStore(config.ObjectStoreConfig{
		Backend:       "minio",
		Endpoint:      "http://localhost:9000",
		Region:        "us-east-1",
		AccessKey:     "minio",
		SecretKey:     "minio123",
		PrivateBucket: "priv",
	})
	require.NoError(t, err)
	assert.Equal(t, "minio", store.Name())

	// region is configured, so presigning needs no bucket-location lookup
	u, err := store.Presign(context.Background(), "priv", "cookbooks/3/c.webp", 5*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "/priv/cookbooks/3/c.webp")
	assert.Contains(t, u, "X-Amz-Signature=")

	assert.Equal(t, "http://localhost:9000/pub/a.png", store.PublicURL("pub", "a.png"))
}
