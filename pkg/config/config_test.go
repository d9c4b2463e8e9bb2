package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/observability"
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"LARDER_DATABASE_URL":        "postgres://larder@localhost/larder?sslmode=disable",
		"LARDER_JWT_SECRET":          "0123456789abcdef0123456789abcdef",
		"LARDER_OBJECTSTORE_BACKEND": "memory",
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{"returns env value when set", "LARDER_TEST_VAR", "default", "custom", "custom"},
		{"returns default when env not set", "LARDER_TEST_VAR_NOT_SET", "default", "", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			assert.Equal(t, tt.want, getEnv(tt.key, tt.defaultValue))
		})
	}
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("LARDER_T_BOOL", "1")
	t.Setenv("LARDER_T_INT", "42")
	t.Setenv("LARDER_T_BAD_INT", "forty")
	t.Setenv("LARDER_T_DUR", "90s")
	t.Setenv("LARDER_T_LIST", " a, ,b ,c")
	t.Setenv("LARDER_T_FLOAT", "0.25")

	assert.True(t, getEnvBool("LARDER_T_BOOL", false))
	assert.Equal(t, 42, getEnvInt("LARDER_T_INT", 0))
	assert.Equal(t, 7, getEnvInt("LARDER_T_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("LARDER_T_DUR", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("LARDER_T_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("LARDER_T_LIST_UNSET", []string{"x"}))
	assert.Equal(t, 0.25, getEnvFloat("LARDER_T_FLOAT", 1))
}

func TestLoadConfigDefaults(t *testing.T) {
	setEnv(t, baseEnv())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15, cfg.Server.DefaultPageSize)
	assert.Equal(t, int64(200<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.ObjectStore.PresignTTL)
	assert.Equal(t, 3, cfg.Quota.DefaultLimit)
	assert.Equal(t, "DAILY", cfg.Quota.DefaultFrequency)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.Model)
	assert.False(t, cfg.AI.Enabled)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigAIEnabledByKey(t *testing.T) {
	setEnv(t, baseEnv())
	t.Setenv("LARDER_GEMINI_API_KEY", "k")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing database", map[string]string{"LARDER_DATABASE_URL": ""}, "database URL is required"},
		{"short secret", map[string]string{"LARDER_JWT_SECRET": "short"}, "JWT secret"},
		{"same ports", map[string]string{"LARDER_HEALTH_PORT": "8080"}, "must be different"},
		{"bad backend", map[string]string{"LARDER_OBJECTSTORE_BACKEND": "ftp"}, "invalid object store backend"},
		{"same buckets", map[string]string{
			"LARDER_OBJECTSTORE_BACKEND":        "s3",
			"LARDER_OBJECTSTORE_PUBLIC_BUCKET":  "b",
			"LARDER_OBJECTSTORE_PRIVATE_BUCKET": "b",
		}, "buckets must be different"},
		{"minio needs endpoint", map[string]string{"LARDER_OBJECTSTORE_BACKEND": "minio"}, "endpoint is required"},
		{"ai without key", map[string]string{"LARDER_AI_ENABLED": "true"}, "Gemini API key"},
		{"bad frequency", map[string]string{"LARDER_QUOTA_AI_FREQUENCY": "hourly"}, "invalid quota frequency"},
		{"refresh shorter than access", map[string]string{"LARDER_REFRESH_TOKEN_TTL": "1m"}, "refresh token TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, baseEnv())
			for k, v := range tt.env {
				if v == "" {
					os.Unsetenv(k)
					continue
				}
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
