package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/authz"
	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/cookbooks"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/objectstore"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/quota"
	"github.com/platinummonkey/larder/pkg/recipes"
	"github.com/platinummonkey/larder/pkg/sso"
	"github.com/platinummonkey/larder/pkg/storage/cache"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
	"github.com/platinummonkey/larder/pkg/users"
)

func newHarness(t *testing.T, rateLimit int) (http.Handler, *auth.TokenIssuer, int64) {
	t.Helper()
	db := sqltest.New(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	rc := cache.NewRedisClientFrom(client)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	images := objectstore.NewImages(objectstore.NewMemoryStore(), config.ObjectStoreConfig{
		PublicBucket:  "larder-public",
		PrivateBucket: "larder-private",
		PresignTTL:    time.Hour,
		PresignCache:  16,
	})
	members := membership.NewService(db, metrics)
	quotas := quota.NewService(db, quota.DefaultsFromConfig(config.QuotaConfig{DefaultLimit: 3, DefaultFrequency: "DAILY"}), metrics)
	recipeService := recipes.NewService(db, members, images, quotas, nil)
	userService := users.NewService(users.NewStore(db, nil), images)
	tokens := auth.NewTokenIssuer("test-secret", 15*time.Minute, time.Hour)

	deps := Dependencies{
		Logger:         observability.NewLogger(observability.InfoLevel, io.Discard),
		Metrics:        metrics,
		Auth:           auth.NewService(sso.NewRegistry(), userService, tokens, auth.NewSessionStore(rc), auth.NewStateStore(rc)),
		Users:          userService,
		Members:        members,
		Guard:          authz.NewGuard(db, metrics),
		Cookbooks:      cookbooks.NewService(db, members, recipeService, images),
		Recipes:        recipeService,
		Quotas:         quotas,
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 1 << 20,
		PageSize:       15,
	}
	if rateLimit > 0 {
		deps.RateLimiter = middleware.NewDistributedRateLimiter(client, middleware.PerMinute(rateLimit), "test")
	}
	return NewRouter(deps), tokens, sqltest.InsertUser(t, db, "cook@example.com")
}

func bearer(t *testing.T, tokens *auth.TokenIssuer, userID int64) string {
	t.Helper()
	pair, err := tokens.IssuePair(userID, "cook@example.com")
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestRouter(t *testing.T) {
	router, tokens, user := newHarness(t, 0)
	token := bearer(t, tokens, user)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"protected route without token", "GET", "/recipes/mine", "", "", http.StatusUnauthorized},
		{"garbage token", "GET", "/recipes/mine", "Bearer nope", "", http.StatusUnauthorized},
		{"public route without token", "GET", "/auth/nowhere/login", "", "", http.StatusNotFound},
		{"current user", "GET", "/users/me", token, "", http.StatusOK},
		{"quotas", "GET", "/users/me/quotas", token, "", http.StatusOK},
		{"create cookbook", "POST", "/cookbooks", token, `{"title":"Sundays"}`, http.StatusCreated},
		{"create recipe", "POST", "/recipes", token, `{"title":"Roast"}`, http.StatusCreated},
		{"list cookbooks", "GET", "/cookbooks/mine", token, "", http.StatusOK},
		{"guarded route for missing entity", "GET", "/cookbooks/999", token, "", http.StatusForbidden},
		{"unknown route", "GET", "/pantry", token, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := do(router, "GET", "/users/me", token, "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouterRateLimit(t *testing.T) {
	router, tokens, user := newHarness(t, 2)
	token := bearer(t, tokens, user)

	for i := 0; i < 2; i++ {
		w := do(router, "GET", "/users/me", token, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := do(router, "GET", "/users/me", token, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHealthServer(t *testing.T) {
	registry := prometheus.NewRegistry()
	observability.NewMetrics(registry)
	srv := NewHealthServer(config.ServerConfig{HealthPort: "9090"}, observability.NewHealthChecker(nil, nil, "test"), registry)
	assert.Equal(t, ":9090", srv.Addr)

	for _, path := range []string{"/health/live", "/metrics"} {
		w := httptest.NewRecorder()
		srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewServer(t *testing.T) {
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: "8080", ReadTimeout: time.Second}
	srv := NewServer(cfg, http.NotFoundHandler(), true)
	assert.Equal(t, "127.0.0.1:8080", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.NotNil(t, srv.Handler)
}
