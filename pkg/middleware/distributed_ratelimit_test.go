package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/contextkeys"
)

func setupLimiter(t *testing.T, limit int) (*DistributedRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDistributedRateLimiter(client, PerMinute(limit), ""), mr
}

func TestDistributedRateLimiterAllow(t *testing.T) {
	limiter, mr := setupLimiter(t, 2)
	ctx := t.Context()

	for i, want := range []bool{true, true, false} {
		allowed, _, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "request %d", i)
	}

	allowed, remaining, err := limiter.Allow(ctx, "user:2")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")
	assert.Equal(t, 1, remaining)

	ttl, err := limiter.TTL(ctx, "user:1")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(time.Minute + time.Second)
	allowed, _, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, allowed, "window expired")

	require.NoError(t, limiter.Reset(ctx, "user:1"))
	assert.False(t, mr.Exists("ratelimit:user:1"))
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := setupLimiter(t, 1)
	handler := NewRateLimitMiddleware(limiter).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(userID int64, ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/recipes", nil)
		r.RemoteAddr = ip + ":5555"
		if userID != 0 {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send(1, "10.0.0.1").Code)
	w := send(1, "10.0.0.2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send(2, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send(0, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(0, "10.0.0.1").Code)
}

func TestRateLimitMiddlewareFailsOpen(t *testing.T) {
	limiter, mr := setupLimiter(t, 1)
	mr.Close()

	handler := NewRateLimitMiddleware(limiter).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
