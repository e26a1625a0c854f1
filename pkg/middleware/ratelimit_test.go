package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRateLimiterAllow(t *testing.T) {
	limiter := NewInMemoryRateLimiter(RateLimitConfig{Requests: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, limit, _, err := limiter.Allow(ctx, "caller-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3, limit)
	}

	allowed, remaining, _, _, err := limiter.Allow(ctx, "caller-a")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request should exceed the limit")
	assert.Zero(t, remaining)

	// An independent key gets its own bucket.
	allowed, _, _, _, err = limiter.Allow(ctx, "caller-b")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := RateLimitConfig{Requests: 2, Window: time.Minute}
	limiter := NewInMemoryRateLimiter(cfg)

	handler := RateLimit(limiter, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/jobs", nil)
		req.RemoteAddr = "10.0.0.1:4321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	do()
	third := do()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.NotEmpty(t, third.Header().Get("Retry-After"))
}
