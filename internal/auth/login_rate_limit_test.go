package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHitCounter_SlidingWindow(t *testing.T) {
	counter := NewMemoryHitCounter(2, time.Minute)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	allowed, _, err := counter.Hit(ctx, "ip", start)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _, _ = counter.Hit(ctx, "ip", start.Add(10*time.Second))
	assert.True(t, allowed)

	allowed, retryAfter, _ := counter.Hit(ctx, "ip", start.Add(20*time.Second))
	assert.False(t, allowed)
	assert.Equal(t, 40*time.Second, retryAfter)

	allowed, _, _ = counter.Hit(ctx, "other-ip", start.Add(20*time.Second))
	assert.True(t, allowed)

	allowed, _, _ = counter.Hit(ctx, "ip", start.Add(61*time.Second))
	assert.True(t, allowed)
}

func TestLoginRateLimiter_Middleware(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	blocked := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
}
