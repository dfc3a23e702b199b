package maintenance

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgram/internal/auth"
	"snapgram/internal/observability"
)

type countingCleaner struct {
	calls     atomic.Int32
	batchSize atomic.Int32
	err       error
}

func (c *countingCleaner) CleanupExpired(_ context.Context, batchSize int) (auth.CleanupResult, error) {
	c.calls.Add(1)
	c.batchSize.Store(int32(batchSize))
	if c.err != nil {
		return auth.CleanupResult{}, c.err
	}
	return auth.CleanupResult{DeletedRefreshTokens: 3, ClearedResetTokens: 1}, nil
}

func newLogger() *observability.Logger {
	return observability.NewLoggerTo(&bytes.Buffer{})
}

func TestCleanupHandler(t *testing.T) {
	cleaner := &countingCleaner{}
	mux := http.NewServeMux()
	NewCleanupHandler(cleaner, newLogger(), "cron-secret", 500).Mount(mux)

	send := func(method, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "").Code)
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "wrong").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, send(http.MethodDelete, "cron-secret").Code)
	assert.Equal(t, int32(0), cleaner.calls.Load())

	rec := send(http.MethodPost, "cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_refresh_tokens":3`)
	assert.Equal(t, int32(500), cleaner.batchSize.Load())
}

func TestCleanupHandler_DisabledWithoutSecret(t *testing.T) {
	cleaner := &countingCleaner{}
	rec := httptest.NewRecorder()
	NewCleanupHandler(cleaner, newLogger(), " ", 500).Handle(rec, httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int32(0), cleaner.calls.Load())
}

func TestCleanupHandler_Failure(t *testing.T) {
	cleaner := &countingCleaner{err: errors.New("db down")}
	req := httptest.NewRequest(http.MethodGet, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := httptest.NewRecorder()
	NewCleanupHandler(cleaner, newLogger(), "cron-secret", 10).Handle(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWorker_RunsUntilCancelled(t *testing.T) {
	cleaner := &countingCleaner{}
	worker := NewWorker(cleaner, newLogger(), 5*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorker_DisabledInterval(t *testing.T) {
	cleaner := &countingCleaner{}
	NewWorker(cleaner, newLogger(), 0, 100).Run(context.Background())
	assert.Equal(t, int32(0), cleaner.calls.Load())
}
