package maintenance

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"snapgram/internal/observability"
)

// Worker runs the same cleanup as the cron endpoint on a fixed interval for
// deployments that keep a long-lived process.
type Worker struct {
	cleaner   Cleaner
	logger    *observability.Logger
	interval  time.Duration
	batchSize int
}

func NewWorker(cleaner Cleaner, logger *observability.Logger, interval time.Duration, batchSize int) *Worker {
	return &Worker{cleaner: cleaner, logger: logger, interval: interval, batchSize: batchSize}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	result, err := w.cleaner.CleanupExpired(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error(), "trigger": "worker"})
		sentry.CaptureException(err)
		return
	}
	if result.DeletedRefreshTokens == 0 && result.ClearedResetTokens == 0 {
		return
	}
	w.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"cleared_reset_tokens":   result.ClearedResetTokens,
		"trigger":                "worker",
	})
}
