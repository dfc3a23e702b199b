package auth

import (
	"context"
	"time"

	"snapgram/internal/observability"
)

// LogResetNotifier stands in for email delivery. The raw token is only
// written out when revealToken is set, which the app does outside production.
type LogResetNotifier struct {
	logger      *observability.Logger
	revealToken bool
}

func NewLogResetNotifier(logger *observability.Logger, revealToken bool) *LogResetNotifier {
	return &LogResetNotifier{logger: logger, revealToken: revealToken}
}

func (n *LogResetNotifier) SendPasswordReset(_ context.Context, account PublicAccount, rawToken string, expiresAt time.Time) error {
	fields := map[string]any{
		"account_id": account.ID,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}
	if n.revealToken {
		fields["reset_token"] = rawToken
	}
	n.logger.Info("password_reset_requested", fields)
	return nil
}
