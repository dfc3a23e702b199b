package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Store is the credential store. Implementations return ErrAccountNotFound
// for missing accounts and ErrDuplicateEmail / ErrDuplicateUsername when a
// uniqueness constraint is hit. Emails and usernames arrive normalized.
type Store interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByIDs(ctx context.Context, ids []string) ([]Account, error)
	GetByLogin(ctx context.Context, identifier string) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)

	// RegisterFailedLogin records one failed attempt and returns the lock
	// expiry when the account is (or becomes) locked.
	RegisterFailedLogin(ctx context.Context, accountID string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetFailedLogins(ctx context.Context, accountID string) error

	// AddRefreshToken appends a record; with maxActive > 0 the oldest records
	// beyond the cap are evicted.
	AddRefreshToken(ctx context.Context, accountID string, record RefreshTokenRecord, maxActive int) error
	HasRefreshToken(ctx context.Context, accountID, tokenHash string) (bool, error)
	RemoveRefreshToken(ctx context.Context, accountID, tokenHash string) error
	ReplaceRefreshToken(ctx context.Context, accountID, oldHash string, record RefreshTokenRecord) error

	// UpdatePassword stores the new hash, clears reset-token fields and the
	// lockout counter, and drops every refresh token of the account.
	UpdatePassword(ctx context.Context, accountID, passwordHash string, now time.Time) error
	SetPasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate, now time.Time) (Account, error)

	CleanupExpired(ctx context.Context, now time.Time, batchSize int) (CleanupResult, error)
	Ping(ctx context.Context) error
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
