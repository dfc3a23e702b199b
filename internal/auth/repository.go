package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const accountColumns = `
	id, email, username, full_name, phone, bio, website, location, avatar, is_private,
	password_hash, failed_login_attempts, lock_until, password_reset_hash, password_reset_expires,
	created_at, updated_at`

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var account Account
	var lockUntil, resetExpires sql.NullTime
	var resetHash sql.NullString

	err := row.Scan(
		&account.ID, &account.Email, &account.Username, &account.FullName, &account.Phone,
		&account.Bio, &account.Website, &account.Location, &account.Avatar, &account.IsPrivate,
		&account.PasswordHash, &account.FailedLoginAttempts, &lockUntil, &resetHash, &resetExpires,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	if lockUntil.Valid {
		value := lockUntil.Time.UTC()
		account.LockUntil = &value
	}
	if resetExpires.Valid {
		value := resetExpires.Time.UTC()
		account.PasswordResetExpires = &value
	}
	account.PasswordResetHash = resetHash.String

	return account, nil
}

func (r *Repository) getOne(ctx context.Context, what, query string, args ...any) (Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account by %s: %w", what, err)
	}
	return account, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, username, full_name, phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, account.ID, account.Email, account.Username, account.FullName, account.Phone, account.PasswordHash, account.CreatedAt)
	if err != nil {
		if dupErr := duplicateError(err); dupErr != nil {
			return Account{}, dupErr
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	return account, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (Account, error) {
	return r.getOne(ctx, "id", `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]Account, error) {
	accounts := make([]Account, 0, len(ids))
	if len(ids) == 0 {
		return accounts, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query accounts by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

func (r *Repository) GetByLogin(ctx context.Context, identifier string) (Account, error) {
	return r.getOne(ctx, "login", `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE email = $1 OR username = $1
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, identifier)
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (Account, error) {
	return r.getOne(ctx, "username", `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

func (r *Repository) GetByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (Account, error) {
	return r.getOne(ctx, "reset token", `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE password_reset_hash = $1 AND password_reset_expires > $2
	`, tokenHash, now.UTC())
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

func (r *Repository) RegisterFailedLogin(ctx context.Context, accountID string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin failed login tx: %w", err)
	}
	defer tx.Rollback()

	var failed int
	var lockUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_login_attempts, lock_until
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&failed, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account row: %w", err)
	}

	if lockUntil.Valid && now.Before(lockUntil.Time) {
		until := lockUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return &until, nil
	}
	if lockUntil.Valid {
		failed = 0
	}

	failed++
	var nextLock *time.Time
	var nextLockValue any
	if failed >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		nextLockValue = until
		failed = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = $2, lock_until = $3, updated_at = $4
		WHERE id = $1
	`, accountID, failed, nextLockValue, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("update failed login attempts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit failed login tx: %w", err)
	}

	return nextLock, nil
}

func (r *Repository) ResetFailedLogins(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0, lock_until = NULL
		WHERE id = $1 AND (failed_login_attempts <> 0 OR lock_until IS NOT NULL)
	`, accountID)
	if err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}

	return nil
}

func (r *Repository) AddRefreshToken(ctx context.Context, accountID string, record RefreshTokenRecord, maxActive int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh token tx: %w", err)
	}
	defer tx.Rollback()

	// Serializes concurrent logins of the same account so the cap holds.
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lock account row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, account_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, record.TokenHash, accountID, record.IssuedAt.UTC(), record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	if maxActive > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM refresh_tokens
			WHERE account_id = $1 AND token_hash IN (
				SELECT token_hash
				FROM refresh_tokens
				WHERE account_id = $1
				ORDER BY issued_at DESC, token_hash
				OFFSET $2
			)
		`, accountID, maxActive)
		if err != nil {
			return fmt.Errorf("evict old refresh tokens: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh token tx: %w", err)
	}

	return nil
}

func (r *Repository) HasRefreshToken(ctx context.Context, accountID, tokenHash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE account_id = $1 AND token_hash = $2)
	`, accountID, tokenHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return exists, nil
}

func (r *Repository) RemoveRefreshToken(ctx context.Context, accountID, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE account_id = $1 AND token_hash = $2
	`, accountID, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	return nil
}

func (r *Repository) ReplaceRefreshToken(ctx context.Context, accountID, oldHash string, record RefreshTokenRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE account_id = $1 AND token_hash = $2
	`, accountID, oldHash)
	if err != nil {
		return fmt.Errorf("delete rotated refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotated refresh token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInvalidRefreshToken
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, account_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, record.TokenHash, accountID, record.IssuedAt.UTC(), record.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return nil
}

func (r *Repository) UpdatePassword(ctx context.Context, accountID, passwordHash string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin password tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET password_hash = $2,
			password_reset_hash = NULL,
			password_reset_expires = NULL,
			failed_login_attempts = 0,
			lock_until = NULL,
			updated_at = $3
		WHERE id = $1
	`, accountID, passwordHash, now.UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("password rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("clear refresh tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit password tx: %w", err)
	}

	return nil
}

func (r *Repository) SetPasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_reset_hash = $2, password_reset_expires = $3
		WHERE id = $1
	`, accountID, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set password reset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("password reset rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, accountID string, update ProfileUpdate, now time.Time) (Account, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, fmt.Errorf("begin profile tx: %w", err)
	}
	defer tx.Rollback()

	account, err := scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("lock account for profile: %w", err)
	}

	applyProfileUpdate(&account, update)
	account.UpdatedAt = now.UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET full_name = $2, username = $3, bio = $4, phone = $5, website = $6,
			location = $7, avatar = $8, is_private = $9, updated_at = $10
		WHERE id = $1
	`, account.ID, account.FullName, account.Username, account.Bio, account.Phone, account.Website,
		account.Location, account.Avatar, account.IsPrivate, account.UpdatedAt)
	if err != nil {
		if dupErr := duplicateError(err); dupErr != nil {
			return Account{}, dupErr
		}
		return Account{}, fmt.Errorf("update profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("commit profile tx: %w", err)
	}

	return account, nil
}

func (r *Repository) CleanupExpired(ctx context.Context, now time.Time, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT token_hash
			FROM refresh_tokens
			WHERE expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.token_hash = stale.token_hash
	`, now.UTC(), batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	deletedRefresh, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_reset_hash = NULL, password_reset_expires = NULL
		WHERE id IN (
			SELECT id
			FROM accounts
			WHERE password_reset_expires IS NOT NULL AND password_reset_expires <= $1
			LIMIT $2
		)
	`, now.UTC(), batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	clearedReset, err := res.RowsAffected()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("expired reset tokens rows affected: %w", err)
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedRefresh,
		ClearedResetTokens:   clearedReset,
	}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "accounts_email_key":
		return ErrDuplicateEmail
	case "accounts_username_key":
		return ErrDuplicateUsername
	default:
		return nil
	}
}
