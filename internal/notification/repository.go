package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, recipient_id, sender_id, type, post_id, comment_id, read, message, created_at`

func (r *Repository) Create(ctx context.Context, n Notification, maxPerRecipient int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Serializes inserts per recipient so the cap holds under concurrency.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, n.RecipientID); err != nil {
		return fmt.Errorf("lock inbox: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, post_id, comment_id, read, message, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
	`, n.ID, n.RecipientID, n.SenderID, string(n.Type), n.PostID, n.CommentID, n.Read, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	if maxPerRecipient > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM notifications
			WHERE id IN (
				SELECT id FROM notifications
				WHERE recipient_id = $1
				ORDER BY created_at DESC, id DESC
				OFFSET $2
			)
		`, n.RecipientID, maxPerRecipient)
		if err != nil {
			return fmt.Errorf("trim inbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, recipientID string, offset, limit int) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, recipientID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (r *Repository) Count(ctx context.Context, recipientID string) (int, int, error) {
	var total, unread int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT read)
		FROM notifications
		WHERE recipient_id = $1
	`, recipientID).Scan(&total, &unread)
	if err != nil {
		return 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, unread, nil
}

func (r *Repository) MarkRead(ctx context.Context, recipientID, id string) (Notification, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND recipient_id = $2
		RETURNING `+notificationColumns, id, recipientID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

func (r *Repository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) Delete(ctx context.Context, recipientID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (Notification, error) {
	var (
		n         Notification
		kind      string
		postID    sql.NullString
		commentID sql.NullString
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.SenderID, &kind, &postID, &commentID, &n.Read, &n.Message, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, err
		}
		return Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	n.Type = Type(kind)
	n.PostID = postID.String
	n.CommentID = commentID.String
	n.CreatedAt = n.CreatedAt.UTC()
	return n, nil
}
