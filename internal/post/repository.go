package post

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Repository is the Postgres Store. Likes and comments live in their own
// tables and are attached to posts after the page query.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const postColumns = `id, author_id, caption, media_url, media_type, location, tags, is_private, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, p Post) error {
	tags, err := json.Marshal(nonNilTags(p.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, caption, media_url, media_type, location, tags, is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
	`, p.ID, p.AuthorID, p.Caption, p.MediaURL, string(p.MediaType), p.Location, string(tags), p.IsPrivate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, ErrNotFound
		}
		return Post{}, err
	}

	posts := []Post{p}
	if err := r.attachInteractions(ctx, posts); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

func (r *Repository) List(ctx context.Context, filter Filter, offset, limit int) ([]Post, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	n := len(args)
	query := `SELECT ` + postColumns + ` FROM posts` + where +
		` ORDER BY created_at DESC, id DESC OFFSET $` + strconv.Itoa(n+1) + ` LIMIT $` + strconv.Itoa(n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate posts: %w", err)
	}

	if err := r.attachInteractions(ctx, posts); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (r *Repository) ToggleLike(ctx context.Context, postID, accountID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("lock post: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND account_id = $2`, postID, accountID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	liked := removed == 0
	if liked {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO post_likes (post_id, account_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (post_id, account_id) DO NOTHING
		`, postID, accountID)
		if err != nil {
			return false, fmt.Errorf("insert like: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return liked, nil
}

func (r *Repository) AddComment(ctx context.Context, postID string, c Comment) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO post_comments (id, post_id, author_id, text, created_at)
		SELECT $1, id, $3, $4, $5 FROM posts WHERE id = $2
	`, c.ID, postID, c.AuthorID, c.Text, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
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

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
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

func (r *Repository) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE author_id = $1`, authorID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (r *Repository) attachInteractions(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(posts))
	index := make(map[string]int, len(posts))
	for i, p := range posts {
		ids = append(ids, p.ID)
		index[p.ID] = i
	}

	likeRows, err := r.db.QueryContext(ctx, `
		SELECT post_id, account_id FROM post_likes
		WHERE post_id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("query likes: %w", err)
	}
	defer likeRows.Close()
	for likeRows.Next() {
		var postID, accountID string
		if err := likeRows.Scan(&postID, &accountID); err != nil {
			return fmt.Errorf("scan like: %w", err)
		}
		i := index[postID]
		posts[i].LikeIDs = append(posts[i].LikeIDs, accountID)
	}
	if err := likeRows.Err(); err != nil {
		return fmt.Errorf("iterate likes: %w", err)
	}

	commentRows, err := r.db.QueryContext(ctx, `
		SELECT id, post_id, author_id, text, created_at FROM post_comments
		WHERE post_id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("query comments: %w", err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var (
			c      Comment
			postID string
		)
		if err := commentRows.Scan(&c.ID, &postID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		i := index[postID]
		posts[i].Comments = append(posts[i].Comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return fmt.Errorf("iterate comments: %w", err)
	}

	return nil
}

func filterClause(filter Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !filter.IncludePrivate {
		conds = append(conds, "NOT is_private")
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conds = append(conds, "author_id = $"+strconv.Itoa(len(args)))
	}
	if filter.MediaType != "" {
		args = append(args, string(filter.MediaType))
		conds = append(conds, "media_type = $"+strconv.Itoa(len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var (
		p         Post
		mediaType string
		tags      []byte
	)
	err := row.Scan(&p.ID, &p.AuthorID, &p.Caption, &p.MediaURL, &mediaType, &p.Location, &tags, &p.IsPrivate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("scan post: %w", err)
	}
	p.MediaType = MediaType(mediaType)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return Post{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
