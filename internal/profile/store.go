package profile

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

type Store interface {
	// ToggleFollow flips the edge and reports whether followerID now follows.
	ToggleFollow(ctx context.Context, followerID, followeeID string, now time.Time) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	Counts(ctx context.Context, accountID string) (followers int, following int, err error)
}

type edge struct {
	follower string
	followee string
}

type MemoryStore struct {
	mu    sync.RWMutex
	edges map[edge]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{edges: make(map[edge]time.Time)}
}

func (s *MemoryStore) ToggleFollow(ctx context.Context, followerID, followeeID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edge{follower: followerID, followee: followeeID}
	if _, ok := s.edges[key]; ok {
		delete(s.edges, key)
		return false, nil
	}
	s.edges[key] = now
	return true, nil
}

func (s *MemoryStore) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[edge{follower: followerID, followee: followeeID}]
	return ok, nil
}

func (s *MemoryStore) Counts(ctx context.Context, accountID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var followers, following int
	for e := range s.edges {
		if e.followee == accountID {
			followers++
		}
		if e.follower == accountID {
			following++
		}
	}
	return followers, following, nil
}

// Repository is the Postgres Store over the follows table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ToggleFollow(ctx context.Context, followerID, followeeID string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	following := removed == 0
	if following {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO follows (follower_id, followee_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (follower_id, followee_id) DO NOTHING
		`, followerID, followeeID, now)
		if err != nil {
			return false, fmt.Errorf("insert follow: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return following, nil
}

func (r *Repository) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2)
	`, followerID, followeeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return exists, nil
}

func (r *Repository) Counts(ctx context.Context, accountID string) (int, int, error) {
	var followers, following int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM follows WHERE followee_id = $1),
			(SELECT COUNT(*) FROM follows WHERE follower_id = $1)
	`, accountID).Scan(&followers, &following)
	if err != nil {
		return 0, 0, fmt.Errorf("count follows: %w", err)
	}
	return followers, following, nil
}
