package post

import (
	"context"
	"sort"
	"sync"
)

type Store interface {
	Create(ctx context.Context, p Post) error
	Get(ctx context.Context, id string) (Post, error)
	List(ctx context.Context, filter Filter, offset, limit int) ([]Post, int, error)
	// ToggleLike flips accountID's like and reports whether it is now liked.
	ToggleLike(ctx context.Context, postID, accountID string) (bool, error)
	AddComment(ctx context.Context, postID string, c Comment) error
	Delete(ctx context.Context, id string) error
	CountByAuthor(ctx context.Context, authorID string) (int, error)
}

type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]Post
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]Post)}
}

func (s *MemoryStore) Create(ctx context.Context, p Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return clonePost(p), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter, offset, limit int) ([]Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Post, 0)
	for _, p := range s.posts {
		if matches(p, filter) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Post{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]Post, 0, end-offset)
	for _, p := range matched[offset:end] {
		out = append(out, clonePost(p))
	}
	return out, total, nil
}

func (s *MemoryStore) ToggleLike(ctx context.Context, postID, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return false, ErrNotFound
	}

	liked := !p.LikedBy(accountID)
	if liked {
		p.LikeIDs = append(p.LikeIDs, accountID)
	} else {
		kept := make([]string, 0, len(p.LikeIDs))
		for _, id := range p.LikeIDs {
			if id != accountID {
				kept = append(kept, id)
			}
		}
		p.LikeIDs = kept
	}
	s.posts[postID] = p
	return liked, nil
}

func (s *MemoryStore) AddComment(ctx context.Context, postID string, c Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.Comments = append(p.Comments, c)
	s.posts[postID] = p
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			count++
		}
	}
	return count, nil
}

func matches(p Post, filter Filter) bool {
	if !filter.IncludePrivate && p.IsPrivate {
		return false
	}
	if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
		return false
	}
	if filter.MediaType != "" && p.MediaType != filter.MediaType {
		return false
	}
	return true
}

func clonePost(p Post) Post {
	p.Tags = append([]string(nil), p.Tags...)
	p.LikeIDs = append([]string(nil), p.LikeIDs...)
	p.Comments = append([]Comment(nil), p.Comments...)
	return p
}
