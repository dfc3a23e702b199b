package notification

import (
	"context"
	"sort"
	"sync"
)

type Store interface {
	// Create inserts n and then trims the recipient's inbox to keep at most
	// maxPerRecipient entries.
	Create(ctx context.Context, n Notification, maxPerRecipient int) error
	List(ctx context.Context, recipientID string, offset, limit int) ([]Notification, error)
	Count(ctx context.Context, recipientID string) (total int, unread int, err error)
	MarkRead(ctx context.Context, recipientID, id string) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, recipientID, id string) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	inbox map[string][]Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{inbox: make(map[string][]Notification)}
}

func (s *MemoryStore) Create(ctx context.Context, n Notification, maxPerRecipient int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := append(s.inbox[n.RecipientID], n)
	sortNewestFirst(items)
	if maxPerRecipient > 0 && len(items) > maxPerRecipient {
		items = items[:maxPerRecipient]
	}
	s.inbox[n.RecipientID] = items
	return nil
}

func (s *MemoryStore) List(ctx context.Context, recipientID string, offset, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.inbox[recipientID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []Notification{}, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]Notification, end-offset)
	copy(out, items[offset:end])
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, recipientID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := 0
	for _, n := range s.inbox[recipientID] {
		if !n.Read {
			unread++
		}
	}
	return len(s.inbox[recipientID]), unread, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, recipientID, id string) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.inbox[recipientID]
	for i := range items {
		if items[i].ID == id {
			items[i].Read = true
			return items[i], nil
		}
	}
	return Notification{}, ErrNotFound
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	items := s.inbox[recipientID]
	for i := range items {
		if !items[i].Read {
			items[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) Delete(ctx context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.inbox[recipientID]
	for i := range items {
		if items[i].ID == id {
			s.inbox[recipientID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func sortNewestFirst(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
