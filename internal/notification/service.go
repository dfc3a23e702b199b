package notification

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"snapgram/internal/auth"
)

// AuthorDirectory resolves account ids to public author cards.
type AuthorDirectory interface {
	Authors(ctx context.Context, ids []string) (map[string]auth.Author, error)
}

type Service struct {
	store   Store
	authors AuthorDirectory
	hub     *Hub
	now     func() time.Time
}

func NewService(store Store, authors AuthorDirectory, hub *Hub) *Service {
	return &Service{store: store, authors: authors, hub: hub, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Notify stores a notification for the recipient and pushes it to any open
// stream. Acting on your own content notifies nobody.
func (s *Service) Notify(ctx context.Context, input Input) (Notification, bool, error) {
	if input.RecipientID == "" || input.RecipientID == input.SenderID {
		return Notification{}, false, nil
	}
	if !input.Type.Valid() {
		return Notification{}, false, ErrInvalidType
	}
	if (input.Type == TypeLike || input.Type == TypeComment) && input.PostID == "" {
		return Notification{}, false, ErrMissingPost
	}

	authors, err := s.authors.Authors(ctx, []string{input.SenderID})
	if err != nil {
		return Notification{}, false, fmt.Errorf("lookup sender: %w", err)
	}
	sender, ok := authors[input.SenderID]
	if !ok {
		return Notification{}, false, fmt.Errorf("sender %s: %w", input.SenderID, auth.ErrAccountNotFound)
	}

	message := input.Message
	if message == "" {
		message = defaultMessage(input.Type, sender.Username)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Notification{}, false, fmt.Errorf("generate uuid v7: %w", err)
	}

	n := Notification{
		ID:          id.String(),
		RecipientID: input.RecipientID,
		SenderID:    input.SenderID,
		Sender:      sender,
		Type:        input.Type,
		PostID:      input.PostID,
		CommentID:   input.CommentID,
		Message:     message,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, n, MaxPerRecipient); err != nil {
		return Notification{}, false, err
	}

	if s.hub != nil {
		s.hub.Publish(n)
	}
	return n, true, nil
}

func (s *Service) List(ctx context.Context, recipientID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}

	items, err := s.store.List(ctx, recipientID, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}
	total, unread, err := s.store.Count(ctx, recipientID)
	if err != nil {
		return Page{}, err
	}
	if err := s.hydrate(ctx, items); err != nil {
		return Page{}, err
	}

	return Page{
		Notifications: items,
		CurrentPage:   page,
		TotalPages:    (total + limit - 1) / limit,
		HasNextPage:   page*limit < total,
		HasPrevPage:   page > 1,
		UnreadCount:   unread,
	}, nil
}

func (s *Service) MarkRead(ctx context.Context, recipientID, id string) (Notification, error) {
	n, err := s.store.MarkRead(ctx, recipientID, id)
	if err != nil {
		return Notification{}, err
	}
	items := []Notification{n}
	if err := s.hydrate(ctx, items); err != nil {
		return Notification{}, err
	}
	return items[0], nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.store.MarkAllRead(ctx, recipientID)
}

func (s *Service) Delete(ctx context.Context, recipientID, id string) error {
	return s.store.Delete(ctx, recipientID, id)
}

func (s *Service) hydrate(ctx context.Context, items []Notification) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.SenderID)
	}
	authors, err := s.authors.Authors(ctx, ids)
	if err != nil {
		return fmt.Errorf("lookup senders: %w", err)
	}
	for i := range items {
		if author, ok := authors[items[i].SenderID]; ok {
			items[i].Sender = author
		} else {
			items[i].Sender = auth.Author{ID: items[i].SenderID}
		}
	}
	return nil
}
