package notification

import (
	"errors"
	"time"

	"snapgram/internal/auth"
)

// MaxPerRecipient bounds each inbox; the oldest entry goes first.
const MaxPerRecipient = 30

type Type string

const (
	TypeComment Type = "comment"
	TypeLike    Type = "like"
	TypeFollow  Type = "follow"
	TypeMention Type = "mention"
)

func (t Type) Valid() bool {
	switch t {
	case TypeComment, TypeLike, TypeFollow, TypeMention:
		return true
	}
	return false
}

var (
	ErrNotFound    = errors.New("notification not found")
	ErrInvalidType = errors.New("invalid notification type")
	ErrMissingPost = errors.New("like and comment notifications need a post")
)

type Notification struct {
	ID          string      `json:"id"`
	RecipientID string      `json:"recipient"`
	SenderID    string      `json:"-"`
	Sender      auth.Author `json:"sender"`
	Type        Type        `json:"type"`
	PostID      string      `json:"postId,omitempty"`
	CommentID   string      `json:"commentId,omitempty"`
	Read        bool        `json:"read"`
	Message     string      `json:"message"`
	CreatedAt   time.Time   `json:"createdAt"`
}

type Input struct {
	RecipientID string
	SenderID    string
	Type        Type
	PostID      string
	CommentID   string
	Message     string
}

type Page struct {
	Notifications []Notification `json:"notifications"`
	CurrentPage   int            `json:"currentPage"`
	TotalPages    int            `json:"totalPages"`
	HasNextPage   bool           `json:"hasNextPage"`
	HasPrevPage   bool           `json:"hasPrevPage"`
	UnreadCount   int            `json:"unreadCount"`
}

func defaultMessage(t Type, senderUsername string) string {
	switch t {
	case TypeComment:
		return senderUsername + " commented on your post"
	case TypeLike:
		return senderUsername + " liked your post"
	case TypeFollow:
		return senderUsername + " started following you"
	case TypeMention:
		return senderUsername + " mentioned you in a comment"
	default:
		return senderUsername + " interacted with your post"
	}
}
