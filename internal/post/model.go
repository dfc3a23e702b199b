package post

import (
	"errors"
	"time"

	"snapgram/internal/auth"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

var (
	ErrNotFound  = errors.New("post not found")
	ErrForbidden = errors.New("you can only delete your own posts")
)

type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

type Post struct {
	ID        string        `json:"id"`
	AuthorID  string        `json:"-"`
	Author    auth.Author   `json:"user"`
	Caption   string        `json:"caption"`
	MediaURL  string        `json:"mediaUrl"`
	MediaType MediaType     `json:"mediaType"`
	Location  string        `json:"location,omitempty"`
	Tags      []string      `json:"tags"`
	IsPrivate bool          `json:"isPrivate"`
	LikeIDs   []string      `json:"-"`
	Likes     []auth.Author `json:"likes"`
	Comments  []Comment     `json:"comments"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func (p Post) LikedBy(accountID string) bool {
	for _, id := range p.LikeIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

type Comment struct {
	ID        string      `json:"id"`
	AuthorID  string      `json:"-"`
	Author    auth.Author `json:"user"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Input struct {
	Caption   string    `json:"caption"`
	MediaURL  string    `json:"mediaUrl"`
	MediaType MediaType `json:"mediaType"`
	Location  string    `json:"location"`
	Tags      []string  `json:"tags"`
	IsPrivate bool      `json:"isPrivate"`
}

// Filter narrows a listing. Private posts are only listed when
// IncludePrivate is set.
type Filter struct {
	AuthorID       string
	MediaType      MediaType
	IncludePrivate bool
}

type Page struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	HasNextPage bool   `json:"hasNextPage"`
	HasPrevPage bool   `json:"hasPrevPage"`
}

// Reel is the card shape the reels screen renders.
type Reel struct {
	ID        string      `json:"id"`
	VideoURL  string      `json:"videoUrl"`
	Caption   string      `json:"caption"`
	User      auth.Author `json:"user"`
	Likes     int         `json:"likes"`
	Comments  int         `json:"comments"`
	CreatedAt time.Time   `json:"createdAt"`
}

type ReelPage struct {
	Reels       []Reel `json:"reels"`
	CurrentPage int    `json:"currentPage"`
	HasNextPage bool   `json:"hasNextPage"`
}
