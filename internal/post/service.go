package post

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"snapgram/internal/auth"
	"snapgram/internal/notification"
	"snapgram/internal/observability"
)

var allowedURLChars = regexp.MustCompile(`^[A-Za-z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+$`)
var allowedHost = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

const (
	maxCaptionLength  = 2200
	maxLocationLength = 100
	maxCommentLength  = 500
	maxTags           = 30
	maxTagLength      = 50
	defaultPageSize   = 10
	maxPageSize       = 50
)

type AuthorDirectory interface {
	Authors(ctx context.Context, ids []string) (map[string]auth.Author, error)
	AuthorByUsername(ctx context.Context, username string) (auth.Author, error)
}

type Notifier interface {
	Notify(ctx context.Context, input notification.Input) (notification.Notification, bool, error)
}

type Service struct {
	store    Store
	authors  AuthorDirectory
	notifier Notifier
	logger   *observability.Logger
	now      func() time.Time
}

func NewService(store Store, authors AuthorDirectory, notifier Notifier, logger *observability.Logger) *Service {
	return &Service{store: store, authors: authors, notifier: notifier, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Create(ctx context.Context, authorID string, input Input) (Post, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return Post{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Post{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := s.now().UTC()
	p := Post{
		ID:        id.String(),
		AuthorID:  authorID,
		Caption:   input.Caption,
		MediaURL:  input.MediaURL,
		MediaType: input.MediaType,
		Location:  input.Location,
		Tags:      input.Tags,
		IsPrivate: input.IsPrivate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return Post{}, err
	}

	return s.hydrateOne(ctx, p)
}

func (s *Service) Feed(ctx context.Context, page, limit int) (Page, error) {
	return s.list(ctx, Filter{}, page, limit)
}

// ByUsername lists an author's posts. Owners also see their private posts.
func (s *Service) ByUsername(ctx context.Context, username, viewerID string, page, limit int) (Page, error) {
	author, err := s.authors.AuthorByUsername(ctx, username)
	if err != nil {
		return Page{}, err
	}
	return s.list(ctx, Filter{AuthorID: author.ID, IncludePrivate: viewerID == author.ID}, page, limit)
}

func (s *Service) Reels(ctx context.Context, page, limit int) (ReelPage, error) {
	result, err := s.list(ctx, Filter{MediaType: MediaVideo}, page, limit)
	if err != nil {
		return ReelPage{}, err
	}

	reels := make([]Reel, 0, len(result.Posts))
	for _, p := range result.Posts {
		reels = append(reels, Reel{
			ID:        p.ID,
			VideoURL:  p.MediaURL,
			Caption:   p.Caption,
			User:      p.Author,
			Likes:     len(p.LikeIDs),
			Comments:  len(p.Comments),
			CreatedAt: p.CreatedAt,
		})
	}
	return ReelPage{Reels: reels, CurrentPage: result.CurrentPage, HasNextPage: result.HasNextPage}, nil
}

// ToggleLike likes or unlikes the post for accountID. A new like on someone
// else's post notifies its author.
func (s *Service) ToggleLike(ctx context.Context, postID, accountID string) (Post, bool, error) {
	liked, err := s.store.ToggleLike(ctx, postID, accountID)
	if err != nil {
		return Post{}, false, err
	}

	p, err := s.store.Get(ctx, postID)
	if err != nil {
		return Post{}, false, err
	}

	if liked {
		s.notify(ctx, notification.Input{
			RecipientID: p.AuthorID,
			SenderID:    accountID,
			Type:        notification.TypeLike,
			PostID:      p.ID,
		})
	}

	hydrated, err := s.hydrateOne(ctx, p)
	if err != nil {
		return Post{}, false, err
	}
	return hydrated, liked, nil
}

func (s *Service) AddComment(ctx context.Context, postID, accountID, text string) (Post, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Post{}, ValidationError{Message: "Please provide a comment text"}
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return Post{}, ValidationError{Message: "Comment cannot exceed 500 characters"}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Post{}, fmt.Errorf("generate uuid v7: %w", err)
	}
	comment := Comment{ID: id.String(), AuthorID: accountID, Text: text, CreatedAt: s.now().UTC()}
	if err := s.store.AddComment(ctx, postID, comment); err != nil {
		return Post{}, err
	}

	p, err := s.store.Get(ctx, postID)
	if err != nil {
		return Post{}, err
	}

	s.notify(ctx, notification.Input{
		RecipientID: p.AuthorID,
		SenderID:    accountID,
		Type:        notification.TypeComment,
		PostID:      p.ID,
		CommentID:   comment.ID,
	})

	return s.hydrateOne(ctx, p)
}

func (s *Service) Delete(ctx context.Context, postID, accountID string) error {
	p, err := s.store.Get(ctx, postID)
	if err != nil {
		return err
	}
	if p.AuthorID != accountID {
		return ErrForbidden
	}
	return s.store.Delete(ctx, postID)
}

func (s *Service) CountByAuthor(ctx context.Context, authorID string) (int, error) {
	return s.store.CountByAuthor(ctx, authorID)
}

func (s *Service) list(ctx context.Context, filter Filter, page, limit int) (Page, error) {
	page, limit = pageBounds(page, limit)

	posts, total, err := s.store.List(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return Page{}, err
	}
	if err := s.hydrate(ctx, posts); err != nil {
		return Page{}, err
	}

	return Page{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		HasNextPage: page*limit < total,
		HasPrevPage: page > 1,
	}, nil
}

// notify never fails the triggering action.
func (s *Service) notify(ctx context.Context, input notification.Input) {
	if s.notifier == nil {
		return
	}
	if _, _, err := s.notifier.Notify(ctx, input); err != nil {
		s.logger.Warn("notification_failed", map[string]any{
			"type":         string(input.Type),
			"recipient_id": input.RecipientID,
			"post_id":      input.PostID,
			"error":        err,
		})
	}
}

func (s *Service) hydrateOne(ctx context.Context, p Post) (Post, error) {
	posts := []Post{p}
	if err := s.hydrate(ctx, posts); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

// hydrate fills author cards for posts, likes and comments with one lookup.
func (s *Service) hydrate(ctx context.Context, posts []Post) error {
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
		ids = append(ids, p.LikeIDs...)
		for _, c := range p.Comments {
			ids = append(ids, c.AuthorID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	authors, err := s.authors.Authors(ctx, ids)
	if err != nil {
		return fmt.Errorf("lookup authors: %w", err)
	}
	card := func(id string) auth.Author {
		if a, ok := authors[id]; ok {
			return a
		}
		return auth.Author{ID: id}
	}

	for i := range posts {
		p := &posts[i]
		p.Author = card(p.AuthorID)
		if p.Tags == nil {
			p.Tags = []string{}
		}
		p.Likes = make([]auth.Author, 0, len(p.LikeIDs))
		for _, id := range p.LikeIDs {
			p.Likes = append(p.Likes, card(id))
		}
		if p.Comments == nil {
			p.Comments = []Comment{}
		}
		for j := range p.Comments {
			p.Comments[j].Author = card(p.Comments[j].AuthorID)
		}
	}
	return nil
}

func normalizeInput(input Input) (Input, error) {
	input.Caption = strings.TrimSpace(input.Caption)
	input.MediaURL = strings.TrimSpace(input.MediaURL)
	input.Location = strings.TrimSpace(input.Location)

	if !utf8.ValidString(input.Caption) || utf8.RuneCountInString(input.Caption) > maxCaptionLength {
		return Input{}, ValidationError{Message: "Caption cannot exceed 2200 characters"}
	}
	if input.MediaURL == "" {
		return Input{}, ValidationError{Message: "Media URL is required"}
	}
	if err := validateMediaURL(input.MediaURL); err != nil {
		return Input{}, err
	}
	if input.MediaType != MediaImage && input.MediaType != MediaVideo {
		return Input{}, ValidationError{Message: "Media type must be either image or video"}
	}
	if utf8.RuneCountInString(input.Location) > maxLocationLength {
		return Input{}, ValidationError{Message: "Location cannot exceed 100 characters"}
	}

	tags := make([]string, 0, len(input.Tags))
	seen := make(map[string]struct{}, len(input.Tags))
	for _, tag := range input.Tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			return Input{}, ValidationError{Message: "Tags cannot exceed 50 characters"}
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	if len(tags) > maxTags {
		return Input{}, ValidationError{Message: "A post can have at most 30 tags"}
	}
	input.Tags = tags

	return input, nil
}

func validateMediaURL(raw string) error {
	if len(raw) > 500 || !allowedURLChars.MatchString(raw) {
		return ValidationError{Message: "Media URL contains invalid characters"}
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ValidationError{Message: "Media URL must be a valid link"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ValidationError{Message: "Media URL must start with http or https"}
	}
	if parsed.User != nil || !allowedHost.MatchString(parsed.Hostname()) {
		return ValidationError{Message: "Media URL host is invalid"}
	}
	return nil
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	// Keeps page*limit inside int for any page a client can send.
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return page, limit
}

func isValidation(err error) bool {
	var validationErr ValidationError
	return errors.As(err, &validationErr)
}
