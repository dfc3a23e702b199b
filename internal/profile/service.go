package profile

import (
	"context"
	"time"

	"snapgram/internal/auth"
	"snapgram/internal/notification"
	"snapgram/internal/observability"
)

type Directory interface {
	ProfileByUsername(ctx context.Context, username string) (auth.PublicAccount, error)
}

type PostCounter interface {
	CountByAuthor(ctx context.Context, authorID string) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, input notification.Input) (notification.Notification, bool, error)
}

type Service struct {
	store     Store
	directory Directory
	posts     PostCounter
	notifier  Notifier
	logger    *observability.Logger
	now       func() time.Time
}

func NewService(store Store, directory Directory, posts PostCounter, notifier Notifier, logger *observability.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		posts:     posts,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the public profile of username as seen by viewerID, which may
// be empty for anonymous callers.
func (s *Service) Get(ctx context.Context, username, viewerID string) (View, error) {
	account, err := s.directory.ProfileByUsername(ctx, username)
	if err != nil {
		return View{}, err
	}

	view := newView(account)
	view.FollowersCount, view.FollowingCount, err = s.store.Counts(ctx, account.ID)
	if err != nil {
		return View{}, err
	}
	if s.posts != nil {
		view.PostsCount, err = s.posts.CountByAuthor(ctx, account.ID)
		if err != nil {
			return View{}, err
		}
	}
	if viewerID != "" && viewerID != account.ID {
		view.IsFollowing, err = s.store.IsFollowing(ctx, viewerID, account.ID)
		if err != nil {
			return View{}, err
		}
	}
	return view, nil
}

// ToggleFollow follows or unfollows username. A new follow notifies the
// followed account.
func (s *Service) ToggleFollow(ctx context.Context, followerID, username string) (View, error) {
	target, err := s.directory.ProfileByUsername(ctx, username)
	if err != nil {
		return View{}, err
	}
	if target.ID == followerID {
		return View{}, ErrSelfFollow
	}

	following, err := s.store.ToggleFollow(ctx, followerID, target.ID, s.now().UTC())
	if err != nil {
		return View{}, err
	}

	if following && s.notifier != nil {
		_, _, err := s.notifier.Notify(ctx, notification.Input{
			RecipientID: target.ID,
			SenderID:    followerID,
			Type:        notification.TypeFollow,
		})
		if err != nil {
			s.logger.Warn("notification_failed", map[string]any{
				"type":         string(notification.TypeFollow),
				"recipient_id": target.ID,
				"error":        err,
			})
		}
	}

	return s.Get(ctx, username, followerID)
}
