package post

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgram/internal/auth"
	"snapgram/internal/notification"
	"snapgram/internal/observability"
)

type directory map[string]auth.Author

func (d directory) Authors(_ context.Context, ids []string) (map[string]auth.Author, error) {
	out := make(map[string]auth.Author)
	for _, id := range ids {
		if a, ok := d[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (d directory) AuthorByUsername(_ context.Context, username string) (auth.Author, error) {
	for _, a := range d {
		if a.Username == username {
			return a, nil
		}
	}
	return auth.Author{}, auth.ErrAccountNotFound
}

var people = directory{
	"alice-id": {ID: "alice-id", Username: "alice"},
	"bob-id":   {ID: "bob-id", Username: "bob"},
}

type fixture struct {
	posts         *Service
	notifications *notification.Service
}

func newFixture() fixture {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	notifications := notification.NewService(notification.NewMemoryStore(), people, nil).WithClock(tick)
	logger := observability.NewLoggerTo(&strings.Builder{})
	posts := NewService(NewMemoryStore(), people, notifications, logger).WithClock(tick)
	return fixture{posts: posts, notifications: notifications}
}

func imagePost(caption string) Input {
	return Input{Caption: caption, MediaURL: "https://res.cloudinary.com/demo/image/upload/cat.jpg", MediaType: MediaImage}
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cases := map[string]Input{
		"missing url":   {MediaType: MediaImage},
		"bad scheme":    {MediaURL: "ftp://example.com/a.jpg", MediaType: MediaImage},
		"userinfo":      {MediaURL: "https://user:pw@example.com/a.jpg", MediaType: MediaImage},
		"bad type":      {MediaURL: "https://example.com/a.gif", MediaType: "gif"},
		"long caption":  {Caption: strings.Repeat("a", 2201), MediaURL: "https://example.com/a.jpg", MediaType: MediaImage},
		"long location": {Location: strings.Repeat("b", 101), MediaURL: "https://example.com/a.jpg", MediaType: MediaImage},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.posts.Create(ctx, "alice-id", input)
			var validationErr ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}

	input := imagePost("  hello  ")
	input.Tags = []string{"#sun", "sun", " ", "sea"}
	p, err := f.posts.Create(ctx, "alice-id", input)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Caption)
	assert.Equal(t, []string{"sun", "sea"}, p.Tags)
	assert.Equal(t, "alice", p.Author.Username)
	assert.Empty(t, p.Likes)
	assert.NotNil(t, p.Comments)
}

func TestService_FeedPagination(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := f.posts.Create(ctx, "alice-id", imagePost(fmt.Sprintf("post %d", i)))
		require.NoError(t, err)
	}
	private := imagePost("secret")
	private.IsPrivate = true
	_, err := f.posts.Create(ctx, "alice-id", private)
	require.NoError(t, err)

	page, err := f.posts.Feed(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 10)
	assert.Equal(t, "post 11", page.Posts[0].Caption)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNextPage)

	page, err = f.posts.Feed(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 2)
	assert.False(t, page.HasNextPage)
	assert.True(t, page.HasPrevPage)

	page, err = f.posts.Feed(ctx, 1, 500)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 12)

	own, err := f.posts.ByUsername(ctx, "alice", "alice-id", 1, 50)
	require.NoError(t, err)
	assert.Len(t, own.Posts, 13)

	other, err := f.posts.ByUsername(ctx, "alice", "bob-id", 1, 50)
	require.NoError(t, err)
	assert.Len(t, other.Posts, 12)

	_, err = f.posts.ByUsername(ctx, "nobody", "", 1, 10)
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestService_ToggleLikeNotifiesOwnerOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.posts.Create(ctx, "alice-id", imagePost("sunset"))
	require.NoError(t, err)

	liked, isLiked, err := f.posts.ToggleLike(ctx, p.ID, "bob-id")
	require.NoError(t, err)
	assert.True(t, isLiked)
	require.Len(t, liked.Likes, 1)
	assert.Equal(t, "bob", liked.Likes[0].Username)

	unliked, isLiked, err := f.posts.ToggleLike(ctx, p.ID, "bob-id")
	require.NoError(t, err)
	assert.False(t, isLiked)
	assert.Empty(t, unliked.Likes)

	_, _, err = f.posts.ToggleLike(ctx, p.ID, "alice-id")
	require.NoError(t, err)

	inbox, err := f.notifications.List(ctx, "alice-id", 1, 20)
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, notification.TypeLike, inbox.Notifications[0].Type)
	assert.Equal(t, p.ID, inbox.Notifications[0].PostID)

	_, _, err = f.posts.ToggleLike(ctx, "missing", "bob-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_AddComment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.posts.Create(ctx, "alice-id", imagePost("lunch"))
	require.NoError(t, err)

	_, err = f.posts.AddComment(ctx, p.ID, "bob-id", "   ")
	var validationErr ValidationError
	assert.ErrorAs(t, err, &validationErr)

	commented, err := f.posts.AddComment(ctx, p.ID, "bob-id", " looks great ")
	require.NoError(t, err)
	require.Len(t, commented.Comments, 1)
	assert.Equal(t, "looks great", commented.Comments[0].Text)
	assert.Equal(t, "bob", commented.Comments[0].Author.Username)

	inbox, err := f.notifications.List(ctx, "alice-id", 1, 20)
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, notification.TypeComment, inbox.Notifications[0].Type)
	assert.Equal(t, commented.Comments[0].ID, inbox.Notifications[0].CommentID)

	_, err = f.posts.AddComment(ctx, "missing", "bob-id", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_DeleteOwnership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.posts.Create(ctx, "alice-id", imagePost("mine"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.posts.Delete(ctx, p.ID, "bob-id"), ErrForbidden)
	require.NoError(t, f.posts.Delete(ctx, p.ID, "alice-id"))
	assert.ErrorIs(t, f.posts.Delete(ctx, p.ID, "alice-id"), ErrNotFound)
}

func TestService_ReelsListOnlyVideos(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.posts.Create(ctx, "alice-id", imagePost("photo"))
	require.NoError(t, err)
	video, err := f.posts.Create(ctx, "bob-id", Input{Caption: "clip", MediaURL: "https://example.com/v.mp4", MediaType: MediaVideo})
	require.NoError(t, err)
	_, _, err = f.posts.ToggleLike(ctx, video.ID, "alice-id")
	require.NoError(t, err)

	reels, err := f.posts.Reels(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, reels.Reels, 1)
	assert.Equal(t, "https://example.com/v.mp4", reels.Reels[0].VideoURL)
	assert.Equal(t, 1, reels.Reels[0].Likes)
	assert.Equal(t, "bob", reels.Reels[0].User.Username)
}
