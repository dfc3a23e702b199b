package notification

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapgram/internal/auth"
)

type staticAuthors map[string]auth.Author

func (a staticAuthors) Authors(_ context.Context, ids []string) (map[string]auth.Author, error) {
	out := make(map[string]auth.Author)
	for _, id := range ids {
		if author, ok := a[id]; ok {
			out[id] = author
		}
	}
	return out, nil
}

var testAuthors = staticAuthors{
	"alice": {ID: "alice", Username: "alice", FullName: "Alice Liddell"},
	"bob":   {ID: "bob", Username: "bob", FullName: "Bob Builder"},
}

func newTestService(hub *Hub) (*Service, *MemoryStore, *time.Time) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	service := NewService(store, testAuthors, hub).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return service, store, &now
}

func TestService_NotifyGeneratesMessage(t *testing.T) {
	service, _, _ := newTestService(nil)
	ctx := context.Background()

	n, created, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeLike, PostID: "p1"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "bob liked your post", n.Message)
	assert.Equal(t, "bob", n.Sender.Username)

	n, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeFollow})
	require.NoError(t, err)
	assert.Equal(t, "bob started following you", n.Message)

	n, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeMention, Message: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", n.Message)
}

func TestService_NotifyRejections(t *testing.T) {
	service, store, _ := newTestService(nil)
	ctx := context.Background()

	_, created, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "alice", Type: TypeLike, PostID: "p1"})
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: "poke"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeComment})
	assert.ErrorIs(t, err, ErrMissingPost)

	_, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "ghost", Type: TypeFollow})
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)

	total, _, err := store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_InboxIsCapped(t *testing.T) {
	service, store, _ := newTestService(nil)
	ctx := context.Background()

	var first Notification
	for i := 0; i < MaxPerRecipient+1; i++ {
		n, _, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeLike, PostID: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
		if i == 0 {
			first = n
		}
	}

	total, _, err := store.Count(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, MaxPerRecipient, total)

	all, err := store.List(ctx, "alice", 0, 100)
	require.NoError(t, err)
	for _, n := range all {
		assert.NotEqual(t, first.ID, n.ID)
	}
	assert.Equal(t, "p30", all[0].PostID)
}

func TestService_ListPaginatesNewestFirst(t *testing.T) {
	service, _, _ := newTestService(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeLike, PostID: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
	}

	page, err := service.List(ctx, "alice", 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, "p4", page.Notifications[0].PostID)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.False(t, page.HasPrevPage)
	assert.Equal(t, 5, page.UnreadCount)
	assert.Equal(t, "bob", page.Notifications[0].Sender.Username)

	last, err := service.List(ctx, "alice", 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Notifications, 1)
	assert.False(t, last.HasNextPage)
	assert.True(t, last.HasPrevPage)
}

func TestService_ListHugePageIsEmpty(t *testing.T) {
	service, _, _ := newTestService(nil)
	ctx := context.Background()

	_, _, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeFollow})
	require.NoError(t, err)

	page, err := service.List(ctx, "alice", math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Notifications)
	assert.False(t, page.HasNextPage)
	assert.True(t, page.HasPrevPage)
	assert.Equal(t, 1, page.UnreadCount)
}

func TestService_ReadAndDeleteAreScopedToRecipient(t *testing.T) {
	service, _, _ := newTestService(nil)
	ctx := context.Background()

	n, _, err := service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeFollow})
	require.NoError(t, err)
	_, _, err = service.Notify(ctx, Input{RecipientID: "alice", SenderID: "bob", Type: TypeFollow})
	require.NoError(t, err)

	_, err = service.MarkRead(ctx, "bob", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	read, err := service.MarkRead(ctx, "alice", n.ID)
	require.NoError(t, err)
	assert.True(t, read.Read)

	page, err := service.List(ctx, "alice", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, page.UnreadCount)

	updated, err := service.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	assert.ErrorIs(t, service.Delete(ctx, "bob", n.ID), ErrNotFound)
	require.NoError(t, service.Delete(ctx, "alice", n.ID))
	assert.ErrorIs(t, service.Delete(ctx, "alice", n.ID), ErrNotFound)
}

func TestHub_PublishReachesOnlyRecipient(t *testing.T) {
	hub := NewHub()
	service, _, _ := newTestService(hub)

	aliceEvents, stopAlice := hub.Subscribe("alice")
	defer stopAlice()
	bobEvents, stopBob := hub.Subscribe("bob")
	defer stopBob()

	_, _, err := service.Notify(context.Background(), Input{RecipientID: "alice", SenderID: "bob", Type: TypeFollow})
	require.NoError(t, err)

	select {
	case n := <-aliceEvents:
		assert.Equal(t, TypeFollow, n.Type)
	case <-time.After(time.Second):
		t.Fatal("alice did not receive the notification")
	}

	select {
	case n := <-bobEvents:
		t.Fatalf("bob received %v", n)
	default:
	}

	stopAlice()
	stopAlice()
	assert.Equal(t, 0, hub.Subscribers("alice"))
}
