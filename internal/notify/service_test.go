package notify

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.NewDB("sqlite:" + filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))
	return NewService(db, NewHub(4))
}

func TestNotifyStoresAndPushes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ch, cancel := svc.Hub().Subscribe("u1")
	defer cancel()

	n := &storage.Notification{UserID: "u1", Type: TypeMatch, Title: "New match", Data: map[string]any{"score": 88}}
	require.NoError(t, svc.Notify(ctx, n))

	got := <-ch
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "New match", got.Title)

	count, err := svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, svc.MarkRead(ctx, n.ID, "u1"))
	count, err = svc.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotifyRequiresUser(t *testing.T) {
	svc := newTestService(t)
	err := svc.Notify(context.Background(), &storage.Notification{Title: "orphan"})
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe("u1")

	assert.Equal(t, 1, hub.Publish(storage.Notification{ID: "a", UserID: "u1"}))
	assert.Equal(t, 0, hub.Publish(storage.Notification{ID: "b", UserID: "u1"}), "buffer full")
	assert.Equal(t, 0, hub.Publish(storage.Notification{ID: "c", UserID: "u2"}), "no subscriber")

	got := <-ch
	assert.Equal(t, "a", got.ID)

	assert.Equal(t, 1, hub.Subscribers("u1"))
	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers("u1"))
	_, open := <-ch
	assert.False(t, open)
}
