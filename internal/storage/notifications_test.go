package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationsReadFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	n1 := &Notification{UserID: "u1", Type: "match", Title: "New match", Data: map[string]any{"score": 91}}
	n2 := &Notification{UserID: "u1", Type: "task_failed", Title: "Task failed"}
	other := &Notification{UserID: "u2", Type: "match", Title: "New match"}
	for _, n := range []*Notification{n1, n2, other} {
		require.NoError(t, db.CreateNotification(ctx, n))
	}

	count, err := db.UnreadNotificationCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, db.MarkNotificationRead(ctx, n1.ID, "u1"))
	require.NoError(t, db.MarkNotificationRead(ctx, n1.ID, "u1"))
	assert.ErrorIs(t, db.MarkNotificationRead(ctx, n1.ID, "u2"), ErrNotFound)

	unread, err := db.ListNotifications(ctx, "u1", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, n2.ID, unread[0].ID)

	all, err := db.ListNotifications(ctx, "u1", false, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	n, err := db.MarkAllNotificationsRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	count, err = db.UnreadNotificationCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncSettingsDue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertSyncSettings(ctx, &SyncSettings{Portal: "stepstone", Enabled: true, IntervalMinutes: 30}))
	next := now.Add(time.Hour)
	require.NoError(t, db.UpsertSyncSettings(ctx, &SyncSettings{Portal: "indeed", Enabled: true, IntervalMinutes: 60, NextSyncAt: &next}))
	require.NoError(t, db.UpsertSyncSettings(ctx, &SyncSettings{Portal: "monster", Enabled: false, IntervalMinutes: 60}))

	due, err := db.ListDueSyncSettings(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "stepstone", due[0].Portal)

	require.NoError(t, db.MarkSynced(ctx, "stepstone", "success", "", now, now.Add(30*time.Minute)))
	s, err := db.GetSyncSettings(ctx, "stepstone")
	require.NoError(t, err)
	assert.Equal(t, "success", s.LastStatus)
	require.NotNil(t, s.NextSyncAt)
	assert.True(t, s.NextSyncAt.Equal(now.Add(30*time.Minute)))

	// Upsert keeps history.
	require.NoError(t, db.UpsertSyncSettings(ctx, &SyncSettings{Portal: "stepstone", Enabled: true, IntervalMinutes: 15}))
	s, err = db.GetSyncSettings(ctx, "stepstone")
	require.NoError(t, err)
	assert.Equal(t, "success", s.LastStatus)
	assert.Equal(t, 15, s.IntervalMinutes)

	list, err := db.ListSyncSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	assert.ErrorIs(t, db.MarkSynced(ctx, "nope", "success", "", now, now), ErrNotFound)
}
