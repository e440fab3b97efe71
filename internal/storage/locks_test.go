package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	lock, ok, err := db.TryAcquireLock(ctx, "customer", "c1", "alice", "Alice", now, ttl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", lock.UserID)
	assert.True(t, lock.ExpiresAt.Equal(now.Add(ttl)))

	// Another user is refused and sees the holder.
	holder, ok, err := db.TryAcquireLock(ctx, "customer", "c1", "bob", "Bob", now.Add(time.Minute), ttl)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "alice", holder.UserID)

	// The holder re-acquires and refreshes the expiry.
	lock, ok, err = db.TryAcquireLock(ctx, "customer", "c1", "alice", "Alice", now.Add(2*time.Minute), ttl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, lock.ExpiresAt.Equal(now.Add(7*time.Minute)))

	// After expiry another user takes over.
	lock, ok, err = db.TryAcquireLock(ctx, "customer", "c1", "bob", "Bob", now.Add(8*time.Minute), ttl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", lock.UserID)

	active, err := db.ListActiveLocks(ctx, "", now.Add(8*time.Minute))
	require.NoError(t, err)
	assert.Len(t, active, 1, "one row per entity")
}

func TestReleaseAndReacquire(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, ok, err := db.TryAcquireLock(ctx, "candidate", "x", "alice", "", now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, db.ReleaseLock(ctx, "candidate", "x", "bob", now), ErrNotFound)
	require.NoError(t, db.ReleaseLock(ctx, "candidate", "x", "alice", now))
	assert.ErrorIs(t, db.ReleaseLock(ctx, "candidate", "x", "alice", now), ErrNotFound)

	_, err = db.GetActiveLock(ctx, "candidate", "x", now)
	assert.ErrorIs(t, err, ErrNotFound)

	_, ok, err = db.TryAcquireLock(ctx, "candidate", "x", "bob", "", now, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExtendAndExpireLocks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	_, _, err := db.TryAcquireLock(ctx, "requirement", "r1", "alice", "", now, time.Minute)
	require.NoError(t, err)
	_, _, err = db.TryAcquireLock(ctx, "requirement", "r2", "bob", "", now, time.Minute)
	require.NoError(t, err)

	ext, err := db.ExtendLock(ctx, "requirement", "r1", "alice", now.Add(30*time.Second), 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ext.ExpiresAt.Equal(now.Add(30*time.Second+10*time.Minute)))

	_, err = db.ExtendLock(ctx, "requirement", "r1", "bob", now, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := db.ExpireLocks(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mine, err := db.ListActiveLocks(ctx, "alice", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].EntityID)

	require.NoError(t, db.ForceReleaseLock(ctx, "requirement", "r1"))
	assert.ErrorIs(t, db.ForceReleaseLock(ctx, "requirement", "r1"), ErrNotFound)
}
