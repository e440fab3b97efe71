package locks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	db, err := storage.NewDB("sqlite:" + filepath.Join(t.TempDir(), "locks.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))

	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	return NewService(db, 5*time.Minute).WithClock(clock.Now), clock
}

func TestAcquireConflictReportsHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "customer", "c1", "alice", "Alice Meyer")
	require.NoError(t, err)

	_, err = svc.Acquire(ctx, "customer", "c1", "bob", "Bob")
	require.ErrorIs(t, err, ErrLocked)
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "alice", locked.Holder.UserID)
	assert.Contains(t, err.Error(), "Alice Meyer")
}

func TestExpiredLockIsFree(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "candidate", "x", "alice", "")
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	lock, err := svc.Status(ctx, "candidate", "x")
	require.NoError(t, err)
	assert.Nil(t, lock)
	assert.NoError(t, svc.CheckWritable(ctx, "candidate", "x", "bob"))

	lock, err = svc.Acquire(ctx, "candidate", "x", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", lock.UserID)
}

func TestReleaseRequiresHolder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "requirement", "r1", "alice", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Release(ctx, "requirement", "r1", "bob"), ErrNotHolder)
	require.NoError(t, svc.Release(ctx, "requirement", "r1", "alice"))
	assert.ErrorIs(t, svc.Release(ctx, "requirement", "r1", "alice"), ErrNotHolder)
}

func TestExtend(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "job_posting", "p1", "alice", "")
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	lock, err := svc.Extend(ctx, "job_posting", "p1", "alice")
	require.NoError(t, err)
	assert.True(t, lock.ExpiresAt.Equal(clock.Now().Add(5*time.Minute)))

	_, err = svc.Extend(ctx, "job_posting", "p1", "bob")
	assert.ErrorIs(t, err, ErrNotHolder)

	clock.Advance(6 * time.Minute)
	_, err = svc.Extend(ctx, "job_posting", "p1", "alice")
	assert.ErrorIs(t, err, ErrNotHolder, "an expired lock cannot be extended")
}

func TestCheckWritable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "contact", "k1", "alice", "")
	require.NoError(t, err)

	assert.NoError(t, svc.CheckWritable(ctx, "contact", "k1", "alice"))
	assert.ErrorIs(t, svc.CheckWritable(ctx, "contact", "k1", "bob"), ErrLocked)
	assert.NoError(t, svc.CheckWritable(ctx, "contact", "other", "bob"))
}

func TestForceReleaseAndCleanup(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "customer", "c1", "alice", "")
	require.NoError(t, err)
	_, err = svc.Acquire(ctx, "customer", "c2", "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.ForceRelease(ctx, "customer", "c1"))
	assert.ErrorIs(t, svc.ForceRelease(ctx, "customer", "c1"), ErrNotHolder)

	held, err := svc.ListHeld(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, held, 1)

	clock.Advance(10 * time.Minute)
	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRejectsUnknownEntityType(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Acquire(context.Background(), "invoice", "1", "alice", "")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = svc.Acquire(context.Background(), "customer", "1", "", "")
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestConcurrentAcquireHasOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const editors = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		locked  int
		other   []error
	)
	for i := 0; i < editors; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := svc.Acquire(ctx, "requirement", "r1", user, user)
			mu.Lock()
			defer mu.Unlock()
			var le *LockedError
			switch {
			case err == nil:
				winners = append(winners, user)
			case errors.As(err, &le):
				locked++
			default:
				other = append(other, err)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, winners, 1)
	assert.Equal(t, editors-1, locked)

	lock, err := svc.Status(ctx, "requirement", "r1")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, winners[0], lock.UserID)
}
