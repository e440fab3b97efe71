package scheduler

import (
	"context"
	"errors"
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

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*storage.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *storage.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB("sqlite:" + filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func newTestScheduler(t *testing.T) (*Scheduler, *storage.DB, *fakeClock, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{}
	return New(db, n, "ops").WithClock(clock.Now), db, clock, n
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{5, 32 * time.Minute},
		{6, time.Hour},
		{40, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestScheduleRejectsUnknownType(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	_, err := s.Schedule(context.Background(), "send_fax", nil, time.Time{}, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	_, err = s.Schedule(context.Background(), " ", nil, time.Time{}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestRunDueCompletesInPriorityOrder(t *testing.T) {
	s, _, clock, _ := newTestScheduler(t)
	ctx := context.Background()

	var order []string
	s.Register(TaskRematch, func(_ context.Context, task *storage.ScheduledTask) error {
		order = append(order, task.Payload)
		return nil
	})
	_, err := s.Schedule(ctx, TaskRematch, RematchPayload{RequirementID: "low"}, clock.Now().Add(-time.Minute), 0, 0)
	require.NoError(t, err)
	_, err = s.Schedule(ctx, TaskRematch, RematchPayload{RequirementID: "high"}, time.Time{}, 5, 0)
	require.NoError(t, err)
	later, err := s.Schedule(ctx, TaskRematch, nil, clock.Now().Add(time.Hour), 9, 0)
	require.NoError(t, err)

	sum, err := s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Due: 2, Claimed: 2, Completed: 2}, sum)
	assert.Equal(t, []string{`{"requirement_id":"high"}`, `{"requirement_id":"low"}`}, order)

	got, err := s.Get(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)

	done, err := s.List(ctx, "completed", TaskRematch, 0)
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestRunDueRetriesWithBackoffThenFails(t *testing.T) {
	s, _, clock, n := newTestScheduler(t)
	ctx := context.Background()

	s.Register(TaskRematch, func(context.Context, *storage.ScheduledTask) error {
		return errors.New("matcher unavailable")
	})
	task, err := s.Schedule(ctx, TaskRematch, nil, time.Time{}, 0, 2)
	require.NoError(t, err)

	sum, err := s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retried)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "matcher unavailable", got.LastError)
	assert.True(t, got.RunAt.Equal(clock.Now().Add(time.Minute)), "run_at %v", got.RunAt)

	sum, err = s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, sum.Due, "not due before the backoff elapsed")

	clock.Advance(time.Minute)
	sum, err = s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	got, err = s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, []string{"task_failed"}, n.types())

	got, err = s.Retry(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", got.Status)
	assert.Zero(t, got.Attempts)
}

func TestRunDueFailsUnknownTypeImmediately(t *testing.T) {
	s, db, clock, _ := newTestScheduler(t)
	ctx := context.Background()

	task := &storage.ScheduledTask{Type: "legacy_import", RunAt: clock.Now()}
	require.NoError(t, db.CreateTask(ctx, task))

	sum, err := s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.LastError, "unknown task type")
}

func TestRunDueRecoversPanics(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx := context.Background()
	s.Register(TaskRematch, func(context.Context, *storage.ScheduledTask) error { panic("boom") })
	task, err := s.Schedule(ctx, TaskRematch, nil, time.Time{}, 0, 3)
	require.NoError(t, err)

	sum, err := s.RunDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retried)
	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LastError, "task panicked: boom")
}

func TestCancelAndRetryTransitions(t *testing.T) {
	s, _, _, _ := newTestScheduler(t)
	ctx := context.Background()
	s.Register(TaskRematch, func(context.Context, *storage.ScheduledTask) error { return nil })

	task, err := s.Schedule(ctx, TaskRematch, nil, time.Time{}, 0, 0)
	require.NoError(t, err)

	got, err := s.Cancel(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)

	_, err = s.Cancel(ctx, task.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Retry(ctx, task.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInitEnsuresRecurringTasks(t *testing.T) {
	s, _, clock, _ := newTestScheduler(t)
	ctx := context.Background()

	runs := 0
	s.RegisterRecurring(TaskLockCleanup, 10*time.Minute, func(context.Context, *storage.ScheduledTask) error {
		runs++
		return nil
	})

	res, err := s.Init(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{TaskLockCleanup}, res.Created)
	assert.Equal(t, 1, res.Run.Completed)
	assert.Equal(t, 1, runs)

	next, err := s.List(ctx, "pending", TaskLockCleanup, 0)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.True(t, next[0].RunAt.Equal(clock.Now().Add(10*time.Minute)))

	// A second init finds the open task and creates nothing.
	res, err = s.Init(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Zero(t, res.Run.Due)
}
