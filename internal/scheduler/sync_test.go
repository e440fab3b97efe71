package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/storage"
)

type fakeSyncer struct {
	fail  map[string]error
	calls []string
}

func (f *fakeSyncer) SyncPortal(_ context.Context, portal string) (int, error) {
	f.calls = append(f.calls, portal)
	if err := f.fail[portal]; err != nil {
		return 0, err
	}
	return 2, nil
}

func TestSyncUpsertValidatesAndSchedules(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewSyncService(db, &fakeSyncer{}, nil, "").WithClock(clock.Now)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, &storage.SyncSettings{Portal: "stepstone", Enabled: true, IntervalMinutes: 3})
	assert.ErrorIs(t, err, storage.ErrInvalid)
	_, err = svc.Upsert(ctx, &storage.SyncSettings{Enabled: true, IntervalMinutes: 30})
	assert.ErrorIs(t, err, storage.ErrInvalid)

	s, err := svc.Upsert(ctx, &storage.SyncSettings{Portal: " StepStone ", Enabled: true, IntervalMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "stepstone", s.Portal)
	require.NotNil(t, s.NextSyncAt)
	assert.True(t, s.NextSyncAt.Equal(clock.Now()))

	s, err = svc.Upsert(ctx, &storage.SyncSettings{Portal: "stepstone", Enabled: false, IntervalMinutes: 30})
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Nil(t, s.NextSyncAt)
}

func TestSyncRunDueRecordsOutcomePerPortal(t *testing.T) {
	db := newTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	syncer := &fakeSyncer{fail: map[string]error{"indeed": errors.New("portal timeout")}}
	n := &recordingNotifier{}
	svc := NewSyncService(db, syncer, n, "ops").WithClock(clock.Now)
	ctx := context.Background()

	for _, p := range []string{"indeed", "stepstone"} {
		_, err := svc.Upsert(ctx, &storage.SyncSettings{Portal: p, Enabled: true, IntervalMinutes: 60})
		require.NoError(t, err)
	}
	_, err := svc.Upsert(ctx, &storage.SyncSettings{Portal: "monster", Enabled: false, IntervalMinutes: 60})
	require.NoError(t, err)

	sum, err := svc.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Due: 2, Synced: 1, Failed: 1, Matched: 2}, sum)
	assert.ElementsMatch(t, []string{"indeed", "stepstone"}, syncer.calls)
	assert.Equal(t, []string{"sync_failed"}, n.types())

	ok, err := svc.Get(ctx, "stepstone")
	require.NoError(t, err)
	assert.Equal(t, "success", ok.LastStatus)
	require.NotNil(t, ok.NextSyncAt)
	assert.True(t, ok.NextSyncAt.Equal(clock.Now().Add(time.Hour)))

	bad, err := svc.Get(ctx, "indeed")
	require.NoError(t, err)
	assert.Equal(t, "failed", bad.LastStatus)
	assert.Equal(t, "portal timeout", bad.LastError)

	due, err := svc.Due(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(time.Hour)
	require.NoError(t, svc.Handler()(ctx, &storage.ScheduledTask{}))
	assert.Len(t, syncer.calls, 4)
}
