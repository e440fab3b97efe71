package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	a := &PipelineItem{PostingID: "p1", Channel: "linkedin", Content: "We are hiring", ScheduledFor: now.Add(-time.Minute)}
	b := &PipelineItem{PostingID: "p1", Channel: "xing", Content: "We are hiring", ScheduledFor: now.Add(-time.Minute), Priority: 5}
	later := &PipelineItem{PostingID: "p1", Channel: "twitter", Content: "We are hiring", ScheduledFor: now.Add(time.Hour)}
	for _, it := range []*PipelineItem{a, b, later} {
		require.NoError(t, db.CreatePipelineItem(ctx, it))
	}

	due, err := db.ListDuePipelineItems(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, b.ID, due[0].ID)

	require.NoError(t, db.TransitionPipelineItem(ctx, b.ID, "queued", "processing", time.Now()))
	assert.ErrorIs(t, db.TransitionPipelineItem(ctx, b.ID, "queued", "processing", time.Now()), ErrNotFound)
	require.NoError(t, db.MarkPipelinePublished(ctx, b.ID, "ext-42", now))

	got, err := db.GetPipelineItem(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "published", got.Status)
	assert.Equal(t, "ext-42", got.ExternalID)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.PublishedAt)

	require.NoError(t, db.MarkPipelineFailed(ctx, a.ID, "token expired"))
	assert.ErrorIs(t, db.MarkPipelineFailed(ctx, b.ID, "late"), ErrNotFound)
	require.NoError(t, db.TransitionPipelineItem(ctx, a.ID, "failed", "queued", time.Now()))
	got, err = db.GetPipelineItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)

	require.NoError(t, db.TransitionPipelineItem(ctx, later.ID, "queued", "cancelled", time.Now()))

	stats, err := db.PipelineStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"queued": 1, "processing": 0, "published": 1, "failed": 0, "cancelled": 1}, stats)

	list, err := db.ListPipelineItems(ctx, PipelineFilter{Channel: "xing"})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
