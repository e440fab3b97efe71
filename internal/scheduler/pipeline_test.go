package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/queue"
	"recruiting-ats/internal/storage"
)

type fakePublisher struct {
	msgs []queue.DispatchMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.DispatchMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func seedPosting(t *testing.T, db *storage.DB) *storage.JobPosting {
	t.Helper()
	ctx := context.Background()
	cust := &storage.Customer{Name: "Nordlicht Logistik"}
	require.NoError(t, db.CreateCustomer(ctx, cust))
	req := &storage.Requirement{CustomerID: cust.ID, Title: "Go Developer"}
	require.NoError(t, db.CreateRequirement(ctx, req))
	p := &storage.JobPosting{
		RequirementID:   req.ID,
		Title:           "Go Developer (m/w/d)",
		DescriptionHTML: "<p>We build <strong>Go</strong> services.</p>",
		URL:             "https://jobs.example.com/go-dev",
	}
	require.NoError(t, db.CreatePosting(ctx, p))
	return p
}

func newTestPipeline(t *testing.T) (*Pipeline, *storage.DB, *fakePublisher, *fakeClock, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	pub := &fakePublisher{}
	clock := &fakeClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	n := &recordingNotifier{}
	return NewPipeline(db, pub, n, "ops").WithClock(clock.Now), db, pub, clock, n
}

func TestRenderContent(t *testing.T) {
	p := &storage.JobPosting{
		Title:           "Go Developer",
		DescriptionHTML: "<p>We build <strong>Go</strong> services.</p>",
		URL:             "https://jobs.example.com/1",
	}
	text, err := RenderContent(p, "linkedin")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Go Developer\n\n"))
	assert.Contains(t, text, "**Go**")
	assert.True(t, strings.HasSuffix(text, "\n\nhttps://jobs.example.com/1"))

	p.DescriptionHTML = "<p>" + strings.Repeat("Lots of detail about the role. ", 40) + "</p>"
	text, err = RenderContent(p, "twitter")
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(text), 280)
	assert.Contains(t, text, "…")
	assert.True(t, strings.HasSuffix(text, "https://jobs.example.com/1"), "link is kept")

	text, err = RenderContent(p, "movido")
	require.NoError(t, err)
	assert.NotContains(t, text, "…")

	_, err = RenderContent(p, "myspace")
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestEnqueueValidates(t *testing.T) {
	pl, _, _, _, _ := newTestPipeline(t)
	ctx := context.Background()

	assert.ErrorIs(t, pl.Enqueue(ctx, &storage.PipelineItem{Channel: "fax", Content: "x"}), storage.ErrInvalid)
	assert.ErrorIs(t, pl.Enqueue(ctx, &storage.PipelineItem{Channel: "xing", Content: "  "}), storage.ErrInvalid)
	assert.ErrorIs(t, pl.Enqueue(ctx, &storage.PipelineItem{Channel: "xing", Content: "x", PostingID: "missing"}), storage.ErrNotFound)
}

func TestPublishPostingQueuesPerChannel(t *testing.T) {
	pl, db, _, _, _ := newTestPipeline(t)
	ctx := context.Background()
	posting := seedPosting(t, db)

	_, err := pl.PublishPosting(ctx, posting.ID, []string{"xing", "fax"}, time.Time{})
	assert.ErrorIs(t, err, storage.ErrInvalid)
	none, err := pl.List(ctx, storage.PipelineFilter{PostingID: posting.ID})
	require.NoError(t, err)
	assert.Empty(t, none)

	items, err := pl.PublishPosting(ctx, posting.ID, []string{"xing", "LinkedIn", "xing"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "xing", items[0].Channel)
	assert.Equal(t, "linkedin", items[1].Channel)
	assert.Equal(t, "queued", items[0].Status)

	got, err := db.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, "published", got.Status)
	assert.NotNil(t, got.PublishedAt)
}

func TestDispatchDueAndComplete(t *testing.T) {
	pl, db, pub, clock, _ := newTestPipeline(t)
	ctx := context.Background()
	posting := seedPosting(t, db)

	now := &storage.PipelineItem{PostingID: posting.ID, Channel: "facebook", Content: "now"}
	later := &storage.PipelineItem{PostingID: posting.ID, Channel: "twitter", Content: "later", ScheduledFor: clock.Now().Add(time.Hour)}
	require.NoError(t, pl.Enqueue(ctx, now))
	require.NoError(t, pl.Enqueue(ctx, later))

	sum, err := pl.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, DispatchSummary{Due: 1, Dispatched: 1}, sum)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, now.ID, pub.msgs[0].ItemID)
	assert.Equal(t, 1, pub.msgs[0].Attempt)

	got, err := pl.Get(ctx, now.ID)
	require.NoError(t, err)
	assert.Equal(t, "processing", got.Status)
	assert.Equal(t, 1, got.Attempts)

	got, err = pl.CompleteDispatch(ctx, queue.DispatchResult{ItemID: now.ID, Success: true, ExternalID: "fb-123"})
	require.NoError(t, err)
	assert.Equal(t, "published", got.Status)
	assert.Equal(t, "fb-123", got.ExternalID)
	assert.NotNil(t, got.PublishedAt)

	_, err = pl.CompleteDispatch(ctx, queue.DispatchResult{ItemID: now.ID, Success: true})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = pl.CompleteDispatch(ctx, queue.DispatchResult{ItemID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := pl.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["published"])
	assert.Equal(t, 1, stats["queued"])
}

func TestDispatchFailureRetryAndCancel(t *testing.T) {
	pl, db, pub, _, n := newTestPipeline(t)
	ctx := context.Background()
	posting := seedPosting(t, db)

	item := &storage.PipelineItem{PostingID: posting.ID, Channel: "xing", Content: "hello"}
	require.NoError(t, pl.Enqueue(ctx, item))

	pub.err = errors.New("broker down")
	sum, err := pl.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)

	got, err := pl.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "publish: broker down", got.Error)
	assert.Equal(t, []string{"post_failed"}, n.types())

	_, err = pl.Cancel(ctx, item.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err = pl.Retry(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Status)
	assert.Empty(t, got.Error)

	pub.err = nil
	_, err = pl.DispatchDue(ctx, 10)
	require.NoError(t, err)
	got, err = pl.CompleteDispatch(ctx, queue.DispatchResult{ItemID: item.ID, Success: false})
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "channel reported failure", got.Error)
	assert.Equal(t, 2, got.Attempts)

	_, err = pl.Retry(ctx, item.ID)
	require.NoError(t, err)
	got, err = pl.Cancel(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Status)
}

func TestDispatchFailsStaleProcessingItems(t *testing.T) {
	pl, db, _, clock, n := newTestPipeline(t)
	ctx := context.Background()
	posting := seedPosting(t, db)

	item := &storage.PipelineItem{PostingID: posting.ID, Channel: "linkedin", Content: "hello"}
	require.NoError(t, pl.Enqueue(ctx, item))
	_, err := pl.DispatchDue(ctx, 10)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	sum, err := pl.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Expired)

	clock.Advance(25 * time.Minute)
	sum, err = pl.DispatchDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Expired)

	got, err := pl.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.Error, "no channel result")
	assert.Equal(t, []string{"post_failed"}, n.types())

	_, err = pl.CompleteDispatch(ctx, queue.DispatchResult{ItemID: item.ID, Success: true})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err = pl.Retry(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "queued", got.Status)
}
