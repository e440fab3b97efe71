package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"recruiting-ats/internal/queue"
	"recruiting-ats/internal/storage"
)

// processingTimeout is how long a dispatched item may wait for its channel result.
const processingTimeout = 30 * time.Minute

// channelLimits is the maximum post length per channel; 0 means unlimited.
var channelLimits = map[string]int{
	"facebook":  63206,
	"linkedin":  3000,
	"instagram": 2200,
	"xing":      1000,
	"twitter":   280,
	"movido":    0,
}

func ValidChannel(ch string) bool {
	_, ok := channelLimits[ch]
	return ok
}

// Pipeline queues posting content per channel and hands due items to the broker.
type Pipeline struct {
	db        *storage.DB
	publisher queue.Publisher
	notifier  Notifier
	opsUser   string
	now       func() time.Time
}

func NewPipeline(db *storage.DB, publisher queue.Publisher, notifier Notifier, opsUser string) *Pipeline {
	if publisher == nil {
		publisher = queue.LogPublisher{}
	}
	return &Pipeline{db: db, publisher: publisher, notifier: notifier, opsUser: opsUser, now: time.Now}
}

func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

func (p *Pipeline) Enqueue(ctx context.Context, it *storage.PipelineItem) error {
	if !ValidChannel(it.Channel) {
		return fmt.Errorf("%w: unknown channel %q", storage.ErrInvalid, it.Channel)
	}
	if strings.TrimSpace(it.Content) == "" {
		return fmt.Errorf("%w: content is required", storage.ErrInvalid)
	}
	if it.PostingID != "" {
		if _, err := p.db.GetPosting(ctx, it.PostingID); err != nil {
			return fmt.Errorf("posting %s: %w", it.PostingID, err)
		}
	}
	if it.ScheduledFor.IsZero() {
		it.ScheduledFor = p.now()
	}
	it.Status = "queued"
	it.Attempts = 0
	if err := p.db.CreatePipelineItem(ctx, it); err != nil {
		return fmt.Errorf("create pipeline item: %w", err)
	}
	return nil
}

func (p *Pipeline) Get(ctx context.Context, id string) (*storage.PipelineItem, error) {
	return p.db.GetPipelineItem(ctx, id)
}

func (p *Pipeline) List(ctx context.Context, f storage.PipelineFilter) ([]*storage.PipelineItem, error) {
	if f.Channel != "" && !ValidChannel(f.Channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", storage.ErrInvalid, f.Channel)
	}
	return p.db.ListPipelineItems(ctx, f)
}

func (p *Pipeline) Stats(ctx context.Context) (map[string]int, error) {
	return p.db.PipelineStats(ctx)
}

func (p *Pipeline) Cancel(ctx context.Context, id string) (*storage.PipelineItem, error) {
	return p.transition(ctx, id, "queued", "cancelled")
}

// Retry re-queues a failed item for immediate dispatch.
func (p *Pipeline) Retry(ctx context.Context, id string) (*storage.PipelineItem, error) {
	return p.transition(ctx, id, "failed", "queued")
}

func (p *Pipeline) transition(ctx context.Context, id, from, to string) (*storage.PipelineItem, error) {
	if err := p.db.TransitionPipelineItem(ctx, id, from, to, p.now()); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		it, getErr := p.db.GetPipelineItem(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: item %s is %s, cannot move to %s", ErrInvalidTransition, id, it.Status, to)
	}
	return p.db.GetPipelineItem(ctx, id)
}

type DispatchSummary struct {
	Due        int `json:"due"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Expired    int `json:"expired"`
}

// FailStale fails items that have been processing longer than processingTimeout without a channel
// result, e.g. when no broker consumer is running. They are not re-queued automatically so a slow
// channel cannot post twice; Retry puts them back.
func (p *Pipeline) FailStale(ctx context.Context) (int, error) {
	items, err := p.db.ListStalePipelineItems(ctx, p.now().Add(-processingTimeout))
	if err != nil {
		return 0, fmt.Errorf("list stale items: %w", err)
	}
	n := 0
	for _, it := range items {
		reason := fmt.Sprintf("no channel result within %s", processingTimeout)
		if err := p.db.MarkPipelineFailed(ctx, it.ID, reason); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return n, fmt.Errorf("fail item %s: %w", it.ID, err)
		}
		n++
		p.notifyFailure(ctx, it, reason)
	}
	if n > 0 {
		log.Printf("[Pipeline] failed %d stale processing items", n)
	}
	return n, nil
}

// DispatchDue fails stale processing items, then claims due queued items and publishes them. An
// item whose publish fails is marked failed and can be retried.
func (p *Pipeline) DispatchDue(ctx context.Context, limit int) (DispatchSummary, error) {
	var sum DispatchSummary
	expired, err := p.FailStale(ctx)
	if err != nil {
		return sum, err
	}
	sum.Expired = expired

	items, err := p.db.ListDuePipelineItems(ctx, p.now(), limit)
	if err != nil {
		return sum, fmt.Errorf("list due items: %w", err)
	}
	sum.Due = len(items)

	for _, it := range items {
		if err := p.db.TransitionPipelineItem(ctx, it.ID, "queued", "processing", p.now()); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return sum, fmt.Errorf("claim item %s: %w", it.ID, err)
		}
		msg := queue.DispatchMessage{
			ItemID:       it.ID,
			PostingID:    it.PostingID,
			Channel:      it.Channel,
			Content:      it.Content,
			ScheduledFor: it.ScheduledFor,
			Attempt:      it.Attempts + 1,
		}
		if err := p.publisher.Publish(ctx, msg); err != nil {
			sum.Failed++
			reason := "publish: " + err.Error()
			if mErr := p.db.MarkPipelineFailed(ctx, it.ID, reason); mErr != nil {
				log.Printf("[Pipeline] mark %s failed: %v", it.ID, mErr)
			}
			p.notifyFailure(ctx, it, reason)
			continue
		}
		sum.Dispatched++
	}
	if sum.Due > 0 {
		log.Printf("[Pipeline] %d due, %d dispatched, %d failed", sum.Due, sum.Dispatched, sum.Failed)
	}
	return sum, nil
}

// CompleteDispatch applies a channel worker's result to a processing item.
func (p *Pipeline) CompleteDispatch(ctx context.Context, res queue.DispatchResult) (*storage.PipelineItem, error) {
	it, err := p.db.GetPipelineItem(ctx, res.ItemID)
	if err != nil {
		return nil, err
	}
	if it.Status != "processing" {
		return nil, fmt.Errorf("%w: item %s is %s", ErrInvalidTransition, it.ID, it.Status)
	}

	if res.Success {
		err = p.db.MarkPipelinePublished(ctx, it.ID, res.ExternalID, p.now())
	} else {
		reason := res.Error
		if reason == "" {
			reason = "channel reported failure"
		}
		err = p.db.MarkPipelineFailed(ctx, it.ID, reason)
		if err == nil {
			p.notifyFailure(ctx, it, reason)
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: item %s changed concurrently", ErrInvalidTransition, it.ID)
		}
		return nil, err
	}
	return p.db.GetPipelineItem(ctx, it.ID)
}

func (p *Pipeline) notifyFailure(ctx context.Context, it *storage.PipelineItem, reason string) {
	if p.notifier == nil || p.opsUser == "" {
		return
	}
	err := p.notifier.Notify(ctx, &storage.Notification{
		UserID:  p.opsUser,
		Type:    "post_failed",
		Title:   fmt.Sprintf("Posting to %s failed", it.Channel),
		Message: reason,
		Data:    map[string]any{"item_id": it.ID, "posting_id": it.PostingID, "channel": it.Channel},
	})
	if err != nil {
		log.Printf("[Pipeline] notify failure of %s: %v", it.ID, err)
	}
}

// RenderContent turns a posting into channel text: title, description as Markdown and the link,
// shortened to the channel limit. The link is never cut.
func RenderContent(posting *storage.JobPosting, channel string) (string, error) {
	limit, ok := channelLimits[channel]
	if !ok {
		return "", fmt.Errorf("%w: unknown channel %q", storage.ErrInvalid, channel)
	}
	body := strings.TrimSpace(posting.Title)
	if html := strings.TrimSpace(posting.DescriptionHTML); html != "" {
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			return "", fmt.Errorf("render description: %w", err)
		}
		if md = strings.TrimSpace(md); md != "" {
			body += "\n\n" + md
		}
	}
	suffix := ""
	if posting.URL != "" {
		suffix = "\n\n" + posting.URL
	}
	if limit > 0 {
		room := limit - utf8.RuneCountInString(suffix)
		if utf8.RuneCountInString(body) > room {
			body = truncateRunes(body, room-1) + "…"
		}
	}
	return body + suffix, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimRight(s[:pos], " \n")
		}
		i++
	}
	return s
}

// PublishPosting queues one item per channel and marks the posting published.
func (p *Pipeline) PublishPosting(ctx context.Context, postingID string, channels []string, scheduledFor time.Time) ([]*storage.PipelineItem, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", storage.ErrInvalid)
	}
	posting, err := p.db.GetPosting(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if posting.Status == "archived" {
		return nil, fmt.Errorf("%w: posting %s is archived", ErrInvalidTransition, postingID)
	}

	// Render everything first so an unknown channel queues nothing.
	seen := map[string]bool{}
	items := make([]*storage.PipelineItem, 0, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if seen[ch] {
			continue
		}
		seen[ch] = true
		content, err := RenderContent(posting, ch)
		if err != nil {
			return nil, err
		}
		items = append(items, &storage.PipelineItem{PostingID: posting.ID, Channel: ch, Content: content, ScheduledFor: scheduledFor})
	}
	for _, it := range items {
		if err := p.Enqueue(ctx, it); err != nil {
			return nil, err
		}
	}

	if err := p.db.UpdatePostingStatus(ctx, posting.ID, "published"); err != nil {
		return nil, fmt.Errorf("update posting status: %w", err)
	}
	log.Printf("[Pipeline] Posting %s queued for %d channels", posting.ID, len(items))
	return items, nil
}
