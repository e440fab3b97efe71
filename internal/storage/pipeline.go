package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PipelineFilter struct {
	Status    string
	Channel   string
	PostingID string
	Limit     int
}

func (db *DB) CreatePipelineItem(ctx context.Context, it *PipelineItem) error {
	now := utc(time.Now())
	it.ID = uuid.New().String()
	it.CreatedAt, it.UpdatedAt = now, now
	it.ScheduledFor = utc(it.ScheduledFor)
	if it.Status == "" {
		it.Status = "queued"
	}
	_, err := db.exec(ctx, `
		INSERT INTO post_pipeline_items (id, posting_id, channel, content, scheduled_for, priority, status, attempts,
			external_id, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.PostingID, it.Channel, it.Content, it.ScheduledFor, it.Priority, it.Status, it.Attempts,
		it.ExternalID, it.Error, it.CreatedAt, it.UpdatedAt,
	)
	return err
}

const pipelineColumns = `id, posting_id, channel, content, scheduled_for, priority, status, attempts, external_id, error,
	published_at, created_at, updated_at`

func scanPipelineItem(row interface{ Scan(...any) error }) (*PipelineItem, error) {
	it := &PipelineItem{}
	var published sql.NullTime
	if err := row.Scan(&it.ID, &it.PostingID, &it.Channel, &it.Content, &it.ScheduledFor, &it.Priority, &it.Status,
		&it.Attempts, &it.ExternalID, &it.Error, &published, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.ScheduledFor = it.ScheduledFor.UTC()
	it.PublishedAt = timePtr(published)
	return it, nil
}

func (db *DB) GetPipelineItem(ctx context.Context, id string) (*PipelineItem, error) {
	it, err := scanPipelineItem(db.queryRow(ctx, `SELECT `+pipelineColumns+` FROM post_pipeline_items WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return it, nil
}

func (db *DB) ListPipelineItems(ctx context.Context, f PipelineFilter) ([]*PipelineItem, error) {
	where := []string{"1 = 1"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.PostingID != "" {
		where = append(where, "posting_id = ?")
		args = append(args, f.PostingID)
	}
	args = append(args, clampLimit(f.Limit, 100, 1000))
	return db.queryPipeline(ctx, `SELECT `+pipelineColumns+` FROM post_pipeline_items WHERE `+strings.Join(where, " AND ")+
		` ORDER BY scheduled_for DESC LIMIT ?`, args...)
}

// ListDuePipelineItems returns queued items whose scheduled time has passed.
func (db *DB) ListDuePipelineItems(ctx context.Context, now time.Time, limit int) ([]*PipelineItem, error) {
	return db.queryPipeline(ctx, `
		SELECT `+pipelineColumns+` FROM post_pipeline_items
		WHERE status = 'queued' AND scheduled_for <= ?
		ORDER BY priority DESC, scheduled_for ASC LIMIT ?`, utc(now), clampLimit(limit, 20, 500))
}

func (db *DB) queryPipeline(ctx context.Context, q string, args ...any) ([]*PipelineItem, error) {
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*PipelineItem{}
	for rows.Next() {
		it, err := scanPipelineItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// TransitionPipelineItem moves an item from one status to another. ErrNotFound means the item is
// missing or no longer in from.
func (db *DB) TransitionPipelineItem(ctx context.Context, id, from, to string, now time.Time) error {
	q := `UPDATE post_pipeline_items SET status = ?, updated_at = ?`
	switch to {
	case "processing":
		q += `, attempts = attempts + 1`
	case "queued":
		q += `, error = ''`
	}
	return expectOne(db.exec(ctx, q+` WHERE id = ? AND status = ?`, to, utc(now), id, from))
}

func (db *DB) MarkPipelinePublished(ctx context.Context, id, externalID string, now time.Time) error {
	now = utc(now)
	return expectOne(db.exec(ctx, `
		UPDATE post_pipeline_items SET status = 'published', external_id = ?, error = '', published_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`, externalID, now, now, id))
}

// MarkPipelineFailed fails an item that is queued or processing.
func (db *DB) MarkPipelineFailed(ctx context.Context, id, reason string) error {
	return expectOne(db.exec(ctx, `
		UPDATE post_pipeline_items SET status = 'failed', error = ?, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'processing')`, reason, utc(time.Now()), id))
}

// ListStalePipelineItems returns items that entered processing before cutoff and never got a
// channel result.
func (db *DB) ListStalePipelineItems(ctx context.Context, cutoff time.Time) ([]*PipelineItem, error) {
	return db.queryPipeline(ctx, `SELECT `+pipelineColumns+` FROM post_pipeline_items
		WHERE status = 'processing' AND updated_at < ? ORDER BY updated_at`, utc(cutoff))
}

// PipelineStats counts items per status.
func (db *DB) PipelineStats(ctx context.Context) (map[string]int, error) {
	rows, err := db.query(ctx, `SELECT status, COUNT(*) FROM post_pipeline_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"queued": 0, "processing": 0, "published": 0, "failed": 0, "cancelled": 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[status] = n
	}
	return stats, rows.Err()
}
