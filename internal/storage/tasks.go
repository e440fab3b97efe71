package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskFilter struct {
	Status string
	Type   string
	Limit  int
}

func (db *DB) CreateTask(ctx context.Context, t *ScheduledTask) error {
	now := utc(time.Now())
	t.ID = uuid.New().String()
	t.CreatedAt, t.UpdatedAt = now, now
	t.RunAt = utc(t.RunAt)
	if t.Status == "" {
		t.Status = "pending"
	}
	if t.Payload == "" {
		t.Payload = "{}"
	}
	if t.MaxAttempts <= 0 {
		t.MaxAttempts = 3
	}
	_, err := db.exec(ctx, `
		INSERT INTO scheduled_tasks (id, task_type, payload, status, priority, run_at, attempts, max_attempts,
			last_error, locked_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, t.Payload, t.Status, t.Priority, t.RunAt, t.Attempts, t.MaxAttempts,
		t.LastError, t.LockedBy, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

const taskColumns = `id, task_type, payload, status, priority, run_at, attempts, max_attempts, last_error,
	locked_by, started_at, completed_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*ScheduledTask, error) {
	t := &ScheduledTask{}
	var started, completed sql.NullTime
	if err := row.Scan(&t.ID, &t.Type, &t.Payload, &t.Status, &t.Priority, &t.RunAt, &t.Attempts, &t.MaxAttempts,
		&t.LastError, &t.LockedBy, &started, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.RunAt = t.RunAt.UTC()
	t.StartedAt, t.CompletedAt = timePtr(started), timePtr(completed)
	return t, nil
}

func (db *DB) GetTask(ctx context.Context, id string) (*ScheduledTask, error) {
	t, err := scanTask(db.queryRow(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (db *DB) ListTasks(ctx context.Context, f TaskFilter) ([]*ScheduledTask, error) {
	where := []string{"1 = 1"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where = append(where, "task_type = ?")
		args = append(args, f.Type)
	}
	args = append(args, clampLimit(f.Limit, 100, 1000))
	return db.queryTasks(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE `+strings.Join(where, " AND ")+
		` ORDER BY run_at DESC LIMIT ?`, args...)
}

// ListDueTasks returns pending tasks whose run_at has passed, highest priority first.
func (db *DB) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]*ScheduledTask, error) {
	return db.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND run_at <= ?
		ORDER BY priority DESC, run_at ASC LIMIT ?`, utc(now), clampLimit(limit, 20, 500))
}

func (db *DB) queryTasks(ctx context.Context, q string, args ...any) ([]*ScheduledTask, error) {
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*ScheduledTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ClaimTask moves a pending task to running for worker. It returns ErrNotFound when another worker
// claimed it first or the task is no longer pending.
func (db *DB) ClaimTask(ctx context.Context, id, worker string, now time.Time) error {
	now = utc(now)
	return expectOne(db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'running', locked_by = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`, worker, now, now, id))
}

func (db *DB) CompleteTask(ctx context.Context, id string, now time.Time) error {
	now = utc(now)
	return expectOne(db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'completed', completed_at = ?, last_error = '', locked_by = '', updated_at = ?
		WHERE id = ? AND status = 'running'`, now, now, id))
}

// RescheduleTask records a failed attempt and puts the task back to pending at runAt.
func (db *DB) RescheduleTask(ctx context.Context, id, lastErr string, runAt, now time.Time) error {
	return expectOne(db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'pending', attempts = attempts + 1, last_error = ?, run_at = ?,
			locked_by = '', updated_at = ?
		WHERE id = ? AND status = 'running'`, lastErr, utc(runAt), utc(now), id))
}

// FailTask records the final failed attempt.
func (db *DB) FailTask(ctx context.Context, id, lastErr string, now time.Time) error {
	now = utc(now)
	return expectOne(db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'failed', attempts = attempts + 1, last_error = ?, completed_at = ?,
			locked_by = '', updated_at = ?
		WHERE id = ? AND status = 'running'`, lastErr, now, now, id))
}

// CancelTask cancels a pending task. ErrNotFound covers both a missing task and one in another status.
func (db *DB) CancelTask(ctx context.Context, id string) error {
	return expectOne(db.exec(ctx, `UPDATE scheduled_tasks SET status = 'cancelled', updated_at = ? WHERE id = ? AND status = 'pending'`,
		utc(time.Now()), id))
}

// RetryTask resets a failed task to pending with a fresh attempt budget.
func (db *DB) RetryTask(ctx context.Context, id string, runAt time.Time) error {
	return expectOne(db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'pending', attempts = 0, last_error = '', run_at = ?, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'failed'`, utc(runAt), utc(time.Now()), id))
}

// HasOpenTask reports whether a pending or running task of taskType exists.
func (db *DB) HasOpenTask(ctx context.Context, taskType string) (bool, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM scheduled_tasks WHERE task_type = ? AND status IN ('pending', 'running')`, taskType).Scan(&n)
	return n > 0, err
}

// ReleaseStaleTasks returns tasks stuck in running since before cutoff to pending, e.g. after a crash.
func (db *DB) ReleaseStaleTasks(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.exec(ctx, `
		UPDATE scheduled_tasks SET status = 'pending', locked_by = '', updated_at = ?
		WHERE status = 'running' AND started_at < ?`, utc(time.Now()), utc(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
