package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateNotification(ctx context.Context, n *Notification) error {
	n.ID = uuid.New().String()
	n.CreatedAt = utc(time.Now())
	n.IsRead, n.ReadAt = false, nil
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	_, err := db.exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, toJSON(n.Data), false, n.CreatedAt,
	)
	return err
}

const notificationColumns = `id, user_id, type, title, message, data, is_read, read_at, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*Notification, error) {
	n := &Notification{}
	var data string
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.IsRead, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	fromJSON(data, &n.Data)
	n.ReadAt = timePtr(readAt)
	return n, nil
}

func (db *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		q += ` AND is_read = ?`
		args = append(args, false)
	}
	args = append(args, clampLimit(limit, 50, 500))

	rows, err := db.query(ctx, q+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead marks one notification of userID as read. Re-reading is not an error.
func (db *DB) MarkNotificationRead(ctx context.Context, id, userID string) error {
	now := utc(time.Now())
	return expectOne(db.exec(ctx, `
		UPDATE notifications SET is_read = ?, read_at = COALESCE(read_at, ?)
		WHERE id = ? AND user_id = ?`, true, now, id, userID))
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := db.exec(ctx, `UPDATE notifications SET is_read = ?, read_at = ? WHERE user_id = ? AND is_read = ?`,
		true, utc(time.Now()), userID, false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`, userID, false).Scan(&n)
	return n, err
}
