package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const lockColumns = `id, entity_type, entity_id, user_id, user_name, locked_at, expires_at, is_active`

func scanLock(row interface{ Scan(...any) error }) (*EditingLock, error) {
	l := &EditingLock{}
	if err := row.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.UserID, &l.UserName, &l.LockedAt, &l.ExpiresAt, &l.IsActive); err != nil {
		return nil, err
	}
	l.LockedAt, l.ExpiresAt = l.LockedAt.UTC(), l.ExpiresAt.UTC()
	return l, nil
}

// TryAcquireLock takes the lock for (entityType, entityID) in a single upsert. The row is taken
// over when it is inactive, expired or already held by the same user. ok is false when another
// user holds an active lock; the returned lock is then the current holder's.
func (db *DB) TryAcquireLock(ctx context.Context, entityType, entityID, userID, userName string, now time.Time, ttl time.Duration) (lock *EditingLock, ok bool, err error) {
	now = utc(now)
	expires := utc(now.Add(ttl))

	row := db.queryRow(ctx, `
		INSERT INTO editing_locks (id, entity_type, entity_id, user_id, user_name, locked_at, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			locked_at = excluded.locked_at,
			expires_at = excluded.expires_at,
			is_active = excluded.is_active
		WHERE editing_locks.is_active = ?
		   OR editing_locks.expires_at <= excluded.locked_at
		   OR editing_locks.user_id = excluded.user_id
		RETURNING id`,
		uuid.New().String(), entityType, entityID, userID, userName, now, expires, true, false,
	)
	var id string
	err = row.Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	acquired := err == nil

	// Timestamps are read back with a plain SELECT; RETURNING carries no column types on SQLite.
	current, err := scanLock(db.queryRow(ctx, `SELECT `+lockColumns+` FROM editing_locks WHERE entity_type = ? AND entity_id = ?`, entityType, entityID))
	if err != nil {
		return nil, false, notFound(err)
	}
	return current, acquired && current.UserID == userID, nil
}

// GetActiveLock returns the lock row only while it is active and unexpired at now.
func (db *DB) GetActiveLock(ctx context.Context, entityType, entityID string, now time.Time) (*EditingLock, error) {
	l, err := scanLock(db.queryRow(ctx, `
		SELECT `+lockColumns+` FROM editing_locks
		WHERE entity_type = ? AND entity_id = ? AND is_active = ? AND expires_at > ?`,
		entityType, entityID, true, utc(now)))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// ReleaseLock flips is_active for the active lock held by userID.
func (db *DB) ReleaseLock(ctx context.Context, entityType, entityID, userID string, now time.Time) error {
	return expectOne(db.exec(ctx, `
		UPDATE editing_locks SET is_active = ?
		WHERE entity_type = ? AND entity_id = ? AND user_id = ? AND is_active = ? AND expires_at > ?`,
		false, entityType, entityID, userID, true, utc(now)))
}

// ForceReleaseLock deactivates the lock regardless of holder.
func (db *DB) ForceReleaseLock(ctx context.Context, entityType, entityID string) error {
	return expectOne(db.exec(ctx, `
		UPDATE editing_locks SET is_active = ? WHERE entity_type = ? AND entity_id = ? AND is_active = ?`,
		false, entityType, entityID, true))
}

// ExtendLock bumps expires_at for the unexpired lock held by userID.
func (db *DB) ExtendLock(ctx context.Context, entityType, entityID, userID string, now time.Time, ttl time.Duration) (*EditingLock, error) {
	err := expectOne(db.exec(ctx, `
		UPDATE editing_locks SET expires_at = ?
		WHERE entity_type = ? AND entity_id = ? AND user_id = ? AND is_active = ? AND expires_at > ?`,
		utc(now.Add(ttl)), entityType, entityID, userID, true, utc(now)))
	if err != nil {
		return nil, err
	}
	return db.GetActiveLock(ctx, entityType, entityID, now)
}

// ExpireLocks deactivates every active lock whose expiry has passed.
func (db *DB) ExpireLocks(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, `UPDATE editing_locks SET is_active = ? WHERE is_active = ? AND expires_at <= ?`, false, true, utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListActiveLocks returns the unexpired active locks held by userID, or all of them if userID is empty.
func (db *DB) ListActiveLocks(ctx context.Context, userID string, now time.Time) ([]*EditingLock, error) {
	q := `SELECT ` + lockColumns + ` FROM editing_locks WHERE is_active = ? AND expires_at > ?`
	args := []any{true, utc(now)}
	if userID != "" {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	rows, err := db.query(ctx, q+` ORDER BY locked_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*EditingLock{}
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
