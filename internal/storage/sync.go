package storage

import (
	"context"
	"database/sql"
	"time"
)

const syncColumns = `portal, enabled, interval_minutes, last_sync_at, next_sync_at, last_status, last_error, updated_at`

func scanSync(row interface{ Scan(...any) error }) (*SyncSettings, error) {
	s := &SyncSettings{}
	var last, next sql.NullTime
	if err := row.Scan(&s.Portal, &s.Enabled, &s.IntervalMinutes, &last, &next, &s.LastStatus, &s.LastError, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.LastSyncAt, s.NextSyncAt = timePtr(last), timePtr(next)
	return s, nil
}

func (db *DB) GetSyncSettings(ctx context.Context, portal string) (*SyncSettings, error) {
	s, err := scanSync(db.queryRow(ctx, `SELECT `+syncColumns+` FROM sync_settings WHERE portal = ?`, portal))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (db *DB) ListSyncSettings(ctx context.Context) ([]*SyncSettings, error) {
	return db.querySync(ctx, `SELECT `+syncColumns+` FROM sync_settings ORDER BY portal`)
}

// ListDueSyncSettings returns enabled portals whose next sync is due or was never scheduled.
func (db *DB) ListDueSyncSettings(ctx context.Context, now time.Time) ([]*SyncSettings, error) {
	return db.querySync(ctx, `
		SELECT `+syncColumns+` FROM sync_settings
		WHERE enabled = ? AND (next_sync_at IS NULL OR next_sync_at <= ?)
		ORDER BY portal`, true, utc(now))
}

func (db *DB) querySync(ctx context.Context, q string, args ...any) ([]*SyncSettings, error) {
	rows, err := db.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*SyncSettings{}
	for rows.Next() {
		s, err := scanSync(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpsertSyncSettings writes the portal's enabled flag, interval and next run. Sync history is kept.
func (db *DB) UpsertSyncSettings(ctx context.Context, s *SyncSettings) error {
	s.UpdatedAt = utc(time.Now())
	_, err := db.exec(ctx, `
		INSERT INTO sync_settings (portal, enabled, interval_minutes, next_sync_at, last_status, last_error, updated_at)
		VALUES (?, ?, ?, ?, '', '', ?)
		ON CONFLICT (portal) DO UPDATE SET
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			next_sync_at = excluded.next_sync_at,
			updated_at = excluded.updated_at`,
		s.Portal, s.Enabled, s.IntervalMinutes, nullTime(s.NextSyncAt), s.UpdatedAt,
	)
	return err
}

func (db *DB) MarkSynced(ctx context.Context, portal, status, lastErr string, at, next time.Time) error {
	return expectOne(db.exec(ctx, `
		UPDATE sync_settings SET last_sync_at = ?, next_sync_at = ?, last_status = ?, last_error = ?, updated_at = ?
		WHERE portal = ?`, utc(at), utc(next), status, lastErr, utc(at), portal))
}
