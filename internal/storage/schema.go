package storage

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL shared by Postgres and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		industry    TEXT NOT NULL DEFAULT '',
		website     TEXT NOT NULL DEFAULT '',
		address     TEXT NOT NULL DEFAULT '{}',
		status      TEXT NOT NULL,
		notes       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL,
		deleted_at  TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		first_name  TEXT NOT NULL,
		last_name   TEXT NOT NULL,
		email       TEXT NOT NULL DEFAULT '',
		phone       TEXT NOT NULL DEFAULT '',
		position    TEXT NOT NULL DEFAULT '',
		is_primary  BOOLEAN NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		updated_at  TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_customer ON contacts (customer_id)`,
	`CREATE TABLE IF NOT EXISTS requirements (
		id                   TEXT PRIMARY KEY,
		customer_id          TEXT NOT NULL,
		title                TEXT NOT NULL,
		description          TEXT NOT NULL DEFAULT '',
		required_skills      TEXT NOT NULL DEFAULT '[]',
		preferred_skills     TEXT NOT NULL DEFAULT '[]',
		min_experience_years INTEGER NOT NULL DEFAULT 0,
		max_experience_years INTEGER NOT NULL DEFAULT 0,
		education_level      TEXT NOT NULL DEFAULT '',
		location             TEXT NOT NULL DEFAULT '{}',
		latitude             DOUBLE PRECISION,
		longitude            DOUBLE PRECISION,
		radius_km            DOUBLE PRECISION NOT NULL DEFAULT 0,
		remote_allowed       BOOLEAN NOT NULL,
		status               TEXT NOT NULL,
		owner_user_id        TEXT NOT NULL DEFAULT '',
		match_threshold      INTEGER NOT NULL DEFAULT 0,
		created_at           TIMESTAMP NOT NULL,
		updated_at           TIMESTAMP NOT NULL,
		deleted_at           TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requirements_customer ON requirements (customer_id)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id               TEXT PRIMARY KEY,
		first_name       TEXT NOT NULL,
		last_name        TEXT NOT NULL,
		email            TEXT NOT NULL DEFAULT '',
		phone            TEXT NOT NULL DEFAULT '',
		skills           TEXT NOT NULL DEFAULT '[]',
		experience_years INTEGER NOT NULL DEFAULT 0,
		education_level  TEXT NOT NULL DEFAULT '',
		address          TEXT NOT NULL DEFAULT '{}',
		latitude         DOUBLE PRECISION,
		longitude        DOUBLE PRECISION,
		experience       TEXT NOT NULL DEFAULT '[]',
		documents        TEXT NOT NULL DEFAULT '[]',
		qualifications   TEXT NOT NULL DEFAULT '{}',
		status           TEXT NOT NULL,
		source           TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		deleted_at       TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id               TEXT PRIMARY KEY,
		requirement_id   TEXT NOT NULL,
		candidate_id     TEXT NOT NULL DEFAULT '',
		first_name       TEXT NOT NULL,
		last_name        TEXT NOT NULL,
		email            TEXT NOT NULL DEFAULT '',
		skills           TEXT NOT NULL DEFAULT '[]',
		experience_years INTEGER NOT NULL DEFAULT 0,
		education_level  TEXT NOT NULL DEFAULT '',
		address          TEXT NOT NULL DEFAULT '{}',
		latitude         DOUBLE PRECISION,
		longitude        DOUBLE PRECISION,
		cover_letter     TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_requirement ON applications (requirement_id)`,
	`CREATE TABLE IF NOT EXISTS talent_pool_entries (
		id           TEXT PRIMARY KEY,
		candidate_id TEXT NOT NULL,
		tags         TEXT NOT NULL DEFAULT '[]',
		availability TEXT NOT NULL DEFAULT '',
		notes        TEXT NOT NULL DEFAULT '',
		added_by     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_talent_pool_candidate ON talent_pool_entries (candidate_id)`,
	`CREATE TABLE IF NOT EXISTS job_postings (
		id               TEXT PRIMARY KEY,
		requirement_id   TEXT NOT NULL,
		title            TEXT NOT NULL,
		description_html TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		published_at     TIMESTAMP,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS editing_locks (
		id          TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		user_name   TEXT NOT NULL DEFAULT '',
		locked_at   TIMESTAMP NOT NULL,
		expires_at  TIMESTAMP NOT NULL,
		is_active   BOOLEAN NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_editing_locks_entity ON editing_locks (entity_type, entity_id)`,
	`CREATE TABLE IF NOT EXISTS customer_requirement_matches (
		id             TEXT PRIMARY KEY,
		requirement_id TEXT NOT NULL,
		entity_type    TEXT NOT NULL,
		entity_id      TEXT NOT NULL,
		display_name   TEXT NOT NULL DEFAULT '',
		match_score    INTEGER NOT NULL,
		breakdown      TEXT NOT NULL DEFAULT '{}',
		source         TEXT NOT NULL,
		status         TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_entity ON customer_requirement_matches (requirement_id, entity_type, entity_id)`,
	`CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id           TEXT PRIMARY KEY,
		task_type    TEXT NOT NULL,
		payload      TEXT NOT NULL DEFAULT '{}',
		status       TEXT NOT NULL,
		priority     INTEGER NOT NULL DEFAULT 0,
		run_at       TIMESTAMP NOT NULL,
		attempts     INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		last_error   TEXT NOT NULL DEFAULT '',
		locked_by    TEXT NOT NULL DEFAULT '',
		started_at   TIMESTAMP,
		completed_at TIMESTAMP,
		created_at   TIMESTAMP NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (status, run_at)`,
	`CREATE TABLE IF NOT EXISTS post_pipeline_items (
		id            TEXT PRIMARY KEY,
		posting_id    TEXT NOT NULL,
		channel       TEXT NOT NULL,
		content       TEXT NOT NULL,
		scheduled_for TIMESTAMP NOT NULL,
		priority      INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL,
		attempts      INTEGER NOT NULL DEFAULT 0,
		external_id   TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		published_at  TIMESTAMP,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_due ON post_pipeline_items (status, scheduled_for)`,
	`CREATE TABLE IF NOT EXISTS sync_settings (
		portal           TEXT PRIMARY KEY,
		enabled          BOOLEAN NOT NULL,
		interval_minutes INTEGER NOT NULL,
		last_sync_at     TIMESTAMP,
		next_sync_at     TIMESTAMP,
		last_status      TEXT NOT NULL DEFAULT '',
		last_error       TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL,
		title      TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL DEFAULT '{}',
		is_read    BOOLEAN NOT NULL,
		read_at    TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, is_read)`,
}

// EnsureSchema creates every table and index the service needs. It is idempotent.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.connection.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
