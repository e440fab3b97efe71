package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MatchFilter struct {
	RequirementID string
	EntityType    string
	EntityID      string
	Status        string
	MinScore      int
	Limit         int
}

// UpsertMatch inserts or refreshes the match for (requirement, entity). Score, breakdown, display
// name and source are overwritten; the recruiter-managed status is kept. created reports whether a
// new row was inserted.
func (db *DB) UpsertMatch(ctx context.Context, m *RequirementMatch) (created bool, err error) {
	now := utc(time.Now())
	newID := uuid.New().String()
	if m.Status == "" {
		m.Status = "new"
	}
	if m.Breakdown == nil {
		m.Breakdown = map[string]any{}
	}

	row := db.queryRow(ctx, `
		INSERT INTO customer_requirement_matches (id, requirement_id, entity_type, entity_id, display_name,
			match_score, breakdown, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (requirement_id, entity_type, entity_id) DO UPDATE SET
			display_name = excluded.display_name,
			match_score = excluded.match_score,
			breakdown = excluded.breakdown,
			source = excluded.source,
			updated_at = excluded.updated_at
		RETURNING id, status`,
		newID, m.RequirementID, m.EntityType, m.EntityID, m.DisplayName,
		m.MatchScore, toJSON(m.Breakdown), m.Source, m.Status, now, now,
	)
	if err := row.Scan(&m.ID, &m.Status); err != nil {
		return false, err
	}
	m.UpdatedAt = now
	created = m.ID == newID
	if created {
		m.CreatedAt = now
		return true, nil
	}
	if err := db.queryRow(ctx, `SELECT created_at FROM customer_requirement_matches WHERE id = ?`, m.ID).Scan(&m.CreatedAt); err != nil {
		return false, err
	}
	return false, nil
}

const matchColumns = `id, requirement_id, entity_type, entity_id, display_name, match_score, breakdown, source, status, created_at, updated_at`

func scanMatch(row interface{ Scan(...any) error }) (*RequirementMatch, error) {
	m := &RequirementMatch{}
	var breakdown string
	if err := row.Scan(&m.ID, &m.RequirementID, &m.EntityType, &m.EntityID, &m.DisplayName, &m.MatchScore,
		&breakdown, &m.Source, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	fromJSON(breakdown, &m.Breakdown)
	if m.Breakdown == nil {
		m.Breakdown = map[string]any{}
	}
	return m, nil
}

func (db *DB) GetMatch(ctx context.Context, id string) (*RequirementMatch, error) {
	m, err := scanMatch(db.queryRow(ctx, `SELECT `+matchColumns+` FROM customer_requirement_matches WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// ListMatches returns matches ordered by score, best first.
func (db *DB) ListMatches(ctx context.Context, f MatchFilter) ([]*RequirementMatch, error) {
	where := []string{"1 = 1"}
	var args []any
	if f.RequirementID != "" {
		where = append(where, "requirement_id = ?")
		args = append(args, f.RequirementID)
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinScore > 0 {
		where = append(where, "match_score >= ?")
		args = append(args, f.MinScore)
	}
	args = append(args, clampLimit(f.Limit, 200, 2000))

	rows, err := db.query(ctx, `SELECT `+matchColumns+` FROM customer_requirement_matches WHERE `+
		strings.Join(where, " AND ")+` ORDER BY match_score DESC, updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*RequirementMatch{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// SetMatchStatus writes status only while the row still has the expected current status.
func (db *DB) SetMatchStatus(ctx context.Context, id, from, to string) error {
	return expectOne(db.exec(ctx, `UPDATE customer_requirement_matches SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, utc(time.Now()), id, from))
}

// DeleteUntouchedMatch removes a match that fell below the threshold on rematch. Matches a
// recruiter already acted on (status other than new) are kept.
func (db *DB) DeleteUntouchedMatch(ctx context.Context, requirementID, entityType, entityID string) (bool, error) {
	res, err := db.exec(ctx, `
		DELETE FROM customer_requirement_matches
		WHERE requirement_id = ? AND entity_type = ? AND entity_id = ? AND status = 'new'`,
		requirementID, entityType, entityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteUntouchedEntityMatches removes every still-new match of one entity across all
// requirements. Used when a candidate leaves the active pool.
func (db *DB) DeleteUntouchedEntityMatches(ctx context.Context, entityType, entityID string) (int64, error) {
	res, err := db.exec(ctx, `
		DELETE FROM customer_requirement_matches
		WHERE entity_type = ? AND entity_id = ? AND status = 'new'`,
		entityType, entityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
