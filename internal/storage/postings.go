package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func validPostingStatus(s string) bool {
	switch s {
	case "draft", "published", "archived":
		return true
	}
	return false
}

func (db *DB) CreatePosting(ctx context.Context, p *JobPosting) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: posting title is required", ErrInvalid)
	}
	if p.Status == "" {
		p.Status = "draft"
	}
	if !validPostingStatus(p.Status) {
		return fmt.Errorf("%w: posting status %q", ErrInvalid, p.Status)
	}
	if _, err := db.GetRequirement(ctx, p.RequirementID); err != nil {
		return fmt.Errorf("requirement %s: %w", p.RequirementID, err)
	}
	now := utc(time.Now())
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := db.exec(ctx, `
		INSERT INTO job_postings (id, requirement_id, title, description_html, url, status, published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RequirementID, p.Title, p.DescriptionHTML, p.URL, p.Status, nullTime(p.PublishedAt), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

const postingColumns = `id, requirement_id, title, description_html, url, status, published_at, created_at, updated_at`

func scanPosting(row interface{ Scan(...any) error }) (*JobPosting, error) {
	p := &JobPosting{}
	var published sql.NullTime
	if err := row.Scan(&p.ID, &p.RequirementID, &p.Title, &p.DescriptionHTML, &p.URL, &p.Status, &published, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PublishedAt = timePtr(published)
	return p, nil
}

func (db *DB) GetPosting(ctx context.Context, id string) (*JobPosting, error) {
	p, err := scanPosting(db.queryRow(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (db *DB) ListPostings(ctx context.Context, requirementID string) ([]*JobPosting, error) {
	q := `SELECT ` + postingColumns + ` FROM job_postings`
	var args []any
	if requirementID != "" {
		q += ` WHERE requirement_id = ?`
		args = append(args, requirementID)
	}
	rows, err := db.query(ctx, q+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*JobPosting{}
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (db *DB) UpdatePostingStatus(ctx context.Context, id, status string) error {
	if !validPostingStatus(status) {
		return fmt.Errorf("%w: posting status %q", ErrInvalid, status)
	}
	now := utc(time.Now())
	if status == "published" {
		return expectOne(db.exec(ctx, `UPDATE job_postings SET status = ?, published_at = COALESCE(published_at, ?), updated_at = ? WHERE id = ?`, status, now, now, id))
	}
	return expectOne(db.exec(ctx, `UPDATE job_postings SET status = ?, updated_at = ? WHERE id = ?`, status, now, id))
}
