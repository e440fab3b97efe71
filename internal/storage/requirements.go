package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RequirementFilter struct {
	CustomerID string
	Status     string
	Limit      int
}

func validRequirementStatus(s string) bool {
	switch s {
	case "open", "on_hold", "filled", "closed":
		return true
	}
	return false
}

func validateRequirement(r *Requirement) error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: requirement title is required", ErrInvalid)
	}
	if !validRequirementStatus(r.Status) {
		return fmt.Errorf("%w: requirement status %q", ErrInvalid, r.Status)
	}
	if r.MinExperienceYears < 0 || r.MaxExperienceYears < 0 {
		return fmt.Errorf("%w: experience years must not be negative", ErrInvalid)
	}
	if r.MaxExperienceYears > 0 && r.MaxExperienceYears < r.MinExperienceYears {
		return fmt.Errorf("%w: max experience below min experience", ErrInvalid)
	}
	if r.MatchThreshold < 0 || r.MatchThreshold > 100 {
		return fmt.Errorf("%w: match threshold must be within 0-100", ErrInvalid)
	}
	return nil
}

func (db *DB) CreateRequirement(ctx context.Context, r *Requirement) error {
	if r.Status == "" {
		r.Status = "open"
	}
	if err := validateRequirement(r); err != nil {
		return err
	}
	if _, err := db.GetCustomer(ctx, r.CustomerID); err != nil {
		return fmt.Errorf("customer %s: %w", r.CustomerID, err)
	}
	now := utc(time.Now())
	r.ID = uuid.New().String()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := db.exec(ctx, `
		INSERT INTO requirements (id, customer_id, title, description, required_skills, preferred_skills,
			min_experience_years, max_experience_years, education_level, location, latitude, longitude,
			radius_km, remote_allowed, status, owner_user_id, match_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CustomerID, r.Title, r.Description, toJSON(nonNil(r.RequiredSkills)), toJSON(nonNil(r.PreferredSkills)),
		r.MinExperienceYears, r.MaxExperienceYears, r.EducationLevel, toJSON(r.Location), nullFloat(r.Latitude), nullFloat(r.Longitude),
		r.RadiusKm, r.RemoteAllowed, r.Status, r.OwnerUserID, r.MatchThreshold, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

const requirementColumns = `id, customer_id, title, description, required_skills, preferred_skills,
	min_experience_years, max_experience_years, education_level, location, latitude, longitude,
	radius_km, remote_allowed, status, owner_user_id, match_threshold, created_at, updated_at`

func scanRequirement(row interface{ Scan(...any) error }) (*Requirement, error) {
	r := &Requirement{}
	var required, preferred, location string
	var lat, lng sql.NullFloat64
	err := row.Scan(&r.ID, &r.CustomerID, &r.Title, &r.Description, &required, &preferred,
		&r.MinExperienceYears, &r.MaxExperienceYears, &r.EducationLevel, &location, &lat, &lng,
		&r.RadiusKm, &r.RemoteAllowed, &r.Status, &r.OwnerUserID, &r.MatchThreshold, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fromJSON(required, &r.RequiredSkills)
	fromJSON(preferred, &r.PreferredSkills)
	fromJSON(location, &r.Location)
	r.RequiredSkills = nonNil(r.RequiredSkills)
	r.PreferredSkills = nonNil(r.PreferredSkills)
	r.Latitude, r.Longitude = floatPtr(lat), floatPtr(lng)
	return r, nil
}

func (db *DB) GetRequirement(ctx context.Context, id string) (*Requirement, error) {
	r, err := scanRequirement(db.queryRow(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id = ? AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (db *DB) ListRequirements(ctx context.Context, f RequirementFilter) ([]*Requirement, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	args = append(args, clampLimit(f.Limit, 100, 1000))

	rows, err := db.query(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Requirement{}
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ListOpenRequirements returns every open requirement, used by rematch and portal sync.
func (db *DB) ListOpenRequirements(ctx context.Context, limit int) ([]*Requirement, error) {
	return db.ListRequirements(ctx, RequirementFilter{Status: "open", Limit: clampLimit(limit, 1000, 1000)})
}

func (db *DB) UpdateRequirement(ctx context.Context, r *Requirement) error {
	if err := validateRequirement(r); err != nil {
		return err
	}
	r.UpdatedAt = utc(time.Now())
	return expectOne(db.exec(ctx, `
		UPDATE requirements SET title = ?, description = ?, required_skills = ?, preferred_skills = ?,
			min_experience_years = ?, max_experience_years = ?, education_level = ?, location = ?,
			latitude = ?, longitude = ?, radius_km = ?, remote_allowed = ?, status = ?, owner_user_id = ?,
			match_threshold = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		r.Title, r.Description, toJSON(nonNil(r.RequiredSkills)), toJSON(nonNil(r.PreferredSkills)),
		r.MinExperienceYears, r.MaxExperienceYears, r.EducationLevel, toJSON(r.Location),
		nullFloat(r.Latitude), nullFloat(r.Longitude), r.RadiusKm, r.RemoteAllowed, r.Status, r.OwnerUserID,
		r.MatchThreshold, r.UpdatedAt, r.ID,
	))
}

// DeleteRequirement soft-deletes the requirement and drops its matches.
func (db *DB) DeleteRequirement(ctx context.Context, id string) error {
	now := utc(time.Now())
	return db.WithTx(ctx, func(tx *Tx) error {
		if err := expectOne(tx.exec(ctx, `UPDATE requirements SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)); err != nil {
			return err
		}
		_, err := tx.exec(ctx, `DELETE FROM customer_requirement_matches WHERE requirement_id = ?`, id)
		return err
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
