package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CandidateFilter struct {
	Search string
	Status string
	Limit  int
}

func validCandidateStatus(s string) bool {
	switch s {
	case "active", "placed", "inactive":
		return true
	}
	return false
}

func validateCandidate(c *Candidate) error {
	if strings.TrimSpace(c.FirstName) == "" && strings.TrimSpace(c.LastName) == "" {
		return fmt.Errorf("%w: candidate name is required", ErrInvalid)
	}
	if !validCandidateStatus(c.Status) {
		return fmt.Errorf("%w: candidate status %q", ErrInvalid, c.Status)
	}
	if c.ExperienceYears < 0 {
		return fmt.Errorf("%w: experience years must not be negative", ErrInvalid)
	}
	return nil
}

func (db *DB) CreateCandidate(ctx context.Context, c *Candidate) error {
	if c.Status == "" {
		c.Status = "active"
	}
	if err := validateCandidate(c); err != nil {
		return err
	}
	now := utc(time.Now())
	c.ID = uuid.New().String()
	c.CreatedAt, c.UpdatedAt = now, now
	c.Skills = NormalizeSkills(c.Skills)
	if c.Experience == nil {
		c.Experience = []WorkExperience{}
	}
	if c.Documents == nil {
		c.Documents = []Document{}
	}

	_, err := db.exec(ctx, `
		INSERT INTO candidates (id, first_name, last_name, email, phone, skills, experience_years, education_level,
			address, latitude, longitude, experience, documents, qualifications, status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, toJSON(c.Skills), c.ExperienceYears, c.EducationLevel,
		toJSON(c.Address), nullFloat(c.Latitude), nullFloat(c.Longitude), toJSON(c.Experience), toJSON(c.Documents),
		toJSON(c.Qualifications), c.Status, c.Source, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const candidateColumns = `id, first_name, last_name, email, phone, skills, experience_years, education_level,
	address, latitude, longitude, experience, documents, qualifications, status, source, created_at, updated_at`

func scanCandidate(row interface{ Scan(...any) error }) (*Candidate, error) {
	c := &Candidate{}
	var skills, address, experience, documents, qualifications string
	var lat, lng sql.NullFloat64
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &skills, &c.ExperienceYears, &c.EducationLevel,
		&address, &lat, &lng, &experience, &documents, &qualifications, &c.Status, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fromJSON(skills, &c.Skills)
	fromJSON(address, &c.Address)
	fromJSON(experience, &c.Experience)
	fromJSON(documents, &c.Documents)
	fromJSON(qualifications, &c.Qualifications)
	c.Skills = nonNil(c.Skills)
	if c.Experience == nil {
		c.Experience = []WorkExperience{}
	}
	if c.Documents == nil {
		c.Documents = []Document{}
	}
	c.Latitude, c.Longitude = floatPtr(lat), floatPtr(lng)
	return c, nil
}

func (db *DB) GetCandidate(ctx context.Context, id string) (*Candidate, error) {
	c, err := scanCandidate(db.queryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ? AND deleted_at IS NULL`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCandidates searches by name, email or skills using case-insensitive LIKE.
func (db *DB) ListCandidates(ctx context.Context, f CandidateFilter) ([]*Candidate, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, "(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(skills) LIKE ?)")
		args = append(args, p, p, p, p)
	}
	args = append(args, clampLimit(f.Limit, 100, 5000))

	rows, err := db.query(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE `+strings.Join(where, " AND ")+` ORDER BY last_name, first_name LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (db *DB) UpdateCandidate(ctx context.Context, c *Candidate) error {
	if err := validateCandidate(c); err != nil {
		return err
	}
	c.UpdatedAt = utc(time.Now())
	c.Skills = NormalizeSkills(c.Skills)
	return expectOne(db.exec(ctx, `
		UPDATE candidates SET first_name = ?, last_name = ?, email = ?, phone = ?, skills = ?, experience_years = ?,
			education_level = ?, address = ?, latitude = ?, longitude = ?, experience = ?, qualifications = ?,
			status = ?, source = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		c.FirstName, c.LastName, c.Email, c.Phone, toJSON(c.Skills), c.ExperienceYears,
		c.EducationLevel, toJSON(c.Address), nullFloat(c.Latitude), nullFloat(c.Longitude), toJSON(nonNilExperience(c.Experience)),
		toJSON(c.Qualifications), c.Status, c.Source, c.UpdatedAt, c.ID,
	))
}

// DeleteCandidate soft-deletes the candidate, drops it from the talent pool and removes its matches.
func (db *DB) DeleteCandidate(ctx context.Context, id string) error {
	now := utc(time.Now())
	return db.WithTx(ctx, func(tx *Tx) error {
		if err := expectOne(tx.exec(ctx, `UPDATE candidates SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, now, now, id)); err != nil {
			return err
		}
		if _, err := tx.exec(ctx, `
			DELETE FROM customer_requirement_matches
			WHERE (entity_type = 'candidate' AND entity_id = ?)
			   OR (entity_type = 'talent_pool' AND entity_id IN (SELECT id FROM talent_pool_entries WHERE candidate_id = ?))`, id, id); err != nil {
			return err
		}
		_, err := tx.exec(ctx, `DELETE FROM talent_pool_entries WHERE candidate_id = ?`, id)
		return err
	})
}

// AppendDocument adds an uploaded document to the candidate and merges the extracted skills.
func (db *DB) AppendDocument(ctx context.Context, candidateID string, doc Document, skills []string) (*Candidate, error) {
	var updated *Candidate
	err := db.WithTx(ctx, func(tx *Tx) error {
		c, err := scanCandidate(tx.queryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = ? AND deleted_at IS NULL`, candidateID))
		if err != nil {
			return notFound(err)
		}
		c.Documents = append(c.Documents, doc)
		c.Skills = NormalizeSkills(append(c.Skills, skills...))
		c.UpdatedAt = utc(time.Now())
		if _, err := tx.exec(ctx, `UPDATE candidates SET documents = ?, skills = ?, updated_at = ? WHERE id = ?`,
			toJSON(c.Documents), toJSON(c.Skills), c.UpdatedAt, c.ID); err != nil {
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

// NormalizeSkills trims, drops empties and de-duplicates case-insensitively, keeping first spelling.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		t := strings.Join(strings.Fields(s), " ")
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

func nonNilExperience(e []WorkExperience) []WorkExperience {
	if e == nil {
		return []WorkExperience{}
	}
	return e
}

// Applications

func validApplicationStatus(s string) bool {
	switch s {
	case "received", "screening", "interview", "offer", "hired", "rejected":
		return true
	}
	return false
}

func (db *DB) CreateApplication(ctx context.Context, a *Application) error {
	if strings.TrimSpace(a.FirstName) == "" && strings.TrimSpace(a.LastName) == "" {
		return fmt.Errorf("%w: applicant name is required", ErrInvalid)
	}
	if a.Status == "" {
		a.Status = "received"
	}
	if !validApplicationStatus(a.Status) {
		return fmt.Errorf("%w: application status %q", ErrInvalid, a.Status)
	}
	if _, err := db.GetRequirement(ctx, a.RequirementID); err != nil {
		return fmt.Errorf("requirement %s: %w", a.RequirementID, err)
	}
	now := utc(time.Now())
	a.ID = uuid.New().String()
	a.CreatedAt, a.UpdatedAt = now, now
	a.Skills = NormalizeSkills(a.Skills)

	_, err := db.exec(ctx, `
		INSERT INTO applications (id, requirement_id, candidate_id, first_name, last_name, email, skills, experience_years,
			education_level, address, latitude, longitude, cover_letter, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequirementID, a.CandidateID, a.FirstName, a.LastName, a.Email, toJSON(a.Skills), a.ExperienceYears,
		a.EducationLevel, toJSON(a.Address), nullFloat(a.Latitude), nullFloat(a.Longitude), a.CoverLetter, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

const applicationColumns = `id, requirement_id, candidate_id, first_name, last_name, email, skills, experience_years,
	education_level, address, latitude, longitude, cover_letter, status, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*Application, error) {
	a := &Application{}
	var skills, address string
	var lat, lng sql.NullFloat64
	err := row.Scan(&a.ID, &a.RequirementID, &a.CandidateID, &a.FirstName, &a.LastName, &a.Email, &skills, &a.ExperienceYears,
		&a.EducationLevel, &address, &lat, &lng, &a.CoverLetter, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	fromJSON(skills, &a.Skills)
	fromJSON(address, &a.Address)
	a.Skills = nonNil(a.Skills)
	a.Latitude, a.Longitude = floatPtr(lat), floatPtr(lng)
	return a, nil
}

func (db *DB) GetApplication(ctx context.Context, id string) (*Application, error) {
	a, err := scanApplication(db.queryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (db *DB) ListApplications(ctx context.Context, requirementID, status string, limit int) ([]*Application, error) {
	where := []string{"1 = 1"}
	var args []any
	if requirementID != "" {
		where = append(where, "requirement_id = ?")
		args = append(args, requirementID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	args = append(args, clampLimit(limit, 100, 5000))

	rows, err := db.query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (db *DB) UpdateApplicationStatus(ctx context.Context, id, status string) error {
	if !validApplicationStatus(status) {
		return fmt.Errorf("%w: application status %q", ErrInvalid, status)
	}
	return expectOne(db.exec(ctx, `UPDATE applications SET status = ?, updated_at = ? WHERE id = ?`, status, utc(time.Now()), id))
}

// Talent pool

func (db *DB) AddToTalentPool(ctx context.Context, e *TalentPoolEntry) error {
	c, err := db.GetCandidate(ctx, e.CandidateID)
	if err != nil {
		return fmt.Errorf("candidate %s: %w", e.CandidateID, err)
	}
	now := utc(time.Now())
	e.ID = uuid.New().String()
	e.CreatedAt, e.UpdatedAt = now, now
	e.Tags = NormalizeSkills(e.Tags)

	// Re-adding a candidate refreshes the existing entry.
	row := db.queryRow(ctx, `
		INSERT INTO talent_pool_entries (id, candidate_id, tags, availability, notes, added_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (candidate_id) DO UPDATE SET tags = excluded.tags, availability = excluded.availability,
			notes = excluded.notes, updated_at = excluded.updated_at
		RETURNING id`,
		e.ID, e.CandidateID, toJSON(e.Tags), e.Availability, e.Notes, e.AddedBy, e.CreatedAt, e.UpdatedAt,
	)
	newID := e.ID
	if err := row.Scan(&e.ID); err != nil {
		return err
	}
	if e.ID != newID {
		if err := db.queryRow(ctx, `SELECT created_at FROM talent_pool_entries WHERE id = ?`, e.ID).Scan(&e.CreatedAt); err != nil {
			return err
		}
	}
	e.Candidate = c
	return nil
}

// ListTalentPool returns entries joined with their (non-deleted) candidate profile.
func (db *DB) ListTalentPool(ctx context.Context, limit int) ([]*TalentPoolEntry, error) {
	rows, err := db.query(ctx, `
		SELECT t.id, t.candidate_id, t.tags, t.availability, t.notes, t.added_by, t.created_at, t.updated_at,
			c.id, c.first_name, c.last_name, c.email, c.phone, c.skills, c.experience_years, c.education_level,
			c.address, c.latitude, c.longitude, c.experience, c.documents, c.qualifications, c.status, c.source,
			c.created_at, c.updated_at
		FROM talent_pool_entries t
		JOIN candidates c ON c.id = t.candidate_id AND c.deleted_at IS NULL
		ORDER BY t.updated_at DESC
		LIMIT ?`, clampLimit(limit, 100, 5000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*TalentPoolEntry{}
	for rows.Next() {
		e := &TalentPoolEntry{}
		var tags string
		c := &Candidate{}
		var skills, address, experience, documents, qualifications string
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.CandidateID, &tags, &e.Availability, &e.Notes, &e.AddedBy, &e.CreatedAt, &e.UpdatedAt,
			&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &skills, &c.ExperienceYears, &c.EducationLevel,
			&address, &lat, &lng, &experience, &documents, &qualifications, &c.Status, &c.Source,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		fromJSON(tags, &e.Tags)
		e.Tags = nonNil(e.Tags)
		fromJSON(skills, &c.Skills)
		fromJSON(address, &c.Address)
		fromJSON(experience, &c.Experience)
		fromJSON(documents, &c.Documents)
		fromJSON(qualifications, &c.Qualifications)
		c.Skills = nonNil(c.Skills)
		c.Latitude, c.Longitude = floatPtr(lat), floatPtr(lng)
		e.Candidate = c
		res = append(res, e)
	}
	return res, rows.Err()
}

func (db *DB) RemoveFromTalentPool(ctx context.Context, id string) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		if err := expectOne(tx.exec(ctx, `DELETE FROM talent_pool_entries WHERE id = ?`, id)); err != nil {
			return err
		}
		_, err := tx.exec(ctx, `DELETE FROM customer_requirement_matches WHERE entity_type = 'talent_pool' AND entity_id = ?`, id)
		return err
	})
}
