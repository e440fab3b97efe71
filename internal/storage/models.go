package storage

import "time"

// Address is stored as a JSON text column on customers, requirements, candidates and applications.
type Address struct {
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

type Customer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Industry  string     `json:"industry,omitempty"`
	Website   string     `json:"website,omitempty"`
	Address   Address    `json:"address"`
	Status    string     `json:"status"` // prospect, active, inactive
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type Contact struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Position   string    `json:"position,omitempty"`
	IsPrimary  bool      `json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Requirement is an open position at a customer that candidates are matched against.
type Requirement struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	RequiredSkills     []string   `json:"required_skills"`
	PreferredSkills    []string   `json:"preferred_skills"`
	MinExperienceYears int        `json:"min_experience_years"`
	MaxExperienceYears int        `json:"max_experience_years"` // 0 = no upper bound
	EducationLevel     string     `json:"education_level,omitempty"`
	Location           Address    `json:"location"`
	Latitude           *float64   `json:"latitude,omitempty"`
	Longitude          *float64   `json:"longitude,omitempty"`
	RadiusKm           float64    `json:"radius_km"`
	RemoteAllowed      bool       `json:"remote_allowed"`
	Status             string     `json:"status"` // open, on_hold, filled, closed
	OwnerUserID        string     `json:"owner_user_id,omitempty"`
	MatchThreshold     int        `json:"match_threshold"` // 0 = service default
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

type WorkExperience struct {
	Company   string `json:"company"`
	Position  string `json:"position"`
	StartYear int    `json:"start_year,omitempty"`
	EndYear   int    `json:"end_year,omitempty"`
	Current   bool   `json:"current,omitempty"`
}

type Document struct {
	Name       string    `json:"name"`
	FileType   string    `json:"file_type"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	TextLength int       `json:"text_length"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type QualificationProfile struct {
	Certificates []string `json:"certificates,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Licenses     []string `json:"licenses,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

type Candidate struct {
	ID              string               `json:"id"`
	FirstName       string               `json:"first_name"`
	LastName        string               `json:"last_name"`
	Email           string               `json:"email,omitempty"`
	Phone           string               `json:"phone,omitempty"`
	Skills          []string             `json:"skills"`
	ExperienceYears int                  `json:"experience_years"`
	EducationLevel  string               `json:"education_level,omitempty"`
	Address         Address              `json:"address"`
	Latitude        *float64             `json:"latitude,omitempty"`
	Longitude       *float64             `json:"longitude,omitempty"`
	Experience      []WorkExperience     `json:"experience"`
	Documents       []Document           `json:"documents"`
	Qualifications  QualificationProfile `json:"qualifications"`
	Status          string               `json:"status"` // active, placed, inactive
	Source          string               `json:"source,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	DeletedAt       *time.Time           `json:"deleted_at,omitempty"`
}

func (c *Candidate) FullName() string {
	return joinName(c.FirstName, c.LastName)
}

// Application is an inbound application for a requirement; the applicant profile is a snapshot.
type Application struct {
	ID              string    `json:"id"`
	RequirementID   string    `json:"requirement_id"`
	CandidateID     string    `json:"candidate_id,omitempty"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email,omitempty"`
	Skills          []string  `json:"skills"`
	ExperienceYears int       `json:"experience_years"`
	EducationLevel  string    `json:"education_level,omitempty"`
	Address         Address   `json:"address"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	CoverLetter     string    `json:"cover_letter,omitempty"`
	Status          string    `json:"status"` // received, screening, interview, offer, hired, rejected
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a *Application) FullName() string {
	return joinName(a.FirstName, a.LastName)
}

// TalentPoolEntry parks a candidate that is not tied to an open requirement.
type TalentPoolEntry struct {
	ID           string    `json:"id"`
	CandidateID  string    `json:"candidate_id"`
	Tags         []string  `json:"tags"`
	Availability string    `json:"availability,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	AddedBy      string    `json:"added_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Candidate *Candidate `json:"candidate,omitempty"`
}

type JobPosting struct {
	ID              string     `json:"id"`
	RequirementID   string     `json:"requirement_id"`
	Title           string     `json:"title"`
	DescriptionHTML string     `json:"description_html"`
	URL             string     `json:"url,omitempty"`
	Status          string     `json:"status"` // draft, published, archived
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type EditingLock struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name,omitempty"`
	LockedAt   time.Time `json:"locked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `json:"is_active"`
}

// RequirementMatch is a persisted row of customer_requirement_matches.
type RequirementMatch struct {
	ID            string         `json:"id"`
	RequirementID string         `json:"requirement_id"`
	EntityType    string         `json:"entity_type"` // candidate, application, talent_pool, portal
	EntityID      string         `json:"entity_id"`
	DisplayName   string         `json:"display_name,omitempty"`
	MatchScore    int            `json:"match_score"`
	Breakdown     map[string]any `json:"breakdown"`
	Source        string         `json:"source"` // internal, portal
	Status        string         `json:"status"` // new, viewed, contacted, rejected, accepted
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type ScheduledTask struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"` // pending, running, completed, failed, cancelled
	Priority    int        `json:"priority"`
	RunAt       time.Time  `json:"run_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PipelineItem is a queued external posting awaiting dispatch.
type PipelineItem struct {
	ID           string     `json:"id"`
	PostingID    string     `json:"posting_id"`
	Channel      string     `json:"channel"`
	Content      string     `json:"content"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Priority     int        `json:"priority"`
	Status       string     `json:"status"` // queued, processing, published, failed, cancelled
	Attempts     int        `json:"attempts"`
	ExternalID   string     `json:"external_id,omitempty"`
	Error        string     `json:"error,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type SyncSettings struct {
	Portal          string     `json:"portal"`
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt      *time.Time `json:"next_sync_at,omitempty"`
	LastStatus      string     `json:"last_status,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
