package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCandidate(t *testing.T, db *DB, first, last string, skills ...string) *Candidate {
	t.Helper()
	c := &Candidate{FirstName: first, LastName: last, Email: first + "@example.com", Skills: skills, ExperienceYears: 4}
	require.NoError(t, db.CreateCandidate(context.Background(), c))
	return c
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{" Go ", "go", "", "Kubernetes", "  machine   learning", "KUBERNETES"})
	assert.Equal(t, []string{"Go", "Kubernetes", "machine learning"}, got)
	assert.Equal(t, []string{}, NormalizeSkills(nil))
}

func TestCandidateJSONColumnsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lat, lng := 53.55, 9.99
	c := &Candidate{
		FirstName:      "Lea",
		LastName:       "Vogel",
		Skills:         []string{"Go", "go", "SQL"},
		EducationLevel: "master",
		Address:        Address{City: "Hamburg", Country: "DE"},
		Latitude:       &lat,
		Longitude:      &lng,
		Experience:     []WorkExperience{{Company: "Initech", Position: "Engineer", StartYear: 2019, Current: true}},
		Qualifications: QualificationProfile{Languages: []string{"de", "en"}},
	}
	require.NoError(t, db.CreateCandidate(ctx, c))

	got, err := db.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL"}, got.Skills)
	assert.Equal(t, "Hamburg", got.Address.City)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 53.55, *got.Latitude, 1e-9)
	require.Len(t, got.Experience, 1)
	assert.Equal(t, "Initech", got.Experience[0].Company)
	assert.Equal(t, []string{"de", "en"}, got.Qualifications.Languages)
	assert.Equal(t, []Document{}, got.Documents)
	assert.Equal(t, "Lea Vogel", got.FullName())
}

func TestListCandidatesSearchesSkills(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedCandidate(t, db, "Lea", "Vogel", "Go", "Kafka")
	seedCandidate(t, db, "Max", "Brandt", "Java")

	res, err := db.ListCandidates(ctx, CandidateFilter{Search: "kafka"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Lea", res[0].FirstName)

	res, err = db.ListCandidates(ctx, CandidateFilter{Search: "brandt"})
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestAppendDocumentMergesSkills(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := seedCandidate(t, db, "Lea", "Vogel", "Go")

	doc := Document{Name: "cv.pdf", FileType: "pdf", Path: "/tmp/cv.pdf", Size: 1200, UploadedAt: time.Now().UTC()}
	updated, err := db.AppendDocument(ctx, c.ID, doc, []string{"go", "Docker"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Docker"}, updated.Skills)
	require.Len(t, updated.Documents, 1)

	got, err := db.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Docker"}, got.Skills)
	assert.Equal(t, "cv.pdf", got.Documents[0].Name)

	_, err = db.AppendDocument(ctx, "missing", doc, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTalentPoolUpsertAndCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := seedCandidate(t, db, "Lea", "Vogel", "Go")

	e := &TalentPoolEntry{CandidateID: c.ID, Tags: []string{"backend"}, AddedBy: "u1"}
	require.NoError(t, db.AddToTalentPool(ctx, e))
	firstID := e.ID

	again := &TalentPoolEntry{CandidateID: c.ID, Tags: []string{"backend", "remote"}, Availability: "immediately"}
	require.NoError(t, db.AddToTalentPool(ctx, again))
	assert.Equal(t, firstID, again.ID, "re-adding keeps the entry")

	pool, err := db.ListTalentPool(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pool, 1)
	assert.Equal(t, []string{"backend", "remote"}, pool[0].Tags)
	require.NotNil(t, pool[0].Candidate)
	assert.Equal(t, "Vogel", pool[0].Candidate.LastName)

	require.NoError(t, db.DeleteCandidate(ctx, c.ID))
	pool, err = db.ListTalentPool(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pool)
}

func TestApplicationsRequireRequirement(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.CreateApplication(ctx, &Application{RequirementID: "missing", FirstName: "A"})
	assert.ErrorIs(t, err, ErrNotFound)

	c := seedCustomer(t, db, "Acme")
	r := seedRequirement(t, db, c.ID)
	a := &Application{RequirementID: r.ID, FirstName: "Ben", LastName: "Roth", Skills: []string{"Go"}}
	require.NoError(t, db.CreateApplication(ctx, a))
	assert.Equal(t, "received", a.Status)

	require.NoError(t, db.UpdateApplicationStatus(ctx, a.ID, "interview"))
	assert.ErrorIs(t, db.UpdateApplicationStatus(ctx, a.ID, "ghosted"), ErrInvalid)

	list, err := db.ListApplications(ctx, r.ID, "interview", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ben Roth", list[0].FullName())
}

func TestPostingPublishKeepsFirstTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, db, "Acme")
	r := seedRequirement(t, db, c.ID)

	p := &JobPosting{RequirementID: r.ID, Title: "Backend Engineer", DescriptionHTML: "<p>Join us</p>"}
	require.NoError(t, db.CreatePosting(ctx, p))
	assert.Equal(t, "draft", p.Status)

	require.NoError(t, db.UpdatePostingStatus(ctx, p.ID, "published"))
	got, err := db.GetPosting(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	first := *got.PublishedAt

	require.NoError(t, db.UpdatePostingStatus(ctx, p.ID, "published"))
	got, err = db.GetPosting(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(*got.PublishedAt))

	assert.ErrorIs(t, db.UpdatePostingStatus(ctx, p.ID, "live"), ErrInvalid)
}
