package matching

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/portal"
	"recruiting-ats/internal/storage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*storage.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *storage.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixture struct {
	db       *storage.DB
	matcher  *Matcher
	notifier *recordingNotifier
	req      *storage.Requirement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.NewDB("sqlite:" + filepath.Join(t.TempDir(), "match.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	ctx := context.Background()
	require.NoError(t, db.EnsureSchema(ctx))

	cust := &storage.Customer{Name: "Acme"}
	require.NoError(t, db.CreateCustomer(ctx, cust))
	req := &storage.Requirement{
		CustomerID:         cust.ID,
		Title:              "Go Developer",
		RequiredSkills:     []string{"Go", "PostgreSQL"},
		MinExperienceYears: 3,
		Location:           storage.Address{City: "Hamburg", Country: "DE"},
		OwnerUserID:        "owner",
	}
	require.NoError(t, db.CreateRequirement(ctx, req))

	n := &recordingNotifier{}
	m := NewMatcher(db, n, Config{Weights: DefaultWeights, DefaultThreshold: 60, NotifyScore: 80})
	return &fixture{db: db, matcher: m, notifier: n, req: req}
}

func (f *fixture) candidate(t *testing.T, first string, skills []string, years int, city string) *storage.Candidate {
	t.Helper()
	c := &storage.Candidate{FirstName: first, LastName: "Test", Skills: skills, ExperienceYears: years,
		Address: storage.Address{City: city, Country: "DE"}}
	require.NoError(t, f.db.CreateCandidate(context.Background(), c))
	return c
}

func TestMatchRequirementPersistsAboveThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	strong := f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")
	f.candidate(t, "Weak", []string{"Java"}, 1, "Munich")
	require.NoError(t, f.db.AddToTalentPool(ctx, &storage.TalentPoolEntry{CandidateID: strong.ID}))
	require.NoError(t, f.db.CreateApplication(ctx, &storage.Application{
		RequirementID: f.req.ID, FirstName: "Apply", LastName: "Now", Skills: []string{"Go"}, ExperienceYears: 3,
		Address: storage.Address{City: "Hamburg"},
	}))

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Scanned)
	assert.Equal(t, 60, rep.Threshold)
	require.Equal(t, 3, rep.Matched)
	assert.Equal(t, map[string]int{EntityCandidate: 1, EntityTalentPool: 1, EntityApplication: 1}, rep.BySource)
	assert.Equal(t, 100, rep.Results[0].Score)
	assert.True(t, rep.Results[0].IsNew)

	stored, err := f.db.ListMatches(ctx, storage.MatchFilter{RequirementID: f.req.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// Candidate and talent pool entry score 100, the application 80: all notify.
	assert.Equal(t, 3, f.notifier.count())
}

func TestRematchPreservesStatusAndDoesNotRenotify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	matchID := rep.Results[0].MatchID

	_, err = f.matcher.UpdateMatchStatus(ctx, matchID, "contacted")
	require.NoError(t, err)

	rep, err = f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, matchID, rep.Results[0].MatchID)
	assert.Equal(t, "contacted", rep.Results[0].Status)
	assert.False(t, rep.Results[0].IsNew)
	assert.Equal(t, 1, f.notifier.count())
}

func TestRematchDropsUntouchedMatchesBelowThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.candidate(t, "Fading", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	_, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)

	c.Skills = []string{"Cobol"}
	c.ExperienceYears = 0
	require.NoError(t, f.db.UpdateCandidate(ctx, c))

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Matched)
	assert.Equal(t, 1, rep.Removed)
}

func TestThresholdPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// skills 0.5, everything else 1.0: score 80.
	f.candidate(t, "Half", []string{"Go"}, 5, "Hamburg")

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{Threshold: 90})
	require.NoError(t, err)
	assert.Equal(t, 90, rep.Threshold)
	assert.Zero(t, rep.Matched)

	f.req.MatchThreshold = 75
	require.NoError(t, f.db.UpdateRequirement(ctx, f.req))
	rep, err = f.matcher.MatchRequirement(ctx, f.req.ID, Options{Threshold: 90})
	require.NoError(t, err)
	assert.Equal(t, 75, rep.Threshold, "requirement threshold wins")
	assert.Equal(t, 1, rep.Matched)
}

func TestMatchRequirementSourcesFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{Sources: []string{EntityApplication}})
	require.NoError(t, err)
	assert.Zero(t, rep.Scanned)

	_, err = f.matcher.MatchRequirement(ctx, "missing", Options{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMatchCandidateAgainstOpenRequirements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	res, err := f.matcher.MatchCandidate(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, f.req.ID, res[0].RequirementID)
	assert.Equal(t, EntityCandidate, res[0].EntityType)

	reports, err := f.matcher.MatchAllOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Matched)
}

func TestMatchCandidateSkipsInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	res, err := f.matcher.MatchCandidate(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, res, 1)

	c.Status = "inactive"
	require.NoError(t, f.db.UpdateCandidate(ctx, c))
	sent := f.notifier.count()

	res, err = f.matcher.MatchCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Equal(t, sent, f.notifier.count())

	stored, err := f.matcher.ListMatches(ctx, f.req.ID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, stored, "new matches of an inactive candidate are dropped")

	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Matched)
}

func TestUpdateMatchStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate(t, "Strong", []string{"Go", "PostgreSQL"}, 5, "Hamburg")
	rep, err := f.matcher.MatchRequirement(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	id := rep.Results[0].MatchID

	m, err := f.matcher.UpdateMatchStatus(ctx, id, "viewed")
	require.NoError(t, err)
	assert.Equal(t, "viewed", m.Status)

	_, err = f.matcher.UpdateMatchStatus(ctx, id, "new")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.matcher.UpdateMatchStatus(ctx, id, "hired")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.matcher.UpdateMatchStatus(ctx, id, "accepted")
	require.NoError(t, err)
	_, err = f.matcher.UpdateMatchStatus(ctx, id, "rejected")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	m, err = f.matcher.UpdateMatchStatus(ctx, id, "accepted")
	require.NoError(t, err, "same status is a no-op")
	assert.Equal(t, "accepted", m.Status)

	list, err := f.matcher.ListMatches(ctx, f.req.ID, "accepted", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition("new", "viewed"))
	assert.True(t, CanTransition("new", "contacted"))
	assert.True(t, CanTransition("contacted", "rejected"))
	assert.False(t, CanTransition("contacted", "viewed"))
	assert.False(t, CanTransition("rejected", "new"))
	assert.False(t, CanTransition("accepted", "rejected"))
}

type fakeSearcher struct {
	profiles []portal.Profile
	err      error
	queries  []portal.Query
}

func (f *fakeSearcher) SearchProfiles(_ context.Context, q portal.Query) ([]portal.Profile, error) {
	f.queries = append(f.queries, q)
	return f.profiles, f.err
}

func TestPortalMatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate(t, "Internal", []string{"Go", "PostgreSQL"}, 4, "Hamburg")

	searcher := &fakeSearcher{profiles: []portal.Profile{
		{ID: "ext-1", Name: "Portal Pro", Skills: []string{"go", "postgresql"}, ExperienceYears: 6, City: "Hamburg"},
		{ID: "ext-2", Name: "Portal Miss", Skills: []string{"PHP"}, City: "Berlin"},
		{Name: "no id"},
	}}
	pm := NewPortalMatcher(f.matcher, searcher)

	rep, err := pm.MatchRequirement(ctx, f.req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	require.Equal(t, 1, rep.Matched)
	assert.Equal(t, EntityPortal, rep.Results[0].EntityType)
	assert.Equal(t, SourcePortal, rep.Results[0].Source)
	assert.Equal(t, "Hamburg", searcher.queries[0].City)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, searcher.queries[0].Skills)

	combined, err := pm.Combined(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	assert.Len(t, combined.Results, 2)
	assert.Empty(t, combined.PortalError)

	matched, err := pm.SyncOpenRequirements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
}

func TestCombinedToleratesDisabledPortal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.candidate(t, "Internal", []string{"Go", "PostgreSQL"}, 4, "Hamburg")

	pm := NewPortalMatcher(f.matcher, &fakeSearcher{err: portal.ErrDisabled})
	combined, err := pm.Combined(ctx, f.req.ID, Options{})
	require.NoError(t, err)
	assert.Nil(t, combined.Portal)
	assert.NotEmpty(t, combined.PortalError)
	assert.Len(t, combined.Results, 1)

	_, err = pm.SyncOpenRequirements(ctx)
	assert.ErrorIs(t, err, portal.ErrDisabled)

	pm = NewPortalMatcher(f.matcher, &fakeSearcher{err: errors.New("boom")})
	_, err = pm.SyncOpenRequirements(ctx)
	assert.ErrorContains(t, err, "1 of 1 requirements failed")
}

func TestQueueRunsJobs(t *testing.T) {
	f := newFixture(t)
	c := f.candidate(t, "Queued", []string{"Go", "PostgreSQL"}, 5, "Hamburg")

	q := NewQueue(f.matcher, 4)
	q.Start(context.Background())
	assert.True(t, q.Enqueue(JobRequirement, f.req.ID))
	assert.True(t, q.Enqueue(JobCandidate, c.ID))
	q.Stop()

	matches, err := f.db.ListMatches(context.Background(), storage.MatchFilter{RequirementID: f.req.ID})
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	var nilQueue *Queue
	assert.False(t, nilQueue.Enqueue(JobRequirement, "x"))
}

type invalidatingSearcher struct {
	fakeSearcher
	invalidated int
}

func (s *invalidatingSearcher) InvalidateCache(context.Context) { s.invalidated++ }

func TestSyncPortalInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	s := &invalidatingSearcher{fakeSearcher: fakeSearcher{profiles: []portal.Profile{
		{ID: "ext-1", Name: "Portal Pro", Skills: []string{"Go", "PostgreSQL"}, ExperienceYears: 6, City: "Hamburg"},
	}}}
	pm := NewPortalMatcher(f.matcher, s)

	matched, err := pm.SyncPortal(context.Background(), "stepstone")
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, 1, s.invalidated)
}
