package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"recruiting-ats/internal/storage"
)

// Entity types a requirement is matched against.
const (
	EntityCandidate   = "candidate"
	EntityApplication = "application"
	EntityTalentPool  = "talent_pool"
	EntityPortal      = "portal"
)

const (
	SourceInternal = "internal"
	SourcePortal   = "portal"
)

var (
	ErrInvalidStatus     = errors.New("invalid match status")
	ErrInvalidTransition = errors.New("match status transition not allowed")
)

// Notifier receives match notifications. notify.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n *storage.Notification) error
}

type Config struct {
	Weights          Weights
	DefaultThreshold int // used when neither the requirement nor the call sets one
	NotifyScore      int // new matches at or above this score notify the requirement owner
}

// Matcher scores requirements against internal candidates, applications and talent pool
// entries and persists the results.
type Matcher struct {
	db       *storage.DB
	notifier Notifier
	cfg      Config
}

func NewMatcher(db *storage.DB, notifier Notifier, cfg Config) *Matcher {
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 60
	}
	if cfg.NotifyScore <= 0 {
		cfg.NotifyScore = 80
	}
	return &Matcher{db: db, notifier: notifier, cfg: cfg}
}

type Options struct {
	Threshold int      // 0 = requirement or service default
	Sources   []string // entity types to scan; empty = all internal ones
}

type MatchResult struct {
	MatchID       string    `json:"match_id"`
	RequirementID string    `json:"requirement_id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	DisplayName   string    `json:"display_name"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	IsNew         bool      `json:"is_new"`
	Score         int       `json:"score"`
	Breakdown     Breakdown `json:"breakdown"`
	MatchedSkills []string  `json:"matched_skills"`
	MissingSkills []string  `json:"missing_skills"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
}

type Report struct {
	RequirementID string         `json:"requirement_id"`
	Threshold     int            `json:"threshold"`
	Scanned       int            `json:"scanned"`
	Matched       int            `json:"matched"`
	Removed       int            `json:"removed"`
	BySource      map[string]int `json:"by_source"`
	AverageScore  float64        `json:"average_score"`
	Results       []MatchResult  `json:"results"`
	Duration      string         `json:"duration"`
}

// scored is one profile waiting to be persisted.
type scored struct {
	entityType, entityID, name, source string
	result                             Result
}

// RequirementProfileOf converts a stored requirement into a scoring input.
func RequirementProfileOf(r *storage.Requirement) RequirementProfile {
	return RequirementProfile{
		RequiredSkills:     r.RequiredSkills,
		PreferredSkills:    r.PreferredSkills,
		MinExperienceYears: r.MinExperienceYears,
		MaxExperienceYears: r.MaxExperienceYears,
		EducationLevel:     r.EducationLevel,
		Location: Location{
			City:       r.Location.City,
			PostalCode: r.Location.PostalCode,
			Country:    r.Location.Country,
			Latitude:   r.Latitude,
			Longitude:  r.Longitude,
		},
		RadiusKm:      r.RadiusKm,
		RemoteAllowed: r.RemoteAllowed,
	}
}

func addressLocation(a storage.Address, lat, lng *float64) Location {
	return Location{City: a.City, PostalCode: a.PostalCode, Country: a.Country, Latitude: lat, Longitude: lng}
}

func CandidateProfile(c *storage.Candidate) Profile {
	return Profile{
		Skills:          c.Skills,
		ExperienceYears: c.ExperienceYears,
		EducationLevel:  c.EducationLevel,
		Location:        addressLocation(c.Address, c.Latitude, c.Longitude),
	}
}

func ApplicationProfile(a *storage.Application) Profile {
	return Profile{
		Skills:          a.Skills,
		ExperienceYears: a.ExperienceYears,
		EducationLevel:  a.EducationLevel,
		Location:        addressLocation(a.Address, a.Latitude, a.Longitude),
	}
}

// threshold resolves the cut-off: requirement, then call option, then service default.
func (m *Matcher) threshold(r *storage.Requirement, opt int) int {
	switch {
	case r.MatchThreshold > 0:
		return r.MatchThreshold
	case opt > 0:
		return opt
	}
	return m.cfg.DefaultThreshold
}

func wants(sources []string, entityType string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if s == entityType {
			return true
		}
	}
	return false
}

// MatchRequirement scores every active candidate, the requirement's applications and the
// talent pool, and upserts the matches at or above the threshold.
func (m *Matcher) MatchRequirement(ctx context.Context, requirementID string, opts Options) (*Report, error) {
	start := time.Now()
	req, err := m.db.GetRequirement(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("load requirement: %w", err)
	}

	var (
		candidates   []*storage.Candidate
		applications []*storage.Application
		pool         []*storage.TalentPoolEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	if wants(opts.Sources, EntityCandidate) {
		g.Go(func() error {
			var err error
			candidates, err = m.db.ListCandidates(gctx, storage.CandidateFilter{Status: "active", Limit: 5000})
			return err
		})
	}
	if wants(opts.Sources, EntityApplication) {
		g.Go(func() error {
			var err error
			applications, err = m.db.ListApplications(gctx, requirementID, "", 5000)
			return err
		})
	}
	if wants(opts.Sources, EntityTalentPool) {
		g.Go(func() error {
			var err error
			pool, err = m.db.ListTalentPool(gctx, 5000)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}

	rp := RequirementProfileOf(req)
	var all []scored
	for _, c := range candidates {
		all = append(all, scored{EntityCandidate, c.ID, c.FullName(), SourceInternal, Score(rp, CandidateProfile(c), m.cfg.Weights)})
	}
	for _, a := range applications {
		if a.Status == "rejected" {
			continue
		}
		all = append(all, scored{EntityApplication, a.ID, a.FullName(), SourceInternal, Score(rp, ApplicationProfile(a), m.cfg.Weights)})
	}
	for _, e := range pool {
		if e.Candidate == nil {
			continue
		}
		all = append(all, scored{EntityTalentPool, e.ID, e.Candidate.FullName(), SourceInternal, Score(rp, CandidateProfile(e.Candidate), m.cfg.Weights)})
	}

	report, err := m.persist(ctx, req, m.threshold(req, opts.Threshold), all)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start).String()
	log.Printf("[Matcher] requirement %s: %d scanned, %d matched (threshold %d) in %v",
		req.ID, report.Scanned, report.Matched, report.Threshold, time.Since(start))
	return report, nil
}

// persist upserts results at or above threshold, drops untouched matches that fell below it
// and notifies the owner about new strong matches.
func (m *Matcher) persist(ctx context.Context, req *storage.Requirement, threshold int, all []scored) (*Report, error) {
	report := &Report{
		RequirementID: req.ID,
		Threshold:     threshold,
		Scanned:       len(all),
		BySource:      map[string]int{},
		Results:       []MatchResult{},
	}
	total := 0
	for _, s := range all {
		if s.result.Score < threshold {
			removed, err := m.db.DeleteUntouchedMatch(ctx, req.ID, s.entityType, s.entityID)
			if err != nil {
				return nil, fmt.Errorf("drop stale match: %w", err)
			}
			if removed {
				report.Removed++
			}
			continue
		}

		row := &storage.RequirementMatch{
			RequirementID: req.ID,
			EntityType:    s.entityType,
			EntityID:      s.entityID,
			DisplayName:   s.name,
			MatchScore:    s.result.Score,
			Breakdown:     s.result.Details(),
			Source:        s.source,
		}
		created, err := m.db.UpsertMatch(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("save match: %w", err)
		}

		report.Results = append(report.Results, MatchResult{
			MatchID:       row.ID,
			RequirementID: req.ID,
			EntityType:    s.entityType,
			EntityID:      s.entityID,
			DisplayName:   s.name,
			Source:        s.source,
			Status:        row.Status,
			IsNew:         created,
			Score:         s.result.Score,
			Breakdown:     s.result.Breakdown,
			MatchedSkills: s.result.MatchedSkills,
			MissingSkills: s.result.MissingSkills,
			DistanceKm:    s.result.DistanceKm,
		})
		report.BySource[s.entityType]++
		total += s.result.Score

		if created && s.result.Score >= m.cfg.NotifyScore {
			m.notifyOwner(ctx, req, row)
		}
	}

	report.Matched = len(report.Results)
	if report.Matched > 0 {
		report.AverageScore = float64(total) / float64(report.Matched)
	}
	sortResults(report.Results)
	return report, nil
}

func (m *Matcher) notifyOwner(ctx context.Context, req *storage.Requirement, match *storage.RequirementMatch) {
	if m.notifier == nil || req.OwnerUserID == "" {
		return
	}
	err := m.notifier.Notify(ctx, &storage.Notification{
		UserID:  req.OwnerUserID,
		Type:    "match",
		Title:   fmt.Sprintf("New %d%% match for %s", match.MatchScore, req.Title),
		Message: fmt.Sprintf("%s (%s) matches requirement %q", match.DisplayName, match.EntityType, req.Title),
		Data: map[string]any{
			"requirement_id": req.ID,
			"match_id":       match.ID,
			"entity_type":    match.EntityType,
			"entity_id":      match.EntityID,
			"score":          match.MatchScore,
		},
	})
	if err != nil {
		log.Printf("[Matcher] notify owner %s: %v", req.OwnerUserID, err)
	}
}

func sortResults(rs []MatchResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].DisplayName < rs[j].DisplayName
	})
}

// MatchCandidate scores one candidate against every open requirement. Candidates that are not
// active get no matches and lose the ones nobody has worked on yet.
func (m *Matcher) MatchCandidate(ctx context.Context, candidateID string) ([]MatchResult, error) {
	c, err := m.db.GetCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("load candidate: %w", err)
	}
	if c.Status != "active" {
		n, err := m.db.DeleteUntouchedEntityMatches(ctx, EntityCandidate, c.ID)
		if err != nil {
			return nil, fmt.Errorf("drop matches: %w", err)
		}
		log.Printf("[Matcher] candidate %s is %s: skipped, dropped %d new matches", c.ID, c.Status, n)
		return []MatchResult{}, nil
	}
	reqs, err := m.db.ListOpenRequirements(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}

	profile := CandidateProfile(c)
	results := []MatchResult{}
	for _, r := range reqs {
		s := scored{EntityCandidate, c.ID, c.FullName(), SourceInternal, Score(RequirementProfileOf(r), profile, m.cfg.Weights)}
		rep, err := m.persist(ctx, r, m.threshold(r, 0), []scored{s})
		if err != nil {
			return nil, err
		}
		results = append(results, rep.Results...)
	}
	sortResults(results)
	log.Printf("[Matcher] candidate %s: matched %d of %d open requirements", c.ID, len(results), len(reqs))
	return results, nil
}

// MatchAllOpen rematches every open requirement. A failing requirement is logged and skipped.
func (m *Matcher) MatchAllOpen(ctx context.Context, limit int) ([]*Report, error) {
	reqs, err := m.db.ListOpenRequirements(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load requirements: %w", err)
	}
	reports := make([]*Report, 0, len(reqs))
	for _, r := range reqs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := m.MatchRequirement(ctx, r.ID, Options{})
		if err != nil {
			log.Printf("[Matcher] rematch %s failed: %v", r.ID, err)
			continue
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

func (m *Matcher) ListMatches(ctx context.Context, requirementID, status string, minScore int) ([]*storage.RequirementMatch, error) {
	if status != "" && !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return m.db.ListMatches(ctx, storage.MatchFilter{RequirementID: requirementID, Status: status, MinScore: minScore})
}

// Match statuses in pipeline order.
var statusOrder = map[string]int{"new": 0, "viewed": 1, "contacted": 2, "accepted": 3, "rejected": 4}

func validStatus(s string) bool {
	_, ok := statusOrder[s]
	return ok
}

// CanTransition reports whether a match may move from one status to another. Statuses only
// move forward along new, viewed, contacted, accepted; any open match may be rejected;
// accepted and rejected are final.
func CanTransition(from, to string) bool {
	if from == "accepted" || from == "rejected" {
		return false
	}
	if to == "rejected" {
		return true
	}
	return statusOrder[to] > statusOrder[from]
}

// UpdateMatchStatus moves a match to status. Setting the current status again is a no-op.
func (m *Matcher) UpdateMatchStatus(ctx context.Context, matchID, status string) (*storage.RequirementMatch, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	match, err := m.db.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status == status {
		return match, nil
	}
	if !CanTransition(match.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, match.Status, status)
	}
	if err := m.db.SetMatchStatus(ctx, matchID, match.Status, status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	return m.db.GetMatch(ctx, matchID)
}
