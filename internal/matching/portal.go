package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"recruiting-ats/internal/portal"
)

// ProfileSearcher fetches external profiles. *portal.Client satisfies it.
type ProfileSearcher interface {
	SearchProfiles(ctx context.Context, q portal.Query) ([]portal.Profile, error)
}

// PortalMatcher scores external portal profiles with the same rules as internal candidates.
type PortalMatcher struct {
	matcher *Matcher
	portal  ProfileSearcher
	limit   int
}

func NewPortalMatcher(m *Matcher, searcher ProfileSearcher) *PortalMatcher {
	return &PortalMatcher{matcher: m, portal: searcher, limit: 50}
}

func PortalProfile(p portal.Profile) Profile {
	return Profile{
		Skills:          p.Skills,
		ExperienceYears: p.ExperienceYears,
		EducationLevel:  p.EducationLevel,
		Location: Location{
			City:       p.City,
			PostalCode: p.PostalCode,
			Country:    p.Country,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
		},
	}
}

// MatchRequirement searches the portal for the requirement's skills and city, then persists
// matches with entity type and source "portal".
func (pm *PortalMatcher) MatchRequirement(ctx context.Context, requirementID string) (*Report, error) {
	start := time.Now()
	req, err := pm.matcher.db.GetRequirement(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("load requirement: %w", err)
	}

	q := portal.Query{
		Skills: append(append([]string{}, req.RequiredSkills...), req.PreferredSkills...),
		Limit:  pm.limit,
	}
	if !req.RemoteAllowed {
		q.City = req.Location.City
	}
	profiles, err := pm.portal.SearchProfiles(ctx, q)
	if err != nil {
		return nil, err
	}

	rp := RequirementProfileOf(req)
	all := make([]scored, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		all = append(all, scored{EntityPortal, p.ID, p.Name, SourcePortal, Score(rp, PortalProfile(p), pm.matcher.cfg.Weights)})
	}

	report, err := pm.matcher.persist(ctx, req, pm.matcher.threshold(req, 0), all)
	if err != nil {
		return nil, err
	}
	report.Duration = time.Since(start).String()
	log.Printf("[PortalMatcher] requirement %s: %d profiles, %d matched", req.ID, report.Scanned, report.Matched)
	return report, nil
}

type CombinedReport struct {
	RequirementID string        `json:"requirement_id"`
	Internal      *Report       `json:"internal"`
	Portal        *Report       `json:"portal,omitempty"`
	PortalError   string        `json:"portal_error,omitempty"`
	Results       []MatchResult `json:"results"`
}

// Combined runs internal and portal matching and merges the results by score. A disabled or
// failing portal leaves only the internal results and records the reason.
func (pm *PortalMatcher) Combined(ctx context.Context, requirementID string, opts Options) (*CombinedReport, error) {
	internal, err := pm.matcher.MatchRequirement(ctx, requirementID, opts)
	if err != nil {
		return nil, err
	}
	out := &CombinedReport{RequirementID: requirementID, Internal: internal}
	out.Results = append(out.Results, internal.Results...)

	ext, err := pm.MatchRequirement(ctx, requirementID)
	switch {
	case err == nil:
		out.Portal = ext
		out.Results = append(out.Results, ext.Results...)
	case errors.Is(err, portal.ErrDisabled):
		out.PortalError = err.Error()
	default:
		log.Printf("[PortalMatcher] requirement %s: portal search failed: %v", requirementID, err)
		out.PortalError = err.Error()
	}
	if out.Results == nil {
		out.Results = []MatchResult{}
	}
	sortResults(out.Results)
	return out, nil
}

// SyncOpenRequirements runs portal matching for every open requirement, used by portal sync.
func (pm *PortalMatcher) SyncOpenRequirements(ctx context.Context) (matched int, err error) {
	reqs, err := pm.matcher.db.ListOpenRequirements(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load requirements: %w", err)
	}
	var failures int
	var lastErr error
	for _, r := range reqs {
		rep, err := pm.MatchRequirement(ctx, r.ID)
		if err != nil {
			if errors.Is(err, portal.ErrDisabled) {
				return matched, err
			}
			failures++
			lastErr = err
			continue
		}
		matched += rep.Matched
	}
	if failures > 0 {
		return matched, fmt.Errorf("%d of %d requirements failed: %w", failures, len(reqs), lastErr)
	}
	return matched, nil
}

type cacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// SyncPortal drops cached portal profiles and rematches every open requirement against fresh
// ones. The portal name is only used for logging: a single profile API backs all portals.
func (pm *PortalMatcher) SyncPortal(ctx context.Context, name string) (int, error) {
	if inv, ok := pm.portal.(cacheInvalidator); ok {
		inv.InvalidateCache(ctx)
	}
	matched, err := pm.SyncOpenRequirements(ctx)
	if err != nil {
		return matched, fmt.Errorf("sync %s: %w", name, err)
	}
	return matched, nil
}
