package matching

import (
	"math"
	"strings"
)

// Weights are the relative importance of each scoring dimension. They are normalised by their
// sum, so 4/3/1.5/1.5 and 0.4/0.3/0.15/0.15 are equivalent.
type Weights struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Location   float64 `json:"location"`
	Education  float64 `json:"education"`
}

// DefaultWeights: skills 40%, experience 30%, location 15%, education 15%.
var DefaultWeights = Weights{Skills: 0.40, Experience: 0.30, Location: 0.15, Education: 0.15}

func (w Weights) normalised() Weights {
	if w.Skills < 0 || w.Experience < 0 || w.Location < 0 || w.Education < 0 {
		return DefaultWeights
	}
	sum := w.Skills + w.Experience + w.Location + w.Education
	if sum <= 0 {
		return DefaultWeights
	}
	return Weights{w.Skills / sum, w.Experience / sum, w.Location / sum, w.Education / sum}
}

// Location is a postal location with optional coordinates.
type Location struct {
	City       string   `json:"city,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	Country    string   `json:"country,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

func (l Location) hasCoords() bool { return l.Latitude != nil && l.Longitude != nil }

func (l Location) empty() bool {
	return strings.TrimSpace(l.City) == "" && strings.TrimSpace(l.PostalCode) == "" &&
		strings.TrimSpace(l.Country) == "" && !l.hasCoords()
}

// RequirementProfile is what a position asks for.
type RequirementProfile struct {
	RequiredSkills     []string
	PreferredSkills    []string
	MinExperienceYears int
	MaxExperienceYears int // 0 = no upper bound
	EducationLevel     string
	Location           Location
	RadiusKm           float64
	RemoteAllowed      bool
}

// Profile is what a candidate, applicant, talent pool entry or portal profile offers.
type Profile struct {
	Skills          []string
	ExperienceYears int
	EducationLevel  string
	Location        Location
}

type Breakdown struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Location   float64 `json:"location"`
	Education  float64 `json:"education"`
}

type Result struct {
	Score         int       `json:"score"`
	Breakdown     Breakdown `json:"breakdown"`
	MatchedSkills []string  `json:"matched_skills"`
	MissingSkills []string  `json:"missing_skills"`
	DistanceKm    *float64  `json:"distance_km,omitempty"`
}

// Details flattens the result into the JSON object persisted with a match.
func (r Result) Details() map[string]any {
	d := map[string]any{
		"skills":         round2(r.Breakdown.Skills),
		"experience":     round2(r.Breakdown.Experience),
		"location":       round2(r.Breakdown.Location),
		"education":      round2(r.Breakdown.Education),
		"matched_skills": r.MatchedSkills,
		"missing_skills": r.MissingSkills,
	}
	if r.DistanceKm != nil {
		d["distance_km"] = math.Round(*r.DistanceKm*10) / 10
	}
	return d
}

// Score computes the weighted 0-100 compatibility between a requirement and a profile.
// It is deterministic and has no side effects.
func Score(req RequirementProfile, p Profile, w Weights) Result {
	w = w.normalised()

	skills, matched, missing := skillScore(req, p)
	exp := experienceScore(req, p)
	loc, dist := locationScore(req, p)
	edu := educationScore(req, p)

	total := skills*w.Skills + exp*w.Experience + loc*w.Location + edu*w.Education
	score := int(math.Round(total * 100))
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return Result{
		Score:         score,
		Breakdown:     Breakdown{Skills: skills, Experience: exp, Location: loc, Education: edu},
		MatchedSkills: matched,
		MissingSkills: missing,
		DistanceKm:    dist,
	}
}

func normSkill(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// skillScore weighs required skills 70% and preferred 30%. A list that is not set hands its
// share to the other one.
func skillScore(req RequirementProfile, p Profile) (score float64, matched, missing []string) {
	have := make(map[string]bool, len(p.Skills))
	for _, s := range p.Skills {
		if k := normSkill(s); k != "" {
			have[k] = true
		}
	}
	matched, missing = []string{}, []string{}

	ratio := func(want []string, trackMissing bool) (float64, int) {
		seen := map[string]bool{}
		total, hits := 0, 0
		for _, s := range want {
			k := normSkill(s)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			total++
			if have[k] {
				hits++
				matched = append(matched, s)
			} else if trackMissing {
				missing = append(missing, s)
			}
		}
		if total == 0 {
			return 0, 0
		}
		return float64(hits) / float64(total), total
	}

	reqRatio, reqN := ratio(req.RequiredSkills, true)
	prefRatio, prefN := ratio(req.PreferredSkills, false)

	switch {
	case reqN == 0 && prefN == 0:
		return 1.0, matched, missing
	case prefN == 0:
		return reqRatio, matched, missing
	case reqN == 0:
		return prefRatio, matched, missing
	}
	return reqRatio*0.7 + prefRatio*0.3, matched, missing
}

func experienceScore(req RequirementProfile, p Profile) float64 {
	minExp, maxExp := req.MinExperienceYears, req.MaxExperienceYears
	if minExp <= 0 && maxExp <= 0 {
		return 1.0
	}
	years := p.ExperienceYears
	if years >= minExp && (maxExp <= 0 || years <= maxExp) {
		return 1.0
	}
	if minExp > 0 && years < minExp {
		gap := minExp - years
		return math.Max(0, 1.0-float64(gap)*0.2)
	}
	return 0.5 // over the maximum
}

func locationScore(req RequirementProfile, p Profile) (float64, *float64) {
	if req.RemoteAllowed || req.Location.empty() {
		return 1.0, nil
	}
	if p.Location.empty() {
		return 0.5, nil
	}

	if req.RadiusKm > 0 && req.Location.hasCoords() && p.Location.hasCoords() {
		d := haversineKm(*req.Location.Latitude, *req.Location.Longitude, *p.Location.Latitude, *p.Location.Longitude)
		switch {
		case d <= req.RadiusKm:
			return 1.0, &d
		case d >= 2*req.RadiusKm:
			return 0, &d
		}
		return 1.0 - (d-req.RadiusKm)/req.RadiusKm, &d
	}

	rl, pl := req.Location, p.Location
	if strings.TrimSpace(rl.City) == "" && strings.TrimSpace(rl.PostalCode) == "" && strings.TrimSpace(rl.Country) == "" {
		// Only coordinates without a radius: nothing textual to compare.
		return 1.0, nil
	}
	sameCountry := rl.Country == "" || pl.Country == "" || strings.EqualFold(strings.TrimSpace(rl.Country), strings.TrimSpace(pl.Country))

	if rl.City != "" && strings.EqualFold(strings.TrimSpace(rl.City), strings.TrimSpace(pl.City)) && sameCountry {
		return 1.0, nil
	}
	if r, c := postalRegion(rl.PostalCode), postalRegion(pl.PostalCode); r != "" && r == c && sameCountry {
		return 0.7, nil
	}
	if rl.Country != "" && pl.Country != "" && sameCountry {
		return 0.4, nil
	}
	if pl.City == "" && pl.PostalCode == "" && pl.Country == "" {
		return 0.5, nil
	}
	return 0, nil
}

func postalRegion(code string) string {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

var educationLadder = map[string]int{
	"none":           0,
	"vocational":     1,
	"apprenticeship": 1,
	"ausbildung":     1,
	"bachelor":       2,
	"master":         3,
	"diploma":        3,
	"doctorate":      4,
	"phd":            4,
}

// EducationRank maps a level name onto the ladder; unknown names rank as none.
func EducationRank(level string) int {
	return educationLadder[strings.ToLower(strings.TrimSpace(level))]
}

func educationScore(req RequirementProfile, p Profile) float64 {
	want := EducationRank(req.EducationLevel)
	if want == 0 {
		return 1.0
	}
	have := EducationRank(p.EducationLevel)
	switch {
	case have >= want:
		return 1.0
	case have == want-1:
		return 0.5
	}
	return 0
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
