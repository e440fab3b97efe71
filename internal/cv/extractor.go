package cv

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// skillVocabulary is matched case-insensitively on word boundaries.
var skillVocabulary = []string{
	"Go", "Golang", "Python", "Java", "JavaScript", "TypeScript", "C#", "C++", "PHP", "Ruby", "Kotlin", "Swift",
	"React", "Vue", "Angular", "Node.js", "Docker", "Kubernetes", "Terraform", "Linux",
	"PostgreSQL", "MySQL", "MongoDB", "Redis", "RabbitMQ", "Kafka", "AWS", "Azure", "GCP",
	"GraphQL", "REST", "Microservices", "Git", "CI/CD", "Scrum", "SAP", "Excel",
	"Machine Learning", "Data Science", "DevOps",
	"SPS", "CNC", "AutoCAD", "SolidWorks", "Forklift", "Staplerschein",
}

// aliases fold vocabulary variants onto one skill name.
var aliases = map[string]string{"Golang": "Go"}

var skillPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(skillVocabulary))
	for i, s := range skillVocabulary {
		out[i] = regexp.MustCompile(`(?i)(^|[^\pL\pN+#.])` + regexp.QuoteMeta(s) + `($|[^\pL\pN+#])`)
	}
	return out
}()

var experiencePattern = regexp.MustCompile(`(?i)(\d{1,2})\+?\s*(?:years?|jahre?n?)\s+(?:of\s+)?(?:experience|berufserfahrung|erfahrung)`)

// educationKeywords maps phrases to the education ladder used by matching, highest first.
var educationKeywords = []struct {
	level    string
	keywords []string
}{
	{"phd", []string{"phd", "ph.d", "doctorate", "promotion", "dr."}},
	{"master", []string{"master", "m.sc", "msc", "diplom", "diploma"}},
	{"bachelor", []string{"bachelor", "b.sc", "bsc", "b.a."}},
	{"vocational", []string{"ausbildung", "apprenticeship", "vocational"}},
}

// Extraction is the structured profile guessed from document text.
type Extraction struct {
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	EducationLevel  string   `json:"education_level,omitempty"`
}

func Extract(text string) Extraction {
	return Extraction{
		Skills:          ExtractSkills(text),
		ExperienceYears: ExtractExperienceYears(text),
		EducationLevel:  ExtractEducationLevel(text),
	}
}

// ExtractSkills returns the vocabulary skills mentioned in text, sorted.
func ExtractSkills(text string) []string {
	found := map[string]bool{}
	for i, re := range skillPatterns {
		if re.MatchString(text) {
			name := skillVocabulary[i]
			if a, ok := aliases[name]; ok {
				name = a
			}
			found[name] = true
		}
	}
	skills := make([]string, 0, len(found))
	for s := range found {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	return skills
}

// ExtractExperienceYears returns the largest "N years of experience" figure, or 0.
func ExtractExperienceYears(text string) int {
	best := 0
	for _, m := range experiencePattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > best && n <= 60 {
			best = n
		}
	}
	return best
}

func ExtractEducationLevel(text string) string {
	lower := strings.ToLower(text)
	for _, e := range educationKeywords {
		for _, k := range e.keywords {
			if strings.Contains(lower, k) {
				return e.level
			}
		}
	}
	return ""
}
