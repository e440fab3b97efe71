package cv

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSkills(t *testing.T) {
	text := "Senior engineer: Golang, PostgreSQL and Kubernetes. Some C# and Node.js. Good at googling."
	assert.Equal(t, []string{"C#", "Go", "Kubernetes", "Node.js", "PostgreSQL"}, ExtractSkills(text))
	assert.Empty(t, ExtractSkills("nothing relevant here"))
	assert.Equal(t, []string{"CI/CD", "Java"}, ExtractSkills("java, ci/cd pipelines"))
}

func TestExtractExperienceYears(t *testing.T) {
	assert.Equal(t, 7, ExtractExperienceYears("3 years of experience with Go, 7+ years experience overall"))
	assert.Equal(t, 5, ExtractExperienceYears("5 Jahre Berufserfahrung im Lager"))
	assert.Zero(t, ExtractExperienceYears("born 1990"))
}

func TestExtractEducationLevel(t *testing.T) {
	assert.Equal(t, "master", ExtractEducationLevel("M.Sc. Computer Science, B.Sc. Physics"))
	assert.Equal(t, "vocational", ExtractEducationLevel("Ausbildung zum Fachlageristen"))
	assert.Empty(t, ExtractEducationLevel("self taught"))
}

func TestParseFileText(t *testing.T) {
	dir := t.TempDir()
	p := NewParser(dir)

	doc, err := p.ParseFile("cand-1", "../../etc/cv.txt", strings.NewReader("Go developer, 4 years of experience, Bachelor"))
	require.NoError(t, err)
	assert.Equal(t, "cv.txt", doc.Document.Name)
	assert.Equal(t, "txt", doc.Document.FileType)
	assert.Equal(t, int64(45), doc.Document.Size)
	assert.True(t, strings.HasPrefix(doc.Document.Path, filepath.Join(dir, "cand-1")))
	assert.Equal(t, []string{"Go"}, doc.Profile.Skills)
	assert.Equal(t, 4, doc.Profile.ExperienceYears)
	assert.Equal(t, "bachelor", doc.Profile.EducationLevel)

	_, err = os.Stat(doc.Document.Path)
	assert.NoError(t, err)
}

func TestParseFileRejects(t *testing.T) {
	p := NewParser(t.TempDir())

	_, err := p.ParseFile("c", "cv.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = p.ParseFile("c", "big.txt", bytes.NewReader(make([]byte, MaxFileSize+1)))
	assert.ErrorIs(t, err, ErrTooLarge)

	assert.True(t, Supported("CV.PDF"))
	assert.False(t, Supported("cv.zip"))
}
