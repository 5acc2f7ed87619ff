package scorer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/normalize"
)

func paper(t *testing.T, raw model.RawRecord) *model.Paper {
	t.Helper()
	p, err := normalize.Record(raw, 1, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestScore_FullSignal(t *testing.T) {
	s := New(DefaultLexicon())
	p := paper(t, model.RawRecord{
		Title: "Machine learning and learning analytics for algebra tutoring",
		Abstract: "We apply deep learning and clustering to predict outcomes in " +
			"mathematics classrooms. This experimental study evaluates an adaptive " +
			"learning platform with two hundred students over one full school year, " +
			"measuring achievement in algebra and geometry with standard instruments.",
		Year:       2022,
		Venue:      "Journal of Learning Analytics",
		DOI:        "10.1/full",
		OpenAccess: true,
		SourceAPI:  "openalex",
	})

	a := s.Score(p)

	assert.Equal(t, 3.0, a.Breakdown.Technique, "technique matches saturate at 3")
	assert.Equal(t, 3.0, a.Breakdown.Context)
	assert.Equal(t, 2.0, a.Breakdown.Quality)
	assert.Equal(t, 2.0, a.Breakdown.Impact)
	assert.Equal(t, 10.0, a.Total)
	assert.Equal(t, "experimental", a.StudyType)
	assert.Contains(t, a.Techniques, "machine learning")
}

func TestScore_MissingOptionalFieldsDegradeToZero(t *testing.T) {
	s := New(DefaultLexicon())
	p := paper(t, model.RawRecord{Title: "An unrelated engineering report", SourceAPI: "s"})

	a := s.Score(p)

	assert.Equal(t, 0.0, a.Breakdown.Technique)
	assert.Equal(t, 0.0, a.Breakdown.Context)
	assert.Equal(t, 0.0, a.Breakdown.Quality)
	assert.Equal(t, 0.0, a.Breakdown.Impact)
	assert.Equal(t, 0.0, a.Total)
	assert.Empty(t, a.StudyType)
}

func TestScore_Deterministic(t *testing.T) {
	s := New(DefaultLexicon())
	p := paper(t, model.RawRecord{
		Title:     "Clustering and regression for fractions assessment",
		Abstract:  "A survey of data mining approaches applied to arithmetic and fractions.",
		Year:      2020,
		DOI:       "10.9/det",
		SourceAPI: "s",
	})

	first := s.Score(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(p), "score must be a pure function of content")
	}
}

func TestScore_SubScoreCaps(t *testing.T) {
	s := New(DefaultLexicon())
	p := paper(t, model.RawRecord{
		Title: "Machine learning deep learning data mining neural network clustering " +
			"classification regression for mathematics algebra geometry calculus " +
			"fractions arithmetic trigonometry",
		SourceAPI: "s",
	})

	a := s.Score(p)
	assert.Equal(t, 3.0, a.Breakdown.Technique)
	assert.Equal(t, 3.0, a.Breakdown.Context)
	assert.LessOrEqual(t, a.Total, 10.0)
}

func TestScore_WordBoundaries(t *testing.T) {
	s := New(DefaultLexicon())
	// "classification" must not match inside "declassifications".
	p := paper(t, model.RawRecord{Title: "Archive declassifications in the twentieth century", SourceAPI: "s"})
	a := s.Score(p)
	assert.Equal(t, 0.0, a.Breakdown.Technique)
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"technique:\n  - Graph Neural Networks\ndomain:\n  - Statistics Education\n",
	), 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"graph neural networks"}, lex.Technique)
	assert.Equal(t, []string{"statistics education"}, lex.Domain)
}

func TestLoadLexicon_EmptySectionsFallBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("technique: []\n"), 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.NotEmpty(t, lex.Technique)
	assert.NotEmpty(t, lex.Domain)
}

func TestLoadLexicon_MissingFile(t *testing.T) {
	_, err := LoadLexicon("/does/not/exist.yaml")
	assert.Error(t, err)
}
