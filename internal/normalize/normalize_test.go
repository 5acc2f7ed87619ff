package normalize

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsieve/review-cli/internal/model"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase and trim", "  Machine Learning IN Education  ", "machine learning in education"},
		{"diacritics stripped", "Avaliação de Matemática", "avaliacao de matematica"},
		{"punctuation removed", "Data-Driven Tutoring: A Review!", "data driven tutoring a review"},
		{"whitespace collapsed", "deep\t learning \n models", "deep learning models"},
		{"digits kept", "COVID-19 and K-12 education", "covid 19 and k 12 education"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestDOI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "10.1234/abcd.5678", "10.1234/abcd.5678"},
		{"uppercase", "10.1/ABC", "10.1/abc"},
		{"resolver prefix", "https://doi.org/10.1234/ABCD", "10.1234/abcd"},
		{"dx resolver", "http://dx.doi.org/10.99/x", "10.99/x"},
		{"doi scheme", "doi:10.5555/Zz", "10.5555/zz"},
		{"trailing punctuation", "10.1234/abcd.", "10.1234/abcd"},
		{"surrounding whitespace", "  10.1/ABC  ", "10.1/abc"},
		{"absent", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DOI(tt.in))
		})
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"scheme stripped", "https://example.org/paper/1", "example.org/paper/1"},
		{"www stripped", "http://www.example.org/p", "example.org/p"},
		{"fragment stripped", "https://example.org/p#sec2", "example.org/p"},
		{"trailing slash", "https://example.org/p/", "example.org/p"},
		{"absent", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URL(tt.in))
		})
	}
}

func TestRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid record", func(t *testing.T) {
		p, err := Record(model.RawRecord{
			Title:     "Adaptive Learning Systems: A Survey",
			DOI:       "https://doi.org/10.1234/ALS",
			URL:       "https://www.example.org/als/",
			Abstract:  "We survey adaptive learning systems.",
			Year:      2021,
			SourceAPI: "openalex",
		}, 7, now)
		require.NoError(t, err)

		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "adaptive learning systems a survey", p.NormalizedTitle)
		assert.Equal(t, "10.1234/als", p.NormalizedDOI)
		assert.Equal(t, "example.org/als", p.NormalizedURL)
		assert.Equal(t, int64(7), p.Seq)
		assert.Equal(t, now, p.RetrievedAt)
		assert.Equal(t, model.StageScreening, p.SelectionStage)
		assert.False(t, p.IsDuplicate)
	})

	t.Run("missing title rejected", func(t *testing.T) {
		_, err := Record(model.RawRecord{SourceAPI: "crossref"}, 1, now)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrInvalidRecord))
	})

	t.Run("whitespace title rejected", func(t *testing.T) {
		_, err := Record(model.RawRecord{Title: "   ", SourceAPI: "crossref"}, 1, now)
		assert.True(t, eris.Is(err, ErrInvalidRecord))
	})
}

func TestIdentityKey(t *testing.T) {
	now := time.Now()

	p, err := Record(model.RawRecord{Title: "T one two", DOI: "10.1/a", URL: "https://e.org/x", SourceAPI: "s"}, 1, now)
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1/a", p.IdentityKey())

	p, err = Record(model.RawRecord{Title: "T one two", URL: "https://e.org/x", SourceAPI: "s"}, 2, now)
	require.NoError(t, err)
	assert.Equal(t, "url:e.org/x", p.IdentityKey())

	p, err = Record(model.RawRecord{Title: "T one two", SourceAPI: "s"}, 3, now)
	require.NoError(t, err)
	assert.Equal(t, "", p.IdentityKey())
}
