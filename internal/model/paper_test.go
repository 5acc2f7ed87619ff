package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBreakdown_Total(t *testing.T) {
	tests := []struct {
		name string
		b    ScoreBreakdown
		want float64
	}{
		{"zero", ScoreBreakdown{}, 0},
		{"typical", ScoreBreakdown{Technique: 2, Context: 1.5, Quality: 1, Impact: 0.5}, 5},
		{"max", ScoreBreakdown{Technique: 3, Context: 3, Quality: 2, Impact: 2}, 10},
		{"clips above ten", ScoreBreakdown{Technique: 5, Context: 5, Quality: 3, Impact: 3}, 10},
		{"clips below zero", ScoreBreakdown{Technique: -4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.b.Total(), 1e-9)
		})
	}
}

func TestPaper_IdentityKey(t *testing.T) {
	p := &Paper{NormalizedDOI: "10.1/abc", NormalizedURL: "example.org/paper"}
	assert.Equal(t, "doi:10.1/abc", p.IdentityKey())

	p.NormalizedDOI = ""
	assert.Equal(t, "url:example.org/paper", p.IdentityKey())

	p.NormalizedURL = ""
	assert.Empty(t, p.IdentityKey())
}

func TestPaper_IngestKey(t *testing.T) {
	p := &Paper{SourceAPI: "openalex", NormalizedDOI: "10.1/abc", NormalizedTitle: "a title"}
	assert.Equal(t, "openalex|doi:10.1/abc", p.IngestKey())

	p.NormalizedDOI = ""
	assert.Equal(t, "openalex|title:a title", p.IngestKey())
}

func TestPaper_ResetDerived(t *testing.T) {
	p := &Paper{
		Title:           "kept",
		Abstract:        "kept",
		Seq:             7,
		IsDuplicate:     true,
		DuplicateOf:     "doi:10.1/rep",
		RelevanceScore:  8.5,
		Breakdown:       ScoreBreakdown{Technique: 3},
		Techniques:      []string{"clustering"},
		StudyType:       "experimental",
		SelectionStage:  StageExcluded,
		ExclusionReason: ExcludedDuplicate,
	}

	p.ResetDerived()

	assert.False(t, p.IsDuplicate)
	assert.Empty(t, p.DuplicateOf)
	assert.Zero(t, p.RelevanceScore)
	assert.Zero(t, p.Breakdown)
	assert.Nil(t, p.Techniques)
	assert.Empty(t, p.StudyType)
	assert.Equal(t, StageScreening, p.SelectionStage)
	assert.Empty(t, p.ExclusionReason)
	assert.True(t, p.Canonical())

	// Ingested content is untouched.
	assert.Equal(t, "kept", p.Title)
	assert.Equal(t, int64(7), p.Seq)
}
