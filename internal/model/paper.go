package model

import (
	"time"
)

// SelectionStage represents a paper's position in the review funnel.
type SelectionStage string

const (
	StageScreening   SelectionStage = "screening"
	StageEligibility SelectionStage = "eligibility"
	StageIncluded    SelectionStage = "included"
	StageExcluded    SelectionStage = "excluded"
)

// ExclusionReason explains exactly which check an excluded paper failed.
type ExclusionReason string

const (
	ExcludedDuplicate     ExclusionReason = "duplicate"
	ExcludedLanguage      ExclusionReason = "invalid_language"
	ExcludedYearRange     ExclusionReason = "year_out_of_range"
	ExcludedShortAbstract ExclusionReason = "abstract_too_short"
	ExcludedNonResearch   ExclusionReason = "non_research"
	ExcludedOffTopic      ExclusionReason = "off_topic"
	ExcludedLowScore      ExclusionReason = "low_relevance_score"
)

// ScoreBreakdown holds the per-criterion sub-scores whose sum produces the
// total relevance score. Persisted alongside the total so every
// inclusion/exclusion decision stays explainable after the fact.
type ScoreBreakdown struct {
	Technique float64 `json:"technique"` // 0-3: recognized computational-technique terms
	Context   float64 `json:"context"`   // 0-3: recognized subject-domain terms
	Quality   float64 `json:"quality"`   // 0-2: metadata completeness
	Impact    float64 `json:"impact"`    // 0-2: DOI + open-access indicators
}

// Total returns the clipped 0-10 sum of the sub-scores.
func (b ScoreBreakdown) Total() float64 {
	t := b.Technique + b.Context + b.Quality + b.Impact
	if t < 0 {
		return 0
	}
	if t > 10 {
		return 10
	}
	return t
}

// Paper is the canonical bibliographic entity. One row per distinct record
// harvested from a source API; duplicates are flagged, never deleted.
type Paper struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"normalized_title"`
	DOI             string `json:"doi,omitempty"`
	NormalizedDOI   string `json:"normalized_doi,omitempty"`
	URL             string `json:"url,omitempty"`
	NormalizedURL   string `json:"normalized_url,omitempty"`

	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Language string   `json:"language,omitempty"`

	SourceAPI  string `json:"source_api"`
	OpenAccess bool   `json:"open_access"`

	// Seq is the ingestion ordinal. Every deterministic tie-break keys off
	// Seq, never off RetrievedAt or processing order.
	Seq         int64     `json:"seq"`
	RetrievedAt time.Time `json:"retrieved_at"`

	IsDuplicate bool   `json:"is_duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"` // identity key of the canonical record

	RelevanceScore float64        `json:"relevance_score"`
	Breakdown      ScoreBreakdown `json:"score_breakdown"`
	Techniques     []string       `json:"techniques,omitempty"`
	StudyType      string         `json:"study_type,omitempty"`

	SelectionStage  SelectionStage  `json:"selection_stage"`
	ExclusionReason ExclusionReason `json:"exclusion_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityKey returns the exact-match dedup key: the normalized DOI when
// present, else the normalized URL, else empty.
func (p *Paper) IdentityKey() string {
	if p.NormalizedDOI != "" {
		return "doi:" + p.NormalizedDOI
	}
	if p.NormalizedURL != "" {
		return "url:" + p.NormalizedURL
	}
	return ""
}

// IngestKey identifies a record across re-ingests of the same harvest
// dumps: same source plus identity key (or normalized title when the record
// has neither DOI nor URL) means the record is already stored.
func (p *Paper) IngestKey() string {
	if key := p.IdentityKey(); key != "" {
		return p.SourceAPI + "|" + key
	}
	return p.SourceAPI + "|title:" + p.NormalizedTitle
}

// Canonical reports whether this paper is the representative of its group.
func (p *Paper) Canonical() bool {
	return !p.IsDuplicate
}

// ResetDerived clears every field computed by the dedup, scoring and
// selection passes so a pipeline run is a full recompute from ingested
// content rather than an incremental patch over earlier runs.
func (p *Paper) ResetDerived() {
	p.IsDuplicate = false
	p.DuplicateOf = ""
	p.RelevanceScore = 0
	p.Breakdown = ScoreBreakdown{}
	p.Techniques = nil
	p.StudyType = ""
	p.SelectionStage = StageScreening
	p.ExclusionReason = ""
}
