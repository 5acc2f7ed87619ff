package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/scholarsieve/review-cli/internal/model"
)

// ErrNotFound is returned when a requested paper does not exist.
var ErrNotFound = eris.New("store: paper not found")

// Filter specifies criteria for listing and counting papers.
type Filter struct {
	Stage     model.SelectionStage `json:"stage,omitempty"`
	Canonical *bool                `json:"canonical,omitempty"`
	MinScore  *float64             `json:"min_score,omitempty"`
	MaxScore  *float64             `json:"max_score,omitempty"`
	SourceAPI string               `json:"source_api,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	Offset    int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the review corpus. Papers are
// created once at ingestion and mutated in place by the dedup, scoring and
// selection passes; they are never deleted.
type Store interface {
	// Papers
	CreatePaper(ctx context.Context, p *model.Paper) error
	GetPaper(ctx context.Context, id string) (*model.Paper, error)
	// FindByIngestKey returns (nil, nil) when no record carries the key.
	FindByIngestKey(ctx context.Context, key string) (*model.Paper, error)
	ListPapers(ctx context.Context, f Filter) ([]model.Paper, error)
	// UpdateDerived persists the fields computed by the dedup, scoring and
	// selection passes for one paper.
	UpdateDerived(ctx context.Context, p *model.Paper) error
	MaxSeq(ctx context.Context) (int64, error)

	// Aggregate queries. These are the only legitimate source for reported
	// figures; they always reflect current persisted state.
	CountPapers(ctx context.Context, f Filter) (int, error)
	StageCounts(ctx context.Context) (map[model.SelectionStage]int, error)
	ExclusionCounts(ctx context.Context) (map[model.ExclusionReason]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// validateDerived rejects writes that would break the duplicate-flag
// invariant: duplicate_of is set if and only if is_duplicate is true, and an
// exclusion reason is present if and only if the paper is excluded.
func validateDerived(p *model.Paper) error {
	if p.IsDuplicate && p.DuplicateOf == "" {
		return eris.Errorf("store: paper %s flagged duplicate without duplicate_of", p.ID)
	}
	if !p.IsDuplicate && p.DuplicateOf != "" {
		return eris.Errorf("store: canonical paper %s has duplicate_of %q", p.ID, p.DuplicateOf)
	}
	if p.SelectionStage == model.StageExcluded && p.ExclusionReason == "" {
		return eris.Errorf("store: excluded paper %s has no exclusion reason", p.ID)
	}
	if p.SelectionStage != model.StageExcluded && p.ExclusionReason != "" {
		return eris.Errorf("store: paper %s in stage %s carries exclusion reason %q", p.ID, p.SelectionStage, p.ExclusionReason)
	}
	return nil
}
