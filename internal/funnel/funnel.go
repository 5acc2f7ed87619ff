// Package funnel derives review flow statistics from persisted paper state.
// Counts are always computed from the store at snapshot time; nothing here
// keeps running totals, so a snapshot can never drift from the corpus.
package funnel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

// Stats is one point-in-time view of the selection flow, in PRISMA order.
type Stats struct {
	// TotalRecords is every row ever ingested, duplicates included.
	TotalRecords int `json:"total_records"`
	// Duplicates counts rows flagged by duplicate detection.
	Duplicates int `json:"duplicates"`
	// Identified is the unique corpus after deduplication.
	Identified int `json:"identified"`
	// Screened is how many unique papers entered screening. Every unique
	// paper does, so this mirrors Identified; it is reported separately
	// because readers expect the explicit stage.
	Screened int `json:"screened"`
	// ReachedEligibility counts papers that survived every screening check
	// and were judged on relevance score alone.
	ReachedEligibility int `json:"reached_eligibility"`
	// Pending counts papers still sitting in screening, which only happens
	// between ingestion and a selection pass.
	Pending  int `json:"pending"`
	Included int `json:"included"`
	Excluded int `json:"excluded"`
	// ExclusionReasons breaks Excluded down by the first failing check.
	ExclusionReasons map[model.ExclusionReason]int `json:"exclusion_reasons"`
}

// Aggregator computes Stats from a Store.
type Aggregator struct {
	store store.Store
}

func New(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Snapshot queries the store and assembles the current funnel. It reads only
// persisted rows, so re-running it after any pipeline pass always agrees with
// what a direct query of the papers table would show.
func (a *Aggregator) Snapshot(ctx context.Context) (*Stats, error) {
	total, err := a.store.CountPapers(ctx, store.Filter{})
	if err != nil {
		return nil, eris.Wrap(err, "funnel: count total")
	}

	canonical := true
	unique, err := a.store.CountPapers(ctx, store.Filter{Canonical: &canonical})
	if err != nil {
		return nil, eris.Wrap(err, "funnel: count canonical")
	}

	stages, err := a.store.StageCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "funnel: stage counts")
	}

	reasons, err := a.store.ExclusionCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "funnel: exclusion counts")
	}

	s := &Stats{
		TotalRecords:     total,
		Duplicates:       total - unique,
		Identified:       unique,
		Screened:         unique,
		Pending:          stages[model.StageScreening] + stages[model.StageEligibility],
		Included:         stages[model.StageIncluded],
		Excluded:         stages[model.StageExcluded],
		ExclusionReasons: reasons,
	}
	// Papers excluded only for a low relevance score cleared screening, so
	// they reached the eligibility judgement alongside everything included.
	s.ReachedEligibility = s.Included + reasons[model.ExcludedLowScore]

	if err := s.check(); err != nil {
		return nil, err
	}

	zap.L().Debug("funnel: snapshot",
		zap.Int("total", s.TotalRecords),
		zap.Int("identified", s.Identified),
		zap.Int("included", s.Included),
		zap.Int("excluded", s.Excluded),
	)
	return s, nil
}

// check verifies the snapshot is internally consistent before it is reported.
func (s *Stats) check() error {
	if s.Identified != s.Pending+s.Included+s.Excluded {
		return eris.Errorf("funnel: inconsistent snapshot: %d unique != %d pending + %d included + %d excluded",
			s.Identified, s.Pending, s.Included, s.Excluded)
	}
	reasonTotal := 0
	for _, n := range s.ExclusionReasons {
		reasonTotal += n
	}
	if reasonTotal != s.Excluded {
		return eris.Errorf("funnel: exclusion reasons sum to %d but %d papers are excluded", reasonTotal, s.Excluded)
	}
	return nil
}
