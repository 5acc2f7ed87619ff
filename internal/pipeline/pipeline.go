// Package pipeline orchestrates the recompute passes over the ingested
// corpus: duplicate detection, relevance scoring and selection. Every pass is
// a full recompute from ingested content, so running the pipeline twice on an
// unchanged corpus produces byte-identical derived state.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scholarsieve/review-cli/internal/dedup"
	"github.com/scholarsieve/review-cli/internal/funnel"
	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/scorer"
	"github.com/scholarsieve/review-cli/internal/selection"
	"github.com/scholarsieve/review-cli/internal/store"
)

// Pipeline wires the passes to a store.
type Pipeline struct {
	store    store.Store
	detector *dedup.Detector
	scorer   *scorer.Scorer
	criteria selection.Criteria
	workers  int
}

// Options collects the per-pass configuration.
type Options struct {
	Dedup    dedup.Config
	Lexicon  scorer.Lexicon
	Criteria selection.Criteria
	// Workers bounds the scoring and selection parallelism. Zero means
	// one worker per CPU.
	Workers int
}

// Result summarizes one full pipeline run.
type Result struct {
	Dedup    *dedup.Result `json:"dedup"`
	Scored   int           `json:"scored"`
	Selected int           `json:"selected"`
	Stats    *funnel.Stats `json:"stats"`
	Elapsed  time.Duration `json:"elapsed"`
}

func New(st store.Store, opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{
		store:    st,
		detector: dedup.New(opts.Dedup),
		scorer:   scorer.New(opts.Lexicon),
		criteria: opts.Criteria,
		workers:  workers,
	}
}

// Run executes dedup, scoring and selection in order and returns the
// resulting funnel snapshot.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "pipeline"))

	dedupResult, err := p.Dedup(ctx)
	if err != nil {
		return nil, err
	}

	scored, err := p.Score(ctx)
	if err != nil {
		return nil, err
	}

	selected, err := p.Select(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := funnel.New(p.store).Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Dedup:    dedupResult,
		Scored:   scored,
		Selected: selected,
		Stats:    stats,
		Elapsed:  time.Since(start),
	}
	log.Info("pipeline: run complete",
		zap.Int("total", stats.TotalRecords),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("included", stats.Included),
		zap.Int("excluded", stats.Excluded),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// Dedup resets all derived state and recomputes duplicate flags. Canonical
// papers return to screening; flagged duplicates are excluded immediately so
// they never reach the later passes.
func (p *Pipeline) Dedup(ctx context.Context) (*dedup.Result, error) {
	papers, err := p.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, paper := range papers {
		paper.ResetDerived()
	}

	result, err := p.detector.Run(ctx, papers)
	if err != nil {
		return nil, err
	}

	for _, paper := range papers {
		if paper.IsDuplicate {
			paper.SelectionStage = model.StageExcluded
			paper.ExclusionReason = model.ExcludedDuplicate
		}
		if err := p.store.UpdateDerived(ctx, paper); err != nil {
			return nil, eris.Wrap(err, "pipeline: persist dedup pass")
		}
	}
	return result, nil
}

// Score computes relevance assessments for every canonical paper.
func (p *Pipeline) Score(ctx context.Context) (int, error) {
	papers, err := p.loadCanonical(ctx)
	if err != nil {
		return 0, err
	}

	p.parallel(ctx, papers, func(paper *model.Paper) {
		a := p.scorer.Score(paper)
		paper.Breakdown = a.Breakdown
		paper.RelevanceScore = a.Total
		paper.Techniques = a.Techniques
		paper.StudyType = a.StudyType
	})

	for _, paper := range papers {
		if err := p.store.UpdateDerived(ctx, paper); err != nil {
			return 0, eris.Wrap(err, "pipeline: persist score pass")
		}
	}
	return len(papers), nil
}

// Select classifies every canonical paper against the review criteria.
// Scores must already be computed; run Score first.
func (p *Pipeline) Select(ctx context.Context) (int, error) {
	papers, err := p.loadCanonical(ctx)
	if err != nil {
		return 0, err
	}

	p.parallel(ctx, papers, func(paper *model.Paper) {
		if paper.Language == "" {
			paper.Language = selection.DetectLanguage(paper)
		}
		d := selection.Classify(paper, p.criteria)
		paper.SelectionStage = d.Stage
		paper.ExclusionReason = d.Reason
	})

	for _, paper := range papers {
		if err := p.store.UpdateDerived(ctx, paper); err != nil {
			return 0, eris.Wrap(err, "pipeline: persist select pass")
		}
	}
	return len(papers), nil
}

// parallel applies fn to each paper using the configured worker count. fn
// touches only its own paper, so no locking is needed.
func (p *Pipeline) parallel(ctx context.Context, papers []*model.Paper, fn func(*model.Paper)) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, paper := range papers {
		paper := paper
		g.Go(func() error {
			fn(paper)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}

func (p *Pipeline) loadAll(ctx context.Context) ([]*model.Paper, error) {
	list, err := p.store.ListPapers(ctx, store.Filter{})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load papers")
	}
	return asPointers(list), nil
}

func (p *Pipeline) loadCanonical(ctx context.Context) ([]*model.Paper, error) {
	canonical := true
	list, err := p.store.ListPapers(ctx, store.Filter{Canonical: &canonical})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load canonical papers")
	}
	return asPointers(list), nil
}

func asPointers(list []model.Paper) []*model.Paper {
	out := make([]*model.Paper, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}
