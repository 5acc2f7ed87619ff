package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsieve/review-cli/internal/dedup"
	"github.com/scholarsieve/review-cli/internal/ingest"
	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/scorer"
	"github.com/scholarsieve/review-cli/internal/selection"
	"github.com/scholarsieve/review-cli/internal/store"
)

const relevantAbstract = `This experimental study applies machine learning with random forest
models to predict student dropout in online algebra and mathematics courses. We evaluate
the approach on a large dataset of university students and report accuracy improvements
over baseline methods. The results show that early prediction enables timely intervention
by teachers working on problem solving skills, and we discuss implications for adaptive
learning platforms in mathematics education. Feature importance analysis highlights
engagement signals as the strongest predictors of attrition across all course formats.`

func newTestPipeline(t *testing.T) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := New(st, Options{
		Dedup:   dedup.DefaultConfig(),
		Lexicon: scorer.DefaultLexicon(),
		Criteria: selection.Criteria{
			AllowedLanguages:   []string{"en"},
			YearMin:            2015,
			YearMax:            2025,
			MinAbstractWords:   50,
			InclusionThreshold: 4.0,
		},
		Workers: 2,
	})
	return p, st
}

func seedCorpus(t *testing.T, st store.Store) {
	t.Helper()
	records := []model.RawRecord{
		{
			Title:     "Predicting Student Dropout with Random Forests",
			DOI:       "10.1/dropout",
			Abstract:  relevantAbstract,
			Year:      2021,
			Venue:     "LAK",
			SourceAPI: "openalex",
		},
		{
			// Same DOI from a second source: an exact duplicate.
			Title:     "Predicting Student Dropout with Random Forests",
			DOI:       "https://doi.org/10.1/dropout",
			Abstract:  relevantAbstract,
			Year:      2021,
			SourceAPI: "crossref",
		},
		{
			Title:     "Protein Folding Dynamics in Molecular Biology",
			DOI:       "10.1/protein",
			Abstract:  strings.Repeat("The biology of protein folding under thermal stress conditions. ", 10),
			Year:      2020,
			SourceAPI: "openalex",
		},
		{
			Title:     "A Note on Nothing in Particular",
			DOI:       "10.1/note",
			Abstract:  "Too short to screen.",
			Year:      2019,
			SourceAPI: "openalex",
		},
	}
	_, err := ingest.New(st).Ingest(context.Background(), records)
	require.NoError(t, err)
}

func TestRun_FullPipeline(t *testing.T) {
	p, st := newTestPipeline(t)
	seedCorpus(t, st)
	ctx := context.Background()

	result, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Dedup.Total)
	assert.Equal(t, 1, result.Dedup.Duplicates)
	assert.Equal(t, 3, result.Scored)
	assert.Equal(t, 3, result.Selected)

	stats := result.Stats
	assert.Equal(t, 4, stats.TotalRecords)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 3, stats.Identified)
	assert.Equal(t, 1, stats.Included)
	assert.Equal(t, 2, stats.Excluded)
	assert.Equal(t, 1, stats.ExclusionReasons[model.ExcludedOffTopic])
	assert.Equal(t, 1, stats.ExclusionReasons[model.ExcludedShortAbstract])

	// The duplicate row is excluded in place, never deleted.
	papers, err := st.ListPapers(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, papers, 4)
	dup := papers[1]
	assert.True(t, dup.IsDuplicate)
	assert.Equal(t, "doi:10.1/dropout", dup.DuplicateOf)
	assert.Equal(t, model.StageExcluded, dup.SelectionStage)
	assert.Equal(t, model.ExcludedDuplicate, dup.ExclusionReason)

	// The canonical twin survives with a score and an included stage.
	assert.Equal(t, model.StageIncluded, papers[0].SelectionStage)
	assert.GreaterOrEqual(t, papers[0].RelevanceScore, 4.0)
}

func TestRun_Idempotent(t *testing.T) {
	p, st := newTestPipeline(t)
	seedCorpus(t, st)
	ctx := context.Background()

	_, err := p.Run(ctx)
	require.NoError(t, err)
	first, err := st.ListPapers(ctx, store.Filter{})
	require.NoError(t, err)

	for run := 0; run < 3; run++ {
		_, err = p.Run(ctx)
		require.NoError(t, err)
		again, err := st.ListPapers(ctx, store.Filter{})
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			assert.Equal(t, first[i].IsDuplicate, again[i].IsDuplicate, "paper %d", i)
			assert.Equal(t, first[i].DuplicateOf, again[i].DuplicateOf, "paper %d", i)
			assert.Equal(t, first[i].RelevanceScore, again[i].RelevanceScore, "paper %d", i)
			assert.Equal(t, first[i].SelectionStage, again[i].SelectionStage, "paper %d", i)
			assert.Equal(t, first[i].ExclusionReason, again[i].ExclusionReason, "paper %d", i)
		}
	}
}

func TestRun_RecoversFromStaleDerivedState(t *testing.T) {
	p, st := newTestPipeline(t)
	seedCorpus(t, st)
	ctx := context.Background()

	_, err := p.Run(ctx)
	require.NoError(t, err)

	// Corrupt the derived state by hand: flag the canonical paper as a
	// duplicate of a bogus reference. A recompute must repair it.
	papers, err := st.ListPapers(ctx, store.Filter{})
	require.NoError(t, err)
	victim := papers[0]
	victim.IsDuplicate = true
	victim.DuplicateOf = "doi:10.9/bogus"
	victim.SelectionStage = model.StageExcluded
	victim.ExclusionReason = model.ExcludedDuplicate
	require.NoError(t, st.UpdateDerived(ctx, &victim))

	_, err = p.Run(ctx)
	require.NoError(t, err)

	repaired, err := st.GetPaper(ctx, victim.ID)
	require.NoError(t, err)
	assert.False(t, repaired.IsDuplicate)
	assert.Empty(t, repaired.DuplicateOf)
	assert.Equal(t, model.StageIncluded, repaired.SelectionStage)
}

func TestRun_EmptyCorpus(t *testing.T) {
	p, _ := newTestPipeline(t)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Dedup.Total)
	assert.Zero(t, result.Stats.TotalRecords)
}

func TestScore_OnlyCanonicalPapers(t *testing.T) {
	p, st := newTestPipeline(t)
	seedCorpus(t, st)
	ctx := context.Background()

	_, err := p.Dedup(ctx)
	require.NoError(t, err)
	scored, err := p.Score(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, scored)

	// Duplicate rows keep a zero score.
	papers, err := st.ListPapers(ctx, store.Filter{})
	require.NoError(t, err)
	assert.True(t, papers[1].IsDuplicate)
	assert.Zero(t, papers[1].RelevanceScore)
}
