package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/scholarsieve/review-cli/internal/dedup"
	"github.com/scholarsieve/review-cli/internal/pipeline"
	"github.com/scholarsieve/review-cli/internal/scorer"
	"github.com/scholarsieve/review-cli/internal/selection"
	"github.com/scholarsieve/review-cli/internal/store"
)

// openStore opens the configured backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// buildPipeline assembles the recompute pipeline from configuration.
func buildPipeline(st store.Store) (*pipeline.Pipeline, error) {
	lex := scorer.DefaultLexicon()
	if cfg.Scorer.LexiconPath != "" {
		var err error
		lex, err = scorer.LoadLexicon(cfg.Scorer.LexiconPath)
		if err != nil {
			return nil, err
		}
	}

	return pipeline.New(st, pipeline.Options{
		Dedup: dedup.Config{
			SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
			FuzzyThreshold:      cfg.Dedup.FuzzyThreshold,
			MinTitleTokens:      cfg.Dedup.MinTitleTokens,
			BlockPrefixTokens:   cfg.Dedup.BlockPrefixTokens,
			Workers:             cfg.Dedup.Workers,
		},
		Lexicon:  lex,
		Criteria: criteria(),
		Workers:  cfg.Dedup.Workers,
	}), nil
}

func criteria() selection.Criteria {
	return selection.Criteria{
		AllowedLanguages:   cfg.Review.Languages,
		YearMin:            cfg.Review.YearMin,
		YearMax:            cfg.Review.YearMax,
		MinAbstractWords:   cfg.Review.MinAbstractWords,
		InclusionThreshold: cfg.Selection.InclusionThreshold,
	}
}
