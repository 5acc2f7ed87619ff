package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scholarsieve/review-cli/internal/db"
	"github.com/scholarsieve/review-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for the
// hot paths of the recompute pipeline.
var preparedStatements = map[string]string{
	"get_paper":          `SELECT ` + pgPaperColumns + ` FROM papers WHERE id = $1`,
	"find_by_ingest_key": `SELECT ` + pgPaperColumns + ` FROM papers WHERE ingest_key = $1`,
	"update_derived": `UPDATE papers SET
		is_duplicate = $1, duplicate_of = $2,
		relevance_score = $3, score_technique = $4, score_context = $5, score_quality = $6, score_impact = $7,
		techniques = $8, study_type = $9, language = $10,
		selection_stage = $11, exclusion_reason = $12, updated_at = $13
	WHERE id = $14`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS papers (
	id               TEXT PRIMARY KEY,
	ingest_key       TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	doi              TEXT NOT NULL DEFAULT '',
	normalized_doi   TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	normalized_url   TEXT NOT NULL DEFAULT '',
	authors          JSONB NOT NULL DEFAULT '[]',
	year             INTEGER NOT NULL DEFAULT 0,
	venue            TEXT NOT NULL DEFAULT '',
	abstract         TEXT NOT NULL DEFAULT '',
	keywords         JSONB NOT NULL DEFAULT '[]',
	language         TEXT NOT NULL DEFAULT '',
	source_api       TEXT NOT NULL,
	open_access      BOOLEAN NOT NULL DEFAULT false,
	seq              BIGINT NOT NULL UNIQUE,
	retrieved_at     TIMESTAMPTZ NOT NULL,
	is_duplicate     BOOLEAN NOT NULL DEFAULT false,
	duplicate_of     TEXT NOT NULL DEFAULT '',
	relevance_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_technique  DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_context    DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_impact     DOUBLE PRECISION NOT NULL DEFAULT 0,
	techniques       JSONB NOT NULL DEFAULT '[]',
	study_type       TEXT NOT NULL DEFAULT '',
	selection_stage  TEXT NOT NULL DEFAULT 'screening',
	exclusion_reason TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	CHECK ((NOT is_duplicate) = (duplicate_of = ''))
);

CREATE INDEX IF NOT EXISTS idx_papers_stage ON papers(selection_stage);
CREATE INDEX IF NOT EXISTS idx_papers_duplicate ON papers(is_duplicate);
CREATE INDEX IF NOT EXISTS idx_papers_score ON papers(relevance_score);
CREATE INDEX IF NOT EXISTS idx_papers_seq ON papers(seq);
`

const pgPaperColumns = `id, ingest_key, title, normalized_title, doi, normalized_doi,
	url, normalized_url, authors, year, venue, abstract, keywords, language,
	source_api, open_access, seq, retrieved_at, is_duplicate, duplicate_of,
	relevance_score, score_technique, score_context, score_quality, score_impact,
	techniques, study_type, selection_stage, exclusion_reason, created_at, updated_at`

// paperCopyColumns is pgPaperColumns as a slice, for COPY-based bulk loads.
var paperCopyColumns = []string{
	"id", "ingest_key", "title", "normalized_title", "doi", "normalized_doi",
	"url", "normalized_url", "authors", "year", "venue", "abstract", "keywords", "language",
	"source_api", "open_access", "seq", "retrieved_at", "is_duplicate", "duplicate_of",
	"relevance_score", "score_technique", "score_context", "score_quality", "score_impact",
	"techniques", "study_type", "selection_stage", "exclusion_reason", "created_at", "updated_at",
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreatePaper(ctx context.Context, p *model.Paper) error {
	if err := validateDerived(p); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO papers (`+pgPaperColumns+`) VALUES
		 ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		  $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		p.ID, p.IngestKey(), p.Title, p.NormalizedTitle, p.DOI, p.NormalizedDOI,
		p.URL, p.NormalizedURL, emptyAsList(p.Authors), p.Year, p.Venue, p.Abstract, emptyAsList(p.Keywords), p.Language,
		p.SourceAPI, p.OpenAccess, p.Seq, p.RetrievedAt, p.IsDuplicate, p.DuplicateOf,
		p.RelevanceScore, p.Breakdown.Technique, p.Breakdown.Context, p.Breakdown.Quality, p.Breakdown.Impact,
		emptyAsList(p.Techniques), p.StudyType, string(p.SelectionStage), string(p.ExclusionReason), p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert paper %s", p.ID)
}

// BulkCreatePapers loads a batch of freshly normalized papers via COPY. Every
// paper must already satisfy the derived-field invariants.
func (s *PostgresStore) BulkCreatePapers(ctx context.Context, papers []model.Paper) (int64, error) {
	rows := make([][]any, 0, len(papers))
	for i := range papers {
		p := &papers[i]
		if err := validateDerived(p); err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			p.ID, p.IngestKey(), p.Title, p.NormalizedTitle, p.DOI, p.NormalizedDOI,
			p.URL, p.NormalizedURL, emptyAsList(p.Authors), p.Year, p.Venue, p.Abstract, emptyAsList(p.Keywords), p.Language,
			p.SourceAPI, p.OpenAccess, p.Seq, p.RetrievedAt, p.IsDuplicate, p.DuplicateOf,
			p.RelevanceScore, p.Breakdown.Technique, p.Breakdown.Context, p.Breakdown.Quality, p.Breakdown.Impact,
			emptyAsList(p.Techniques), p.StudyType, string(p.SelectionStage), string(p.ExclusionReason), p.CreatedAt, p.UpdatedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "papers", paperCopyColumns, rows)
}

func (s *PostgresStore) GetPaper(ctx context.Context, id string) (*model.Paper, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgPaperColumns+` FROM papers WHERE id = $1`, id)
	p, err := scanPgPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return p, err
}

func (s *PostgresStore) FindByIngestKey(ctx context.Context, key string) (*model.Paper, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgPaperColumns+` FROM papers WHERE ingest_key = $1`, key)
	p, err := scanPgPaper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListPapers(ctx context.Context, f Filter) ([]model.Paper, error) {
	query, args := buildPgFilter(`SELECT `+pgPaperColumns+` FROM papers WHERE true`, f)
	query += ` ORDER BY seq ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + itoa(len(args))
		if f.Offset > 0 {
			args = append(args, f.Offset)
			query += ` OFFSET $` + itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list papers")
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		p, err := scanPgPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *p)
	}
	return papers, eris.Wrap(rows.Err(), "postgres: list papers iterate")
}

func (s *PostgresStore) UpdateDerived(ctx context.Context, p *model.Paper) error {
	if err := validateDerived(p); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE papers SET
			is_duplicate = $1, duplicate_of = $2,
			relevance_score = $3, score_technique = $4, score_context = $5, score_quality = $6, score_impact = $7,
			techniques = $8, study_type = $9, language = $10,
			selection_stage = $11, exclusion_reason = $12, updated_at = $13
		WHERE id = $14`,
		p.IsDuplicate, p.DuplicateOf,
		p.RelevanceScore, p.Breakdown.Technique, p.Breakdown.Context, p.Breakdown.Quality, p.Breakdown.Impact,
		emptyAsList(p.Techniques), p.StudyType, p.Language,
		string(p.SelectionStage), string(p.ExclusionReason), time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update paper %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) MaxSeq(ctx context.Context) (int64, error) {
	var seq *int64
	err := s.pool.QueryRow(ctx, `SELECT MAX(seq) FROM papers`).Scan(&seq)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: max seq")
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

func (s *PostgresStore) CountPapers(ctx context.Context, f Filter) (int, error) {
	query, args := buildPgFilter(`SELECT COUNT(*) FROM papers WHERE true`, f)
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count papers")
	}
	return n, nil
}

func (s *PostgresStore) StageCounts(ctx context.Context) (map[model.SelectionStage]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT selection_stage, COUNT(*) FROM papers WHERE NOT is_duplicate GROUP BY selection_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage counts")
	}
	defer rows.Close()

	counts := make(map[model.SelectionStage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		counts[model.SelectionStage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: stage counts iterate")
}

func (s *PostgresStore) ExclusionCounts(ctx context.Context) (map[model.ExclusionReason]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT exclusion_reason, COUNT(*) FROM papers
		 WHERE NOT is_duplicate AND selection_stage = 'excluded'
		 GROUP BY exclusion_reason`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: exclusion counts")
	}
	defer rows.Close()

	counts := make(map[model.ExclusionReason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exclusion count")
		}
		counts[model.ExclusionReason(reason)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: exclusion counts iterate")
}

func buildPgFilter(base string, f Filter) (string, []any) {
	query := base
	var args []any
	if f.Stage != "" {
		args = append(args, string(f.Stage))
		query += ` AND selection_stage = $` + itoa(len(args))
	}
	if f.Canonical != nil {
		args = append(args, !*f.Canonical)
		query += ` AND is_duplicate = $` + itoa(len(args))
	}
	if f.MinScore != nil {
		args = append(args, *f.MinScore)
		query += ` AND relevance_score >= $` + itoa(len(args))
	}
	if f.MaxScore != nil {
		args = append(args, *f.MaxScore)
		query += ` AND relevance_score <= $` + itoa(len(args))
	}
	if f.SourceAPI != "" {
		args = append(args, f.SourceAPI)
		query += ` AND source_api = $` + itoa(len(args))
	}
	return query, args
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func scanPgPaper(row pgx.Row) (*model.Paper, error) {
	var (
		p             model.Paper
		ingestKey     string
		stage, reason string
	)

	err := row.Scan(
		&p.ID, &ingestKey, &p.Title, &p.NormalizedTitle, &p.DOI, &p.NormalizedDOI,
		&p.URL, &p.NormalizedURL, &p.Authors, &p.Year, &p.Venue, &p.Abstract, &p.Keywords, &p.Language,
		&p.SourceAPI, &p.OpenAccess, &p.Seq, &p.RetrievedAt, &p.IsDuplicate, &p.DuplicateOf,
		&p.RelevanceScore, &p.Breakdown.Technique, &p.Breakdown.Context, &p.Breakdown.Quality, &p.Breakdown.Impact,
		&p.Techniques, &p.StudyType, &stage, &reason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan paper")
	}

	if len(p.Authors) == 0 {
		p.Authors = nil
	}
	if len(p.Keywords) == 0 {
		p.Keywords = nil
	}
	if len(p.Techniques) == 0 {
		p.Techniques = nil
	}
	p.SelectionStage = model.SelectionStage(stage)
	p.ExclusionReason = model.ExclusionReason(reason)
	return &p, nil
}
