package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scholarsieve/review-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS papers (
	id               TEXT PRIMARY KEY,
	ingest_key       TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	normalized_title TEXT NOT NULL,
	doi              TEXT NOT NULL DEFAULT '',
	normalized_doi   TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	normalized_url   TEXT NOT NULL DEFAULT '',
	authors          TEXT NOT NULL DEFAULT '[]',
	year             INTEGER NOT NULL DEFAULT 0,
	venue            TEXT NOT NULL DEFAULT '',
	abstract         TEXT NOT NULL DEFAULT '',
	keywords         TEXT NOT NULL DEFAULT '[]',
	language         TEXT NOT NULL DEFAULT '',
	source_api       TEXT NOT NULL,
	open_access      INTEGER NOT NULL DEFAULT 0,
	seq              INTEGER NOT NULL UNIQUE,
	retrieved_at     DATETIME NOT NULL,
	is_duplicate     INTEGER NOT NULL DEFAULT 0,
	duplicate_of     TEXT NOT NULL DEFAULT '',
	relevance_score  REAL NOT NULL DEFAULT 0,
	score_technique  REAL NOT NULL DEFAULT 0,
	score_context    REAL NOT NULL DEFAULT 0,
	score_quality    REAL NOT NULL DEFAULT 0,
	score_impact     REAL NOT NULL DEFAULT 0,
	techniques       TEXT NOT NULL DEFAULT '[]',
	study_type       TEXT NOT NULL DEFAULT '',
	selection_stage  TEXT NOT NULL DEFAULT 'screening',
	exclusion_reason TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	CHECK ((is_duplicate = 0) = (duplicate_of = ''))
);

CREATE INDEX IF NOT EXISTS idx_papers_stage ON papers(selection_stage);
CREATE INDEX IF NOT EXISTS idx_papers_duplicate ON papers(is_duplicate);
CREATE INDEX IF NOT EXISTS idx_papers_score ON papers(relevance_score);
CREATE INDEX IF NOT EXISTS idx_papers_seq ON papers(seq);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const paperColumns = `id, ingest_key, title, normalized_title, doi, normalized_doi,
	url, normalized_url, authors, year, venue, abstract, keywords, language,
	source_api, open_access, seq, retrieved_at, is_duplicate, duplicate_of,
	relevance_score, score_technique, score_context, score_quality, score_impact,
	techniques, study_type, selection_stage, exclusion_reason, created_at, updated_at`

func (s *SQLiteStore) CreatePaper(ctx context.Context, p *model.Paper) error {
	if err := validateDerived(p); err != nil {
		return err
	}

	authors, keywords, techniques, err := marshalLists(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO papers (`+paperColumns+`) VALUES
		 (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.IngestKey(), p.Title, p.NormalizedTitle, p.DOI, p.NormalizedDOI,
		p.URL, p.NormalizedURL, authors, p.Year, p.Venue, p.Abstract, keywords, p.Language,
		p.SourceAPI, boolToInt(p.OpenAccess), p.Seq, p.RetrievedAt, boolToInt(p.IsDuplicate), p.DuplicateOf,
		p.RelevanceScore, p.Breakdown.Technique, p.Breakdown.Context, p.Breakdown.Quality, p.Breakdown.Impact,
		techniques, p.StudyType, string(p.SelectionStage), string(p.ExclusionReason), p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert paper %s", p.ID)
}

func (s *SQLiteStore) GetPaper(ctx context.Context, id string) (*model.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if err == errNoRows {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return p, err
}

func (s *SQLiteStore) FindByIngestKey(ctx context.Context, key string) (*model.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paperColumns+` FROM papers WHERE ingest_key = ?`, key)
	p, err := scanPaper(row)
	if err == errNoRows {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListPapers(ctx context.Context, f Filter) ([]model.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE 1=1`
	var args []any

	if f.Stage != "" {
		query += ` AND selection_stage = ?`
		args = append(args, string(f.Stage))
	}
	if f.Canonical != nil {
		query += ` AND is_duplicate = ?`
		args = append(args, boolToInt(!*f.Canonical))
	}
	if f.MinScore != nil {
		query += ` AND relevance_score >= ?`
		args = append(args, *f.MinScore)
	}
	if f.MaxScore != nil {
		query += ` AND relevance_score <= ?`
		args = append(args, *f.MaxScore)
	}
	if f.SourceAPI != "" {
		query += ` AND source_api = ?`
		args = append(args, f.SourceAPI)
	}
	query += ` ORDER BY seq ASC`

	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list papers")
	}
	defer rows.Close()

	var papers []model.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *p)
	}
	return papers, eris.Wrap(rows.Err(), "sqlite: list papers iterate")
}

func (s *SQLiteStore) UpdateDerived(ctx context.Context, p *model.Paper) error {
	if err := validateDerived(p); err != nil {
		return err
	}

	techniques, err := json.Marshal(emptyAsList(p.Techniques))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal techniques")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET
			is_duplicate = ?, duplicate_of = ?,
			relevance_score = ?, score_technique = ?, score_context = ?, score_quality = ?, score_impact = ?,
			techniques = ?, study_type = ?, language = ?,
			selection_stage = ?, exclusion_reason = ?, updated_at = ?
		 WHERE id = ?`,
		boolToInt(p.IsDuplicate), p.DuplicateOf,
		p.RelevanceScore, p.Breakdown.Technique, p.Breakdown.Context, p.Breakdown.Quality, p.Breakdown.Impact,
		string(techniques), p.StudyType, p.Language,
		string(p.SelectionStage), string(p.ExclusionReason), time.Now().UTC(),
		p.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update paper %s", p.ID)
	}
	return checkRowsAffected(res, p.ID)
}

func (s *SQLiteStore) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM papers`).Scan(&seq)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: max seq")
	}
	return seq.Int64, nil
}

func (s *SQLiteStore) CountPapers(ctx context.Context, f Filter) (int, error) {
	query := `SELECT COUNT(*) FROM papers WHERE 1=1`
	var args []any

	if f.Stage != "" {
		query += ` AND selection_stage = ?`
		args = append(args, string(f.Stage))
	}
	if f.Canonical != nil {
		query += ` AND is_duplicate = ?`
		args = append(args, boolToInt(!*f.Canonical))
	}
	if f.MinScore != nil {
		query += ` AND relevance_score >= ?`
		args = append(args, *f.MinScore)
	}
	if f.MaxScore != nil {
		query += ` AND relevance_score <= ?`
		args = append(args, *f.MaxScore)
	}
	if f.SourceAPI != "" {
		query += ` AND source_api = ?`
		args = append(args, f.SourceAPI)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count papers")
	}
	return n, nil
}

func (s *SQLiteStore) StageCounts(ctx context.Context) (map[model.SelectionStage]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT selection_stage, COUNT(*) FROM papers WHERE is_duplicate = 0 GROUP BY selection_stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stage counts")
	}
	defer rows.Close()

	counts := make(map[model.SelectionStage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		counts[model.SelectionStage(stage)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: stage counts iterate")
}

func (s *SQLiteStore) ExclusionCounts(ctx context.Context) (map[model.ExclusionReason]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exclusion_reason, COUNT(*) FROM papers
		 WHERE is_duplicate = 0 AND selection_stage = 'excluded'
		 GROUP BY exclusion_reason`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: exclusion counts")
	}
	defer rows.Close()

	counts := make(map[model.ExclusionReason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exclusion count")
		}
		counts[model.ExclusionReason(reason)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: exclusion counts iterate")
}

// helpers

var errNoRows = sql.ErrNoRows

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyAsList(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalLists(p *model.Paper) (authors, keywords, techniques string, err error) {
	a, err := json.Marshal(emptyAsList(p.Authors))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal authors")
	}
	k, err := json.Marshal(emptyAsList(p.Keywords))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal keywords")
	}
	t, err := json.Marshal(emptyAsList(p.Techniques))
	if err != nil {
		return "", "", "", eris.Wrap(err, "marshal techniques")
	}
	return string(a), string(k), string(t), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPaper(row scannable) (*model.Paper, error) {
	var (
		p                             model.Paper
		ingestKey                     string
		authors, keywords, techniques string
		openAccess, isDuplicate       int
		stage, reason                 string
	)

	err := row.Scan(
		&p.ID, &ingestKey, &p.Title, &p.NormalizedTitle, &p.DOI, &p.NormalizedDOI,
		&p.URL, &p.NormalizedURL, &authors, &p.Year, &p.Venue, &p.Abstract, &keywords, &p.Language,
		&p.SourceAPI, &openAccess, &p.Seq, &p.RetrievedAt, &isDuplicate, &p.DuplicateOf,
		&p.RelevanceScore, &p.Breakdown.Technique, &p.Breakdown.Context, &p.Breakdown.Quality, &p.Breakdown.Impact,
		&techniques, &p.StudyType, &stage, &reason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNoRows
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan paper")
	}

	if err := json.Unmarshal([]byte(authors), &p.Authors); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal authors")
	}
	if err := json.Unmarshal([]byte(keywords), &p.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	if err := json.Unmarshal([]byte(techniques), &p.Techniques); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal techniques")
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

	p.OpenAccess = openAccess != 0
	p.IsDuplicate = isDuplicate != 0
	p.SelectionStage = model.SelectionStage(stage)
	p.ExclusionReason = model.ExclusionReason(reason)
	return &p, nil
}
