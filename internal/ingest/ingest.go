// Package ingest loads harvested records from CSV and JSONL dumps and
// persists them as papers. Re-ingesting a file is safe: records already in
// the store are recognized by their ingest key and skipped.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/normalize"
	"github.com/scholarsieve/review-cli/internal/store"
)

// Report summarizes one ingestion run.
type Report struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
	Rejected int `json:"rejected"`
}

// Ingestor writes normalized records into the store.
type Ingestor struct {
	store store.Store
}

// bulkCreator is satisfied by stores that can persist a batch in one
// round trip (the Postgres store via COPY). Stores without it get one
// CreatePaper call per record.
type bulkCreator interface {
	BulkCreatePapers(ctx context.Context, papers []model.Paper) (int64, error)
}

func New(s store.Store) *Ingestor {
	return &Ingestor{store: s}
}

// Ingest normalizes and persists a batch of raw records. Records without a
// usable title are rejected; records whose ingest key already exists are
// skipped. Sequence numbers continue from the highest already stored, so the
// arrival order across batches stays total.
func (in *Ingestor) Ingest(ctx context.Context, records []model.RawRecord) (*Report, error) {
	log := zap.L().With(zap.String("component", "ingest"))

	seq, err := in.store.MaxSeq(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: max seq")
	}

	report := &Report{}
	now := time.Now().UTC()

	var batch []model.Paper
	seen := make(map[string]struct{})

	for i, raw := range records {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "ingest: cancelled")
		}

		paper, err := normalize.Record(raw, seq+1, now)
		if err != nil {
			if eris.Is(err, normalize.ErrInvalidRecord) {
				log.Warn("ingest: rejected record",
					zap.Int("index", i),
					zap.String("source_api", raw.SourceAPI),
					zap.Error(err),
				)
				report.Rejected++
				continue
			}
			return report, eris.Wrapf(err, "ingest: normalize record %d", i)
		}

		key := paper.IngestKey()
		if _, ok := seen[key]; ok {
			report.Skipped++
			continue
		}
		existing, err := in.store.FindByIngestKey(ctx, key)
		if err != nil {
			return report, eris.Wrapf(err, "ingest: lookup record %d", i)
		}
		if existing != nil {
			report.Skipped++
			continue
		}

		seen[key] = struct{}{}
		batch = append(batch, *paper)
		seq++
	}

	if err := in.persist(ctx, batch); err != nil {
		return report, err
	}
	report.Accepted = len(batch)

	log.Info("ingest: batch complete",
		zap.Int("accepted", report.Accepted),
		zap.Int("skipped", report.Skipped),
		zap.Int("rejected", report.Rejected),
	)
	return report, nil
}

func (in *Ingestor) persist(ctx context.Context, batch []model.Paper) error {
	if len(batch) == 0 {
		return nil
	}
	if bc, ok := in.store.(bulkCreator); ok {
		if _, err := bc.BulkCreatePapers(ctx, batch); err != nil {
			return eris.Wrap(err, "ingest: persist batch")
		}
		return nil
	}
	for i := range batch {
		if err := in.store.CreatePaper(ctx, &batch[i]); err != nil {
			return eris.Wrapf(err, "ingest: persist paper %s", batch[i].ID)
		}
	}
	return nil
}

// ReadCSV parses a header-first CSV dump into raw records. The authors and
// keywords columns hold semicolon-separated lists.
func ReadCSV(r io.Reader) ([]model.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read csv header")
	}

	var records []model.RawRecord
	for {
		var raw model.RawRecord
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "ingest: decode csv row")
		}
		raw.Authors = splitList(raw.AuthorsRaw)
		raw.Keywords = splitList(raw.KeywordsRaw)
		raw.AuthorsRaw, raw.KeywordsRaw = "", ""
		records = append(records, raw)
	}
	return records, nil
}

// ReadJSONL parses newline-delimited JSON records. Blank lines are allowed.
func ReadJSONL(r io.Reader) ([]model.RawRecord, error) {
	var records []model.RawRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var raw model.RawRecord
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, eris.Wrapf(err, "ingest: decode jsonl line %d", line)
		}
		records = append(records, raw)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read jsonl")
	}
	return records, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
