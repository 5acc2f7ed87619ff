package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

func newSeededExporter(t *testing.T) *Exporter {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	mk := func(seq int64, title string, stage model.SelectionStage, reason model.ExclusionReason) {
		p := &model.Paper{
			ID:              uuid.NewString(),
			Title:           title,
			NormalizedTitle: title,
			NormalizedDOI:   uuid.NewString(),
			DOI:             "10.1/" + uuid.NewString()[:8],
			Authors:         []string{"Ada Lovelace", "Alan Turing"},
			Year:            2021,
			Venue:           "LAK",
			SourceAPI:       "openalex",
			Seq:             seq,
			RetrievedAt:     now,
			SelectionStage:  model.StageScreening,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		require.NoError(t, st.CreatePaper(ctx, p))
		p.SelectionStage = stage
		p.ExclusionReason = reason
		p.RelevanceScore = 6.5
		require.NoError(t, st.UpdateDerived(ctx, p))
	}

	mk(1, "included paper one", model.StageIncluded, "")
	mk(2, "included paper two", model.StageIncluded, "")
	mk(3, "excluded paper", model.StageExcluded, model.ExcludedOffTopic)

	return New(st)
}

func TestCSV(t *testing.T) {
	e := newSeededExporter(t)
	path := filepath.Join(t.TempDir(), "papers.csv")

	n, err := e.CSV(context.Background(), path, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4) // header + 3 papers
	assert.Equal(t, paperColumns, rows[0])
	assert.Equal(t, "included paper one", rows[1][1])
	assert.Equal(t, "Ada Lovelace; Alan Turing", rows[1][2])
	assert.Equal(t, "included", rows[1][19])
	assert.Equal(t, "off_topic", rows[3][20])
}

func TestCSV_StageFilter(t *testing.T) {
	e := newSeededExporter(t)
	path := filepath.Join(t.TempDir(), "included.csv")

	n, err := e.CSV(context.Background(), path, store.Filter{Stage: model.StageIncluded})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestXLSX(t *testing.T) {
	e := newSeededExporter(t)
	path := filepath.Join(t.TempDir(), "review.xlsx")

	n, err := e.XLSX(context.Background(), path, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	papers, ok := wb.Sheet["Papers"]
	require.True(t, ok)
	require.GreaterOrEqual(t, len(papers.Rows), 4)
	assert.Equal(t, "ID", papers.Rows[0].Cells[0].String())
	assert.Equal(t, "included paper one", papers.Rows[1].Cells[1].String())

	funnelSheet, ok := wb.Sheet["Funnel"]
	require.True(t, ok)
	assert.Equal(t, "Records retrieved", funnelSheet.Rows[0].Cells[0].String())
	assert.Equal(t, "3", funnelSheet.Rows[0].Cells[1].String())
	assert.Equal(t, "Included", funnelSheet.Rows[5].Cells[0].String())
	assert.Equal(t, "2", funnelSheet.Rows[5].Cells[1].String())
}

func TestBibTeX(t *testing.T) {
	e := newSeededExporter(t)
	path := filepath.Join(t.TempDir(), "included.bib")

	n, err := e.BibTeX(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // only included papers are cited

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "@article{lovelace2021included,")
	assert.Contains(t, text, "@article{lovelace2021included1,") // key collision gets a suffix
	assert.Contains(t, text, "author = {Ada Lovelace and Alan Turing},")
	assert.Contains(t, text, "year = {2021},")
	assert.NotContains(t, text, "excluded paper")
}

func TestCitationKey(t *testing.T) {
	p := &model.Paper{
		Authors:         []string{"Grace Brewster Hopper"},
		Year:            2019,
		NormalizedTitle: "compilers and education",
	}
	assert.Equal(t, "hopper2019compilers", citationKey(p))

	assert.Equal(t, "anon", citationKey(&model.Paper{}))
}

func TestEscapeBibTeX(t *testing.T) {
	assert.Equal(t, "100\\% \\{sure\\} \\& done", escapeBibTeX("100% {sure} & done"))
}
