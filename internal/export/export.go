// Package export writes the review corpus and funnel to CSV, XLSX and BibTeX
// files. Everything written here is read back from the store at export time;
// exports never see in-memory pipeline state.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/scholarsieve/review-cli/internal/funnel"
	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

// paperColumns defines the ordered output columns shared by CSV and XLSX.
var paperColumns = []string{
	"ID",
	"Title",
	"Authors",
	"Year",
	"Venue",
	"DOI",
	"URL",
	"Source API",
	"Language",
	"Open Access",
	"Is Duplicate",
	"Duplicate Of",
	"Relevance Score",
	"Technique Score",
	"Context Score",
	"Quality Score",
	"Impact Score",
	"Techniques",
	"Study Type",
	"Selection Stage",
	"Exclusion Reason",
}

// Exporter reads papers and funnel figures from the store.
type Exporter struct {
	store store.Store
	agg   *funnel.Aggregator
}

func New(s store.Store) *Exporter {
	return &Exporter{store: s, agg: funnel.New(s)}
}

// CSV writes the papers matching the filter as a CSV file.
func (e *Exporter) CSV(ctx context.Context, path string, f store.Filter) (int, error) {
	papers, err := e.store.ListPapers(ctx, f)
	if err != nil {
		return 0, eris.Wrap(err, "export: list papers")
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	if err := w.Write(paperColumns); err != nil {
		return 0, eris.Wrap(err, "export: write csv header")
	}
	for i := range papers {
		if err := w.Write(paperRow(&papers[i])); err != nil {
			return 0, eris.Wrap(err, "export: write csv row")
		}
	}
	w.Flush()
	return len(papers), eris.Wrap(w.Error(), "export: flush csv")
}

// XLSX writes a workbook with a papers sheet and a funnel sheet.
func (e *Exporter) XLSX(ctx context.Context, path string, f store.Filter) (int, error) {
	papers, err := e.store.ListPapers(ctx, f)
	if err != nil {
		return 0, eris.Wrap(err, "export: list papers")
	}
	stats, err := e.agg.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	wb := xlsx.NewFile()

	sheet, err := wb.AddSheet("Papers")
	if err != nil {
		return 0, eris.Wrap(err, "export: add papers sheet")
	}
	header := sheet.AddRow()
	for _, col := range paperColumns {
		header.AddCell().SetString(col)
	}
	for i := range papers {
		row := sheet.AddRow()
		for _, val := range paperRow(&papers[i]) {
			row.AddCell().SetString(val)
		}
	}

	if err := addFunnelSheet(wb, stats); err != nil {
		return 0, err
	}

	if err := wb.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save %s", path)
	}
	return len(papers), nil
}

func addFunnelSheet(wb *xlsx.File, stats *funnel.Stats) error {
	sheet, err := wb.AddSheet("Funnel")
	if err != nil {
		return eris.Wrap(err, "export: add funnel sheet")
	}

	addPair := func(label string, n int) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetInt(n)
	}

	addPair("Records retrieved", stats.TotalRecords)
	addPair("Duplicates removed", stats.Duplicates)
	addPair("Unique records", stats.Identified)
	addPair("Records screened", stats.Screened)
	addPair("Assessed for eligibility", stats.ReachedEligibility)
	addPair("Included", stats.Included)
	addPair("Excluded", stats.Excluded)
	addPair("Pending", stats.Pending)

	sheet.AddRow() // spacer
	for _, reason := range orderedReasons(stats.ExclusionReasons) {
		addPair("Excluded: "+string(reason), stats.ExclusionReasons[reason])
	}
	return nil
}

// BibTeX writes the included papers as @article entries. Only papers that
// survived the full funnel are cited.
func (e *Exporter) BibTeX(ctx context.Context, path string) (int, error) {
	papers, err := e.store.ListPapers(ctx, store.Filter{Stage: model.StageIncluded})
	if err != nil {
		return 0, eris.Wrap(err, "export: list included papers")
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer out.Close()

	keys := make(map[string]int)
	for i := range papers {
		entry := bibtexEntry(&papers[i], keys)
		if _, err := out.WriteString(entry); err != nil {
			return 0, eris.Wrap(err, "export: write bibtex entry")
		}
	}
	return len(papers), nil
}

func paperRow(p *model.Paper) []string {
	return []string{
		p.ID,
		p.Title,
		strings.Join(p.Authors, "; "),
		intOrEmpty(p.Year),
		p.Venue,
		p.DOI,
		p.URL,
		p.SourceAPI,
		p.Language,
		strconv.FormatBool(p.OpenAccess),
		strconv.FormatBool(p.IsDuplicate),
		p.DuplicateOf,
		strconv.FormatFloat(p.RelevanceScore, 'f', 2, 64),
		strconv.FormatFloat(p.Breakdown.Technique, 'f', 2, 64),
		strconv.FormatFloat(p.Breakdown.Context, 'f', 2, 64),
		strconv.FormatFloat(p.Breakdown.Quality, 'f', 2, 64),
		strconv.FormatFloat(p.Breakdown.Impact, 'f', 2, 64),
		strings.Join(p.Techniques, "; "),
		p.StudyType,
		string(p.SelectionStage),
		string(p.ExclusionReason),
	}
}

// bibtexEntry renders one @article entry. keys tracks citation keys already
// issued so collisions get a numeric suffix.
func bibtexEntry(p *model.Paper, keys map[string]int) string {
	key := citationKey(p)
	if n := keys[key]; n > 0 {
		keys[key] = n + 1
		key = key + strconv.Itoa(n)
	} else {
		keys[key] = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@article{%s,\n", key)
	fmt.Fprintf(&b, "  title = {%s},\n", escapeBibTeX(p.Title))
	if len(p.Authors) > 0 {
		fmt.Fprintf(&b, "  author = {%s},\n", escapeBibTeX(strings.Join(p.Authors, " and ")))
	}
	if p.Year != 0 {
		fmt.Fprintf(&b, "  year = {%d},\n", p.Year)
	}
	if p.Venue != "" {
		fmt.Fprintf(&b, "  journal = {%s},\n", escapeBibTeX(p.Venue))
	}
	if p.DOI != "" {
		fmt.Fprintf(&b, "  doi = {%s},\n", escapeBibTeX(p.DOI))
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "  url = {%s},\n", escapeBibTeX(p.URL))
	}
	b.WriteString("}\n\n")
	return b.String()
}

// citationKey builds lastnameYEARfirstword, lowercase ASCII only.
func citationKey(p *model.Paper) string {
	name := "anon"
	if len(p.Authors) > 0 {
		fields := strings.Fields(p.Authors[0])
		if len(fields) > 0 {
			name = fields[len(fields)-1]
		}
	}

	word := ""
	if fields := strings.Fields(p.NormalizedTitle); len(fields) > 0 {
		word = fields[0]
	}

	key := strings.ToLower(name)
	if p.Year != 0 {
		key += strconv.Itoa(p.Year)
	}
	key += word
	return sanitizeKey(key)
}

func sanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "untitled"
	}
	return b.String()
}

func escapeBibTeX(s string) string {
	r := strings.NewReplacer("{", "\\{", "}", "\\}", "\\", "\\\\", "%", "\\%", "&", "\\&")
	return r.Replace(s)
}

func intOrEmpty(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func orderedReasons(m map[model.ExclusionReason]int) []model.ExclusionReason {
	order := []model.ExclusionReason{
		model.ExcludedDuplicate,
		model.ExcludedLanguage,
		model.ExcludedYearRange,
		model.ExcludedShortAbstract,
		model.ExcludedNonResearch,
		model.ExcludedOffTopic,
		model.ExcludedLowScore,
	}
	out := make([]model.ExclusionReason, 0, len(m))
	for _, r := range order {
		if _, ok := m[r]; ok {
			out = append(out, r)
		}
	}
	return out
}
