// Package normalize turns raw harvested records into the canonical Paper
// shape and derives the normalized identity keys used by the duplicate
// detector. It makes no identity decisions itself.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/scholarsieve/review-cli/internal/model"
)

// ErrInvalidRecord marks a raw record with no usable title. Such records are
// rejected at this boundary and never reach the canonical store.
var ErrInvalidRecord = eris.New("normalize: invalid record")

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Record builds a Paper from one raw source record. The caller supplies the
// ingestion ordinal; retrieved_at is stamped here and is the only place the
// wall clock is consulted.
func Record(raw model.RawRecord, seq int64, now time.Time) (*model.Paper, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, eris.Wrap(ErrInvalidRecord, "missing title")
	}

	p := &model.Paper{
		ID:              uuid.New().String(),
		Title:           title,
		NormalizedTitle: Title(title),
		DOI:             strings.TrimSpace(raw.DOI),
		NormalizedDOI:   DOI(raw.DOI),
		URL:             strings.TrimSpace(raw.URL),
		NormalizedURL:   URL(raw.URL),
		Authors:         raw.Authors,
		Year:            raw.Year,
		Venue:           strings.TrimSpace(raw.Venue),
		Abstract:        strings.TrimSpace(raw.Abstract),
		Keywords:        raw.Keywords,
		SourceAPI:       raw.SourceAPI,
		OpenAccess:      raw.OpenAccess,
		Seq:             seq,
		RetrievedAt:     now.UTC(),
		SelectionStage:  model.StageScreening,
		CreatedAt:       now.UTC(),
		UpdatedAt:       now.UTC(),
	}
	return p, nil
}

// Title lowercases, strips diacritics and punctuation, and collapses
// whitespace so lexical comparison is stable across source formatting.
func Title(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			// Punctuation becomes a space so "data-driven" and "data driven"
			// normalize identically.
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DOI lowercases and strips resolver prefixes and trailing punctuation.
// Returns "" when no DOI is present.
func DOI(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, prefix := range []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi.org/",
		"doi:",
	} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimRight(s, ".,;:)")
	return strings.TrimSpace(s)
}

// URL normalizes a URL into a fallback identity key: lowercase, no scheme,
// no leading www, no fragment, no trailing slash.
func URL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "/")
}
