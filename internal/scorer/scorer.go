// Package scorer computes the deterministic 0-10 relevance score. Scoring is
// a pure function of a record's normalized text content: no external calls,
// no randomness, so recomputing over unchanged content yields an identical
// value and every decision stays explainable via the persisted breakdown.
package scorer

import (
	"strings"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/normalize"
)

// Sub-score caps, documented in the breakdown field comments.
const (
	maxTechnique = 3.0
	maxContext   = 3.0
	maxQuality   = 2.0
	maxImpact    = 2.0
)

// studyTypes is evaluated in order; the first matching entry wins so the
// derived tag is deterministic.
var studyTypes = []struct {
	name  string
	terms []string
}{
	{"experimental", []string{"randomized controlled trial", "controlled study", "experimental study", "experiment"}},
	{"quasi-experimental", []string{"quasi experimental", "pre post", "comparison group"}},
	{"case-study", []string{"case study", "case studies", "pilot study"}},
	{"user-study", []string{"user study", "usability test", "user experience"}},
	{"survey", []string{"survey", "questionnaire", "interview"}},
	{"review", []string{"systematic review", "meta analysis", "literature review", "review"}},
	{"proposal", []string{"position paper", "proposal", "framework", "architecture"}},
}

// Scorer assigns relevance scores against a fixed lexicon.
type Scorer struct {
	lex Lexicon
}

// New creates a Scorer over the given lexicon.
func New(lex Lexicon) *Scorer {
	return &Scorer{lex: lex.normalized()}
}

// Assessment is the result of scoring one paper.
type Assessment struct {
	Breakdown  model.ScoreBreakdown
	Total      float64
	Techniques []string
	StudyType  string
}

// Score evaluates a paper's textual content. Missing optional fields simply
// contribute zero to their sub-score.
func (s *Scorer) Score(p *model.Paper) Assessment {
	text := searchText(p)

	technique, matched := saturatingCount(text, s.lex.Technique, maxTechnique)
	context, _ := saturatingCount(text, s.lex.Domain, maxContext)

	var quality float64
	if len(strings.Fields(p.Abstract)) >= 30 {
		quality += 1.0
	} else if p.Abstract != "" {
		quality += 0.5
	}
	if p.Year != 0 {
		quality += 0.5
	}
	if p.Venue != "" {
		quality += 0.5
	}
	if quality > maxQuality {
		quality = maxQuality
	}

	var impact float64
	if p.NormalizedDOI != "" {
		impact += 1.0
	}
	if p.OpenAccess {
		impact += 1.0
	}
	if impact > maxImpact {
		impact = maxImpact
	}

	breakdown := model.ScoreBreakdown{
		Technique: technique,
		Context:   context,
		Quality:   quality,
		Impact:    impact,
	}

	return Assessment{
		Breakdown:  breakdown,
		Total:      breakdown.Total(),
		Techniques: matched,
		StudyType:  studyType(text),
	}
}

// searchText joins title, abstract and keywords into one normalized,
// space-padded haystack for word-boundary matching.
func searchText(p *model.Paper) string {
	parts := []string{p.NormalizedTitle, normalize.Title(p.Abstract)}
	for _, k := range p.Keywords {
		parts = append(parts, normalize.Title(k))
	}
	return " " + strings.Join(parts, " ") + " "
}

// saturatingCount counts distinct matched terms, one point each, capped at
// max. Lexicon order is fixed, so the matched list is deterministic.
func saturatingCount(text string, terms []string, max float64) (float64, []string) {
	var score float64
	var matched []string
	for _, term := range terms {
		if strings.Contains(text, " "+term+" ") {
			matched = append(matched, term)
			if score < max {
				score++
			}
		}
	}
	return score, matched
}

func studyType(text string) string {
	for _, st := range studyTypes {
		for _, term := range st.terms {
			if strings.Contains(text, " "+term+" ") {
				return st.name
			}
		}
	}
	return ""
}
