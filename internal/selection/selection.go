// Package selection applies the ordered eligibility checks of the review
// protocol. Checks run in a fixed priority order and classification stops at
// the first failing check, so exactly one exclusion reason is ever recorded
// per excluded record. Transitions are one-way within a pass; re-running is
// a full recompute, never an incremental patch.
package selection

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/scholarsieve/review-cli/internal/model"
)

// Criteria holds the configured screening thresholds. Thresholds are passed
// explicitly; the package keeps no mutable global configuration.
type Criteria struct {
	AllowedLanguages   []string // ISO 639-1 codes; empty allows everything
	YearMin            int
	YearMax            int
	MinAbstractWords   int
	InclusionThreshold float64
}

// Decision is the outcome of classifying one paper.
type Decision struct {
	Stage  model.SelectionStage
	Reason model.ExclusionReason
}

var (
	nonResearchRe = regexp.MustCompile(`\b(editorial|erratum|correction|retraction|comment|reply|letter to)\b`)
	offTopicRe    = regexp.MustCompile(`\b(biology|chemistry|physics|medicine|medical|health(care)?)\b`)
	eduContextRe  = regexp.MustCompile(`\b(education|educational|learning|teaching|student|classroom)\b`)
)

// Classify runs the ordered checks against one paper and returns its funnel
// stage. The relevance score must already be computed; Classify itself is a
// pure per-record function.
func Classify(p *model.Paper, c Criteria) Decision {
	if p.IsDuplicate {
		return excluded(model.ExcludedDuplicate)
	}

	if lang := DetectLanguage(p); lang != "" && len(c.AllowedLanguages) > 0 && !containsFold(c.AllowedLanguages, lang) {
		return excluded(model.ExcludedLanguage)
	}

	// A missing year is tolerated; only a year outside the configured range
	// excludes.
	if p.Year != 0 && (p.Year < c.YearMin || p.Year > c.YearMax) {
		return excluded(model.ExcludedYearRange)
	}

	if len(strings.Fields(p.Abstract)) < c.MinAbstractWords {
		return excluded(model.ExcludedShortAbstract)
	}

	text := strings.ToLower(p.Title + " " + p.Abstract)
	if nonResearchRe.MatchString(text) {
		return excluded(model.ExcludedNonResearch)
	}
	if offTopicRe.MatchString(text) && !eduContextRe.MatchString(text) {
		return excluded(model.ExcludedOffTopic)
	}

	// Screening passed; the paper reaches eligibility where the relevance
	// threshold decides.
	if p.RelevanceScore >= c.InclusionThreshold {
		return Decision{Stage: model.StageIncluded}
	}
	return excluded(model.ExcludedLowScore)
}

// DetectLanguage returns the ISO 639-1 code detected over title+abstract, or
// "" when detection is unreliable. Undetectable language never excludes a
// record on its own.
func DetectLanguage(p *model.Paper) string {
	text := strings.TrimSpace(p.Title + " " + p.Abstract)
	if len(text) < 20 {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func excluded(reason model.ExclusionReason) Decision {
	return Decision{Stage: model.StageExcluded, Reason: reason}
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
