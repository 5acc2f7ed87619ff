package dedup

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
)

// termFreq builds a term-frequency vector from whitespace tokens.
func termFreq(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// cosineSimilarity computes the term-frequency weighted cosine similarity
// between two normalized titles. 1.0 means identical token multisets.
func cosineSimilarity(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	va := termFreq(ta)
	vb := termFreq(tb)

	var dot, na, nb float64
	for term, fa := range va {
		na += fa * fa
		if fb, ok := vb[term]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range vb {
		nb += fb * fb
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// fuzzyRatio is the edit-distance based confirmation measure. It catches
// pairs the token-level cosine accepts even though the character sequences
// diverge (reorderings, short generic titles).
func fuzzyRatio(a, b string) float64 {
	return levenshtein.Similarity(a, b, nil)
}
