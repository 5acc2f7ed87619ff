package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/scholarsieve/review-cli/internal/normalize"
)

// Lexicon holds the recognized term lists behind the lexical sub-scores.
// Terms are matched against normalized text, so multiword phrases and
// diacritics are handled uniformly.
type Lexicon struct {
	Technique []string `yaml:"technique"`
	Domain    []string `yaml:"domain"`
}

// DefaultLexicon returns the built-in term lists for reviews of
// computational techniques in mathematics education.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Technique: []string{
			"machine learning",
			"deep learning",
			"data mining",
			"neural network",
			"learning analytics",
			"educational data mining",
			"intelligent tutor",
			"adaptive learning",
			"personalized learning",
			"student modeling",
			"random forest",
			"decision tree",
			"clustering",
			"classification",
			"regression",
			"natural language processing",
			"artificial intelligence",
			"predictive model",
		},
		Domain: []string{
			"mathematics",
			"matematica",
			"algebra",
			"geometry",
			"geometria",
			"calculus",
			"calculo",
			"fractions",
			"arithmetic",
			"trigonometry",
			"numeracy",
			"problem solving",
			"mathematical reasoning",
		},
	}
}

// LoadLexicon reads a lexicon from a YAML file, normalizing every term so
// matching stays consistent with normalized record text. Empty sections fall
// back to the defaults.
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, eris.Wrapf(err, "scorer: read lexicon %s", path)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return Lexicon{}, eris.Wrap(err, "scorer: parse lexicon")
	}

	def := DefaultLexicon()
	if len(lex.Technique) == 0 {
		lex.Technique = def.Technique
	}
	if len(lex.Domain) == 0 {
		lex.Domain = def.Domain
	}
	return lex.normalized(), nil
}

func (l Lexicon) normalized() Lexicon {
	out := Lexicon{
		Technique: make([]string, 0, len(l.Technique)),
		Domain:    make([]string, 0, len(l.Domain)),
	}
	for _, t := range l.Technique {
		if n := normalize.Title(t); n != "" {
			out.Technique = append(out.Technique, n)
		}
	}
	for _, t := range l.Domain {
		if n := normalize.Title(t); n != "" {
			out.Domain = append(out.Domain, n)
		}
	}
	return out
}
