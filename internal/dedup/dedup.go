// Package dedup labels near-duplicate papers without deleting data. Phase A
// matches exact identity keys (normalized DOI, else normalized URL); phase B
// partitions the remaining candidates into blocks by a cheap title-prefix key
// and compares titles within each block with a term-frequency cosine,
// confirmed by an edit-distance ratio. Ambiguous pairs stay canonical:
// precision is favored over recall at this boundary.
package dedup

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scholarsieve/review-cli/internal/model"
)

// Config tunes the detector.
type Config struct {
	SimilarityThreshold float64 // cosine threshold for phase B candidates
	FuzzyThreshold      float64 // edit-distance ratio confirmation threshold
	MinTitleTokens      int     // titles shorter than this are treated as unique
	BlockPrefixTokens   int     // leading tokens of the title forming the block key
	Workers             int     // concurrent phase B block shards
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.9,
		FuzzyThreshold:      0.95,
		MinTitleTokens:      3,
		BlockPrefixTokens:   2,
		Workers:             4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.FuzzyThreshold <= 0 {
		c.FuzzyThreshold = d.FuzzyThreshold
	}
	if c.MinTitleTokens <= 0 {
		c.MinTitleTokens = d.MinTitleTokens
	}
	if c.BlockPrefixTokens <= 0 {
		c.BlockPrefixTokens = d.BlockPrefixTokens
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Result summarizes one detector run.
type Result struct {
	Total      int `json:"total"`
	Canonical  int `json:"canonical"`
	Duplicates int `json:"duplicates"`
	Groups     int `json:"groups"` // groups with more than one member
}

// Detector labels duplicate papers. It is stateless between runs; every run
// is a full pass over the supplied corpus.
type Detector struct {
	cfg Config
}

// New creates a Detector, filling unset config fields with defaults.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// group is one set of papers describing the same publication. rep is the
// current canonical representative.
type group struct {
	rep     *model.Paper
	members []*model.Paper
}

// add inserts p into g and transfers representative status when p is
// strictly more complete: DOI presence beats none, then longer abstract,
// then earlier ingestion.
func (g *group) add(p *model.Paper) {
	g.members = append(g.members, p)
	if moreComplete(p, g.rep) {
		g.rep = p
	}
}

func (g *group) absorb(other *group) {
	for _, m := range other.members {
		g.members = append(g.members, m)
	}
	if moreComplete(other.rep, g.rep) {
		g.rep = other.rep
	}
}

// moreComplete reports whether a is strictly more complete than b.
func moreComplete(a, b *model.Paper) bool {
	aDOI, bDOI := a.NormalizedDOI != "", b.NormalizedDOI != ""
	if aDOI != bDOI {
		return aDOI
	}
	if len(a.Abstract) != len(b.Abstract) {
		return len(a.Abstract) > len(b.Abstract)
	}
	return a.Seq < b.Seq
}

// Run labels duplicates across the full paper set, mutating the papers in
// place. The pass is deterministic: records are considered in ingestion
// order and every tie-break is total, so re-running over an unchanged set
// reproduces identical flags.
func (d *Detector) Run(ctx context.Context, papers []*model.Paper) (*Result, error) {
	log := zap.L().With(zap.String("component", "dedup"))

	ordered := make([]*model.Paper, len(papers))
	copy(ordered, papers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	// Phase A: exact identity keys. The index must observe every previously
	// committed key, so this pass is strictly sequential.
	byKey := make(map[string]*group)
	var groups []*group
	for _, p := range ordered {
		key := p.IdentityKey()
		if key == "" {
			g := &group{rep: p, members: []*model.Paper{p}}
			groups = append(groups, g)
			continue
		}
		if g, ok := byKey[key]; ok {
			// First-seen wins: the earliest record with this key stays
			// canonical regardless of completeness.
			g.members = append(g.members, p)
			log.Debug("exact key match",
				zap.String("key", key),
				zap.String("paper", p.ID),
				zap.String("canonical", g.rep.ID),
			)
			continue
		}
		g := &group{rep: p, members: []*model.Paper{p}}
		byKey[key] = g
		groups = append(groups, g)
	}

	// Phase B: blocking + pairwise similarity over canonical titles. Each
	// group lands in exactly one block, so blocks are independent shards.
	blocks := make(map[string][]*group)
	var blockKeys []string
	for _, g := range groups {
		tokens := strings.Fields(g.rep.NormalizedTitle)
		if len(tokens) < d.cfg.MinTitleTokens {
			continue // too generic to compare reliably
		}
		prefix := d.cfg.BlockPrefixTokens
		if len(tokens) < prefix {
			prefix = len(tokens)
		}
		key := strings.Join(tokens[:prefix], " ")
		if _, ok := blocks[key]; !ok {
			blockKeys = append(blockKeys, key)
		}
		blocks[key] = append(blocks[key], g)
	}
	sort.Strings(blockKeys)

	merged := make(map[*group]*group) // absorbed group -> absorber

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(d.cfg.Workers)
	type mergePair struct{ into, from *group }
	mergesPerBlock := make([][]mergePair, len(blockKeys))

	for i, key := range blockKeys {
		block := blocks[key]
		if len(block) < 2 {
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Compare each group against the earlier survivors of this block,
			// in ingestion order of their first member.
			var local []mergePair
			absorbed := make(map[*group]*group)
			resolve := func(g *group) *group {
				for {
					next, ok := absorbed[g]
					if !ok {
						return g
					}
					g = next
				}
			}
			for j := 1; j < len(block); j++ {
				cand := block[j]
				for k := 0; k < j; k++ {
					target := resolve(block[k])
					if target == cand {
						continue
					}
					cos := cosineSimilarity(cand.rep.NormalizedTitle, target.rep.NormalizedTitle)
					if cos < d.cfg.SimilarityThreshold {
						continue
					}
					ratio := fuzzyRatio(cand.rep.NormalizedTitle, target.rep.NormalizedTitle)
					if ratio < d.cfg.FuzzyThreshold {
						// Vector similarity alone is not trusted for
						// short/generic titles; both records stay canonical.
						log.Debug("fuzzy confirmation rejected pair",
							zap.String("a", cand.rep.ID),
							zap.String("b", target.rep.ID),
							zap.Float64("cosine", cos),
							zap.Float64("ratio", ratio),
						)
						continue
					}
					local = append(local, mergePair{into: target, from: cand})
					absorbed[cand] = target
					log.Debug("near-duplicate confirmed",
						zap.String("a", cand.rep.ID),
						zap.String("b", target.rep.ID),
						zap.Float64("cosine", cos),
						zap.Float64("ratio", ratio),
					)
					break
				}
			}
			mergesPerBlock[i] = local
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Apply merges sequentially so group membership stays consistent.
	for _, local := range mergesPerBlock {
		for _, m := range local {
			into := m.into
			for {
				next, ok := merged[into]
				if !ok {
					break
				}
				into = next
			}
			if into == m.from {
				continue
			}
			into.absorb(m.from)
			merged[m.from] = into
		}
	}

	// Finalize flags. Every member of a group points duplicate_of at the
	// group's single representative.
	res := &Result{Total: len(ordered)}
	for _, g := range groups {
		if _, gone := merged[g]; gone {
			continue
		}
		repKey := referenceKey(g.rep)
		g.rep.IsDuplicate = false
		g.rep.DuplicateOf = ""
		res.Canonical++
		if len(g.members) > 1 {
			res.Groups++
		}
		for _, m := range g.members {
			if m == g.rep {
				continue
			}
			m.IsDuplicate = true
			m.DuplicateOf = repKey
			res.Duplicates++
		}
	}

	log.Info("dedup pass complete",
		zap.Int("total", res.Total),
		zap.Int("canonical", res.Canonical),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("groups", res.Groups),
	)
	return res, nil
}

// referenceKey is the value stored in duplicate_of: the canonical record's
// identity key, or its id when the record has neither DOI nor URL.
func referenceKey(p *model.Paper) string {
	if key := p.IdentityKey(); key != "" {
		return key
	}
	return "id:" + p.ID
}
