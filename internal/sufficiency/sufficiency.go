// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sufficiency decides whether a ranked evidence pack covers the
// query well enough to synthesize an answer.
package sufficiency

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/normalize"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// typeWeights is each evidence type's contribution per item toward coverage.
var typeWeights = map[types.EvidenceType]float64{
	types.EvidenceGuideline:        25,
	types.EvidenceSystematicReview: 20,
	types.EvidenceRCT:              15,
	types.EvidenceObservational:    8,
	types.EvidenceDrugLabel:        6,
	types.EvidenceNarrative:        4,
	types.EvidenceWeb:              2,
	types.EvidenceOther:            3,
}

// highQuality lists the types whose absence is reported, best first.
var highQuality = []types.EvidenceType{
	types.EvidenceGuideline,
	types.EvidenceSystematicReview,
	types.EvidenceRCT,
	types.EvidenceObservational,
}

const (
	// perTypeCap bounds how many items of one type count toward coverage.
	perTypeCap = 2

	// diversityBonus is added per distinct high-quality type beyond the first.
	diversityBonus = 5
)

// Missing element prefixes; the pipeline reads entity gaps back as extra
// search variants.
const (
	MissingEntityPrefix = "entity:"
	MissingTypePrefix   = "type:"
)

// Directional phrases. Negative phrases are removed before positive ones
// are counted, so "did not reduce" is not also read as "reduce", and each
// counts double to outweigh the effect word that usually follows it.
var (
	negativeMarkers = []string{
		"no significant", "not significantly", "did not reduce", "did not improve",
		"failed to", "no benefit", "no difference", "not associated", "was not associated",
		"ineffective", "no effect", "increased risk", "increased mortality", "harmful",
		"worse outcomes", "not superior", "not recommended",
	}
	positiveMarkers = []string{
		"reduced", "reduces", "reduction", "improved", "improves", "improvement",
		"effective", "beneficial", "benefit", "lower risk", "decreased", "superior",
		"recommended", "associated with lower",
	}
)

// Analyzer computes a GapAnalysis for a pack.
type Analyzer struct {
	cfg types.SufficiencyConfig

	// Now supplies the current time for the staleness check.
	Now func() time.Time
}

// New returns an Analyzer. Zero thresholds fall back to the defaults.
func New(cfg types.SufficiencyConfig) *Analyzer {
	def := types.DefaultConfig().Sufficiency
	if cfg.ProceedThreshold <= 0 {
		cfg.ProceedThreshold = def.ProceedThreshold
	}
	if cfg.StalenessYears <= 0 {
		cfg.StalenessYears = def.StalenessYears
	}
	if cfg.ContradictionTopK <= 0 {
		cfg.ContradictionTopK = def.ContradictionTopK
	}
	return &Analyzer{cfg: cfg, Now: time.Now}
}

// Analyze scores the pack. An empty pack has coverage 0 and never proceeds.
func (a *Analyzer) Analyze(q types.QueryAnalysis, pack types.EvidencePack) types.GapAnalysis {
	g := types.GapAnalysis{QualityDistribution: make(map[types.EvidenceType]int)}
	for _, it := range pack.Items {
		g.QualityDistribution[evidenceType(it)]++
	}

	g.CoverageScore = Coverage(g.QualityDistribution)
	g.NewestYear = newestYear(pack)
	g.Stale = g.NewestYear > 0 && a.Now().Year()-g.NewestYear > a.cfg.StalenessYears
	g.Contradiction = contradiction(pack, a.cfg.ContradictionTopK)
	g.MissingElements = missing(q, pack, g.QualityDistribution)

	switch {
	case pack.Len() > 0 && g.CoverageScore >= a.cfg.ProceedThreshold:
		g.Recommendation = types.RecommendProceed
	case g.Stale:
		g.Recommendation = types.RecommendSearchRecent
	default:
		g.Recommendation = types.RecommendSearchSpecificGap
	}
	return g
}

func evidenceType(it types.RankedEvidence) types.EvidenceType {
	if it.EvidenceType == "" {
		return types.EvidenceOther
	}
	return it.EvidenceType
}

// Coverage returns the 0..100 coverage score for a type distribution.
func Coverage(dist map[types.EvidenceType]int) float64 {
	var score float64
	distinct := 0
	for t, n := range dist {
		score += typeWeights[t] * float64(min(n, perTypeCap))
	}
	for _, t := range highQuality {
		if dist[t] > 0 {
			distinct++
		}
	}
	if distinct > 1 {
		score += diversityBonus * float64(distinct-1)
	}
	return math.Min(score, 100)
}

func newestYear(pack types.EvidencePack) int {
	newest := 0
	for _, it := range pack.Items {
		if it.Year > newest {
			newest = it.Year
		}
	}
	return newest
}

// Direction classifies text as +1 (favourable), -1 (unfavourable), or 0.
func Direction(text string) int {
	t := " " + strings.ToLower(text) + " "
	neg := 0
	for _, m := range negativeMarkers {
		if n := strings.Count(t, m); n > 0 {
			neg += 2 * n
			t = strings.ReplaceAll(t, m, " ")
		}
	}
	pos := 0
	for _, m := range positiveMarkers {
		pos += strings.Count(t, m)
	}
	switch {
	case pos > neg:
		return 1
	case neg > pos:
		return -1
	default:
		return 0
	}
}

func contradiction(pack types.EvidencePack, k int) bool {
	var pos, neg bool
	for i, it := range pack.Items {
		if i >= k {
			break
		}
		switch Direction(it.Text()) {
		case 1:
			pos = true
		case -1:
			neg = true
		}
	}
	return pos && neg
}

// missing lists query entities that no item mentions, then absent
// high-quality evidence types.
func missing(q types.QueryAnalysis, pack types.EvidencePack, dist map[types.EvidenceType]int) []string {
	var out []string
	entities := q.Entities.All()
	sort.Strings(entities)
	for _, e := range entities {
		if !mentioned(e, q.Abbreviations, pack) {
			out = append(out, MissingEntityPrefix+e)
		}
	}
	for _, t := range highQuality {
		if dist[t] == 0 {
			out = append(out, MissingTypePrefix+string(t))
		}
	}
	return out
}

func mentioned(entity string, abbrevs map[string]string, pack types.EvidencePack) bool {
	forms := []string{entity}
	for abbr, exp := range abbrevs {
		if strings.EqualFold(abbr, entity) {
			forms = append(forms, exp)
		} else if strings.EqualFold(exp, entity) {
			forms = append(forms, abbr)
		}
	}
	for _, it := range pack.Items {
		text := it.Text()
		for _, f := range forms {
			if normalize.ContainsPhrase(text, f) {
				return true
			}
		}
	}
	return false
}

// MissingEntities returns the entity names among a gap's missing elements.
func MissingEntities(g types.GapAnalysis) []string {
	var out []string
	for _, m := range g.MissingElements {
		if e, ok := strings.CutPrefix(m, MissingEntityPrefix); ok {
			out = append(out, e)
		}
	}
	return out
}

// Summary renders the gap analysis as one line for prompts and logs.
func Summary(g types.GapAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "coverage %.0f/100", g.CoverageScore)
	if g.NewestYear > 0 {
		fmt.Fprintf(&b, ", newest evidence %d", g.NewestYear)
	}
	if g.Stale {
		b.WriteString(", evidence may be outdated")
	}
	if g.Contradiction {
		b.WriteString(", top sources disagree")
	}
	if len(g.MissingElements) > 0 {
		b.WriteString(", missing: ")
		b.WriteString(strings.Join(g.MissingElements, ", "))
	}
	return b.String()
}
