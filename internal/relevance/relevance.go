// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance scores candidates lexically against the analyzed query
// and rejects off-topic records before the semantic stage.
package relevance

import (
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/evidence-engine/internal/normalize"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Rejection records a candidate removed by the filter.
type Rejection struct {
	Candidate types.EvidenceCandidate `json:"candidate" yaml:"candidate"`
	Score     float64                 `json:"score" yaml:"score"`
	Reason    string                  `json:"reason" yaml:"reason"`
}

// Breakdown itemizes a score.
type Breakdown struct {
	Total    float64  `json:"total" yaml:"total"`
	Matched  []string `json:"matched,omitempty" yaml:"matched,omitempty"`
	Phrase   bool     `json:"phrase" yaml:"phrase"`
	Overlap  float64  `json:"overlap" yaml:"overlap"`
	OffTopic []string `json:"off_topic,omitempty" yaml:"off_topic,omitempty"`
}

// Filter applies the lexical relevance score and the inclusive cutoff.
type Filter struct {
	cfg types.RelevanceConfig
}

// New returns a Filter. A config with no weights set uses the defaults.
func New(cfg types.RelevanceConfig) *Filter {
	if cfg.DiseaseWeight == 0 && cfg.DrugWeight == 0 && cfg.ProcedureWeight == 0 &&
		cfg.PhraseBonus == 0 && cfg.OverlapWeight == 0 {
		def := types.DefaultConfig().Relevance
		def.Cutoff = cfg.Cutoff
		if cfg.OffTopicMarkers != nil {
			def.OffTopicMarkers = cfg.OffTopicMarkers
		}
		cfg = def
	}
	return &Filter{cfg: cfg}
}

// Cutoff returns the minimum retained score.
func (f *Filter) Cutoff() float64 { return f.cfg.Cutoff }

// Score returns the candidate's relevance to q in [0,100].
func (f *Filter) Score(q types.QueryAnalysis, c types.EvidenceCandidate) float64 {
	return f.Explain(q, c).Total
}

// Explain returns the score with its components.
func (f *Filter) Explain(q types.QueryAnalysis, c types.EvidenceCandidate) Breakdown {
	return f.prepare(q).score(c)
}

// Apply scores every candidate, sets LexicalScore on the ones kept, and
// returns the kept candidates in their incoming order. A score equal to the
// cutoff is kept.
func (f *Filter) Apply(q types.QueryAnalysis, cands []types.EvidenceCandidate) ([]types.EvidenceCandidate, []Rejection) {
	p := f.prepare(q)
	kept := make([]types.EvidenceCandidate, 0, len(cands))
	var rejected []Rejection
	for _, c := range cands {
		b := p.score(c)
		if b.Total < f.cfg.Cutoff {
			rejected = append(rejected, Rejection{Candidate: c, Score: b.Total, Reason: reason(b, f.cfg.Cutoff)})
			continue
		}
		c.LexicalScore = b.Total
		kept = append(kept, c)
	}
	return kept, rejected
}

func reason(b Breakdown, cutoff float64) string {
	var parts []string
	if len(b.Matched) == 0 {
		parts = append(parts, "no query entities matched")
	}
	if len(b.OffTopic) > 0 {
		parts = append(parts, "off-topic: "+strings.Join(b.OffTopic, ", "))
	}
	msg := fmt.Sprintf("score %.1f below cutoff %.1f", b.Total, cutoff)
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

// entityTerm is one query entity and the surface forms that count as a match.
type entityTerm struct {
	name   string
	forms  []string
	weight float64
}

type prepared struct {
	cfg      types.RelevanceConfig
	entities []entityTerm
	phrases  []string
	terms    []string
	offTopic []string
}

func (f *Filter) prepare(q types.QueryAnalysis) prepared {
	p := prepared{cfg: f.cfg, terms: normalize.Tokens(q.Text)}

	add := func(names []string, weight float64) {
		for _, n := range names {
			p.entities = append(p.entities, entityTerm{name: n, forms: surfaceForms(n, q.Abbreviations), weight: weight})
		}
	}
	add(q.Entities.Diseases, f.cfg.DiseaseWeight)
	add(q.Entities.Drugs, f.cfg.DrugWeight)
	add(q.Entities.Procedures, f.cfg.ProcedureWeight)

	// Single-word variants would turn the phrase bonus into a term match.
	for _, v := range q.Variants() {
		if len(strings.Fields(normalize.NormalizeTitle(v))) >= 2 {
			p.phrases = append(p.phrases, v)
		}
	}
	for _, exp := range q.Abbreviations {
		if len(strings.Fields(normalize.NormalizeTitle(exp))) >= 2 {
			p.phrases = append(p.phrases, exp)
		}
	}

	// A marker the user asked about is not off-topic.
	for _, m := range f.cfg.OffTopicMarkers {
		if !normalize.ContainsPhrase(q.Text, m) {
			p.offTopic = append(p.offTopic, m)
		}
	}
	return p
}

// surfaceForms returns the entity plus any abbreviation linked to it in
// either direction.
func surfaceForms(entity string, abbrevs map[string]string) []string {
	forms := []string{entity}
	for abbr, exp := range abbrevs {
		switch {
		case strings.EqualFold(abbr, entity):
			forms = append(forms, exp)
		case strings.EqualFold(exp, entity):
			forms = append(forms, abbr)
		}
	}
	return forms
}

func (p prepared) score(c types.EvidenceCandidate) Breakdown {
	text := " " + normalize.NormalizeTitle(c.Text()) + " "
	has := func(phrase string) bool {
		n := normalize.NormalizeTitle(phrase)
		return n != "" && strings.Contains(text, " "+n+" ")
	}

	var b Breakdown
	for _, e := range p.entities {
		for _, form := range e.forms {
			if has(form) {
				b.Total += e.weight
				b.Matched = append(b.Matched, e.name)
				break
			}
		}
	}

	for _, ph := range p.phrases {
		if has(ph) {
			b.Phrase = true
			b.Total += p.cfg.PhraseBonus
			break
		}
	}

	if len(p.terms) > 0 {
		found := 0
		for _, t := range p.terms {
			if strings.Contains(text, " "+t+" ") {
				found++
			}
		}
		b.Overlap = float64(found) / float64(len(p.terms))
		b.Total += b.Overlap * p.cfg.OverlapWeight
	}

	for _, m := range p.offTopic {
		if has(m) {
			b.OffTopic = append(b.OffTopic, m)
			b.Total -= p.cfg.OffTopicPenalty
		}
	}

	b.Total = math.Round(math.Min(math.Max(b.Total, 0), 100)*100) / 100
	return b
}
