// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a free-text medical question into a QueryAnalysis:
// abbreviations, entities, intent, search variants, required sources, and
// a complexity score. Analysis is rule-based over an embedded lexicon.
package query

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/normalize"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon is the vocabulary the analyzer matches against.
type Lexicon struct {
	Abbreviations map[string]string `yaml:"abbreviations"`
	Diseases      []string          `yaml:"diseases"`
	Drugs         []string          `yaml:"drugs"`
	DrugSuffixes  []string          `yaml:"drug_suffixes"`
	Procedures    []string          `yaml:"procedures"`
	Intents       []IntentRule      `yaml:"intents"`
}

// IntentRule maps keywords to an intent.
type IntentRule struct {
	Intent   types.Intent `yaml:"intent"`
	Keywords []string     `yaml:"keywords"`
}

// ParseLexicon decodes a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	return &lex, nil
}

// DefaultLexicon returns the embedded lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexicon)
	if err != nil {
		panic(err)
	}
	return lex
}

// maxVariants bounds the search variants produced per question.
const maxVariants = 3

// Analyzer builds QueryAnalysis values. It is safe for concurrent use.
type Analyzer struct {
	lex *Lexicon
}

// NewAnalyzer returns an analyzer over lex, or the embedded lexicon when
// lex is nil.
func NewAnalyzer(lex *Lexicon) *Analyzer {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Analyzer{lex: lex}
}

// Analyze parses text. The first search variant is always the trimmed
// question itself; an empty question yields an analysis with no variants.
func (a *Analyzer) Analyze(text string) types.QueryAnalysis {
	text = strings.Join(strings.Fields(text), " ")
	q := types.QueryAnalysis{Text: text, Intent: types.IntentGeneral}
	if text == "" {
		return q
	}

	words := strings.Fields(normalize.NormalizeTitle(text))
	q.Abbreviations = a.abbreviations(words)
	expanded := expand(words, q.Abbreviations)
	forms := []string{strings.Join(words, " "), expanded}

	q.Entities = types.Entities{
		Diseases:   a.match(forms, a.lex.Diseases),
		Drugs:      a.drugs(forms),
		Procedures: a.match(forms, a.lex.Procedures),
	}
	q.Intent = a.intent(normalize.NormalizeTitle(text))
	q.SearchVariants = variants(text, expanded, q)
	q.RequiredSources = requiredSources(q)
	q.Complexity = complexity(words, q)
	return q
}

func (a *Analyzer) abbreviations(words []string) map[string]string {
	out := make(map[string]string)
	for _, w := range words {
		if exp, ok := a.lex.Abbreviations[w]; ok {
			out[w] = exp
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// expand returns the normalized question with abbreviations replaced.
func expand(words []string, abbrevs map[string]string) string {
	out := make([]string, len(words))
	for i, w := range words {
		if exp, ok := abbrevs[w]; ok {
			out[i] = exp
		} else {
			out[i] = w
		}
	}
	return strings.Join(out, " ")
}

// match returns the lexicon terms found in any of texts. A term contained
// in a longer matched term is dropped ("heart failure" under "heart failure
// with reduced ejection fraction").
func (a *Analyzer) match(texts []string, terms []string) []string {
	var found []string
	for _, t := range terms {
		for _, text := range texts {
			if normalize.ContainsPhrase(text, t) {
				found = append(found, t)
				break
			}
		}
	}
	var out []string
	for _, t := range found {
		covered := false
		for _, u := range found {
			if u != t && len(u) > len(t) && normalize.ContainsPhrase(u, t) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, t)
		}
	}
	return sortedSet(out)
}

func (a *Analyzer) drugs(texts []string) []string {
	found := a.match(texts, a.lex.Drugs)
	known := make(map[string]bool, len(found))
	for _, d := range found {
		for _, w := range strings.Fields(d) {
			known[w] = true
		}
	}
	for _, w := range strings.Fields(texts[0]) {
		if known[w] || len(w) < 6 {
			continue
		}
		for _, suf := range a.lex.DrugSuffixes {
			if strings.HasSuffix(w, suf) {
				found = append(found, w)
				break
			}
		}
	}
	return sortedSet(found)
}

func (a *Analyzer) intent(text string) types.Intent {
	for _, rule := range a.lex.Intents {
		for _, kw := range rule.Keywords {
			if normalize.ContainsPhrase(text, kw) {
				return rule.Intent
			}
		}
	}
	return types.IntentGeneral
}

// variants returns the question, its abbreviation-expanded form, and an
// entity-only form, without repeats.
func variants(text, expanded string, q types.QueryAnalysis) []string {
	out := []string{text}
	seen := map[string]bool{normalize.NormalizeTitle(text): true}
	add := func(v string) {
		key := normalize.NormalizeTitle(v)
		if key == "" || seen[key] || len(out) >= maxVariants {
			return
		}
		seen[key] = true
		out = append(out, v)
	}
	if len(q.Abbreviations) > 0 {
		add(expanded)
	}
	if ents := q.Entities.All(); len(ents) > 0 {
		v := strings.Join(ents, " ")
		if q.Intent != types.IntentGeneral && q.Intent != types.IntentComparison {
			v += " " + string(q.Intent)
		}
		add(v)
	}
	return out
}

func requiredSources(q types.QueryAnalysis) map[types.Source]bool {
	req := make(map[types.Source]bool)
	if len(q.Entities.Drugs) > 0 && (q.Intent == types.IntentDosing || q.Intent == types.IntentSafety) {
		req[types.SourceDailyMed] = true
	}
	if q.Intent == types.IntentGuideline || q.Intent == types.IntentTreatment {
		req[types.SourceGuidelines] = true
	}
	if len(req) == 0 {
		return nil
	}
	return req
}

// complexity scores how much answer the question needs, in [0,1].
func complexity(words []string, q types.QueryAnalysis) float64 {
	c := 0.2
	c += 0.1 * float64(min(len(q.Entities.All()), 4))
	if q.Intent == types.IntentComparison {
		c += 0.2
	}
	if len(words) > 15 {
		c += 0.1
	}
	if len(words) > 30 {
		c += 0.1
	}
	return min(c, 1)
}

func sortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Route returns the first-round routing: every source enabled in cfg plus
// every source the query requires.
func Route(q types.QueryAnalysis, cfg types.RetrievalConfig) types.Routing {
	r := make(types.Routing)
	for name, sc := range cfg.Sources {
		if sc.Enabled {
			r[types.Source(name)] = true
		}
	}
	for s, on := range q.RequiredSources {
		if on {
			r[s] = true
		}
	}
	return r
}
