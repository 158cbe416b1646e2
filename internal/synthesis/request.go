// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synthesis

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/evidence-engine/internal/sufficiency"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Sections are the required answer headings, in order.
var Sections = []string{"Answer", "Evidence", "Limitations"}

// Request is the generation request sent to a Generator.
type Request struct {
	Model       string  `json:"model" yaml:"model"`
	System      string  `json:"system" yaml:"system"`
	Prompt      string  `json:"prompt" yaml:"prompt"`
	MaxWords    int     `json:"max_words" yaml:"max_words"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

const systemPrompt = `You are a clinical evidence synthesis assistant. You answer strictly from the numbered evidence you are given. You never invent studies, numbers, or sources. When the evidence is weak, conflicting, or outdated you say so plainly.`

var promptTmpl = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Question: {{.Query}}
Question type: {{.Intent}}

Evidence ({{len .Items}} items). These ranks are the only ones you may cite.
{{range .Items}}
[{{.Rank}}] {{.Title}}
Source: {{.Source}} | Type: {{.Type}} | Year: {{if .Year}}{{.Year}}{{else}}unknown{{end}} | URL: {{.URL}}
{{.Excerpt}}
{{end}}
Evidence assessment: {{.Gap}}

Rules:
- Write at most {{.MaxWords}} words.
- Use exactly these sections, in this order, each as a level-2 Markdown heading: {{join .Sections ", "}}.
- End every factual sentence with at least one citation marker of the form [[n]](url), where n is a rank listed above and url is that item's URL exactly as shown.
- Never cite a rank that is not listed. Never leave the url empty and never use a placeholder such as (url) or (#).
- If the evidence does not answer the question, say so under Answer instead of guessing.
`))

type promptItem struct {
	Rank    int
	Title   string
	Source  types.Source
	Type    types.EvidenceType
	Year    int
	URL     string
	Excerpt string
}

type promptData struct {
	Query    string
	Intent   types.Intent
	Items    []promptItem
	Gap      string
	MaxWords int
	Sections []string
}

// WordBudget returns BaseWords + complexity*ExtraWords, with complexity
// clamped to [0,1].
func WordBudget(cfg types.SynthesisConfig, complexity float64) int {
	complexity = min(max(complexity, 0), 1)
	return cfg.BaseWords + int(complexity*float64(cfg.ExtraWords)+0.5)
}

// tokensPerWord converts the word budget to an output token limit;
// citationTokens covers the markers, which are not counted as words.
const (
	tokensPerWord  = 1.4
	citationTokens = 30
)

// BuildRequest assembles the generation request for q over pack.
func BuildRequest(cfg types.SynthesisConfig, q types.QueryAnalysis, pack types.EvidencePack, gap types.GapAnalysis) (Request, error) {
	words := WordBudget(cfg, q.Complexity)
	excerptChars := cfg.ExcerptChars
	if excerptChars <= 0 {
		excerptChars = 1200
	}

	data := promptData{
		Query:    q.Text,
		Intent:   q.Intent,
		Gap:      sufficiency.Summary(gap),
		MaxWords: words,
		Sections: Sections,
	}
	for _, it := range pack.Items {
		data.Items = append(data.Items, promptItem{
			Rank:    it.Rank,
			Title:   it.Title,
			Source:  it.Source,
			Type:    it.EvidenceType,
			Year:    it.Year,
			URL:     it.URL,
			Excerpt: excerpt(it.Body, excerptChars),
		})
	}

	var b strings.Builder
	if err := promptTmpl.Execute(&b, data); err != nil {
		return Request{}, err
	}
	return Request{
		Model:       cfg.Model,
		System:      systemPrompt,
		Prompt:      b.String(),
		MaxWords:    words,
		MaxTokens:   int(float64(words)*tokensPerWord) + citationTokens*pack.Len(),
		Temperature: cfg.Temperature,
	}, nil
}

// excerpt cuts s to at most n bytes on a rune boundary, preferring the last
// space before the cut.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndexByte(s[:cut], ' '); i > n/2 {
		cut = i
	}
	return strings.TrimSpace(s[:cut]) + " ..."
}
