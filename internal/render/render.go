// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render writes answers, evidence packs, and query analyses for
// humans and tools: plain text, JSON, YAML answer files, and CSL-YAML
// bibliographies.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSL  Format = "csl"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML, FormatCSL:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, yaml, or csl)", s)
	}
}

// Answer writes a in the given format.
func Answer(w io.Writer, a *types.Answer, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, a)
	case FormatYAML:
		return writeYAML(w, NewAnswerFile(a))
	case FormatCSL:
		return CSL(w, a.Citations)
	default:
		AnswerText(w, a)
		return nil
	}
}

// AnswerText writes the answer body followed by its reference list and a
// one-line accounting footer.
func AnswerText(w io.Writer, a *types.Answer) {
	if a.Warning != "" {
		fmt.Fprintf(w, "WARNING: %s\n\n", a.Warning)
	}
	fmt.Fprintln(w, strings.TrimSpace(a.Text))

	if len(a.Citations) > 0 {
		fmt.Fprintln(w, "\nReferences")
		fmt.Fprintln(w, strings.Repeat("-", 10))
		for _, c := range a.Citations {
			fmt.Fprintf(w, "[%d] %s", c.Rank, c.Title)
			if c.Year > 0 {
				fmt.Fprintf(w, " (%d)", c.Year)
			}
			fmt.Fprintf(w, ". %s. %s\n", sourceLabel(c.Source), c.URL)
		}
	}

	m := a.Metadata
	fmt.Fprintf(w, "\nstatus=%s grounding=%.2f rounds=%d elapsed=%s cost=$%.4f",
		a.Status, m.GroundingScore, m.Rounds, m.Elapsed.Round(time.Millisecond), m.CostUSD)
	if counts := formatCounts(m.SourceCounts); counts != "" {
		fmt.Fprintf(w, " sources=%s", counts)
	}
	fmt.Fprintln(w)
}

// Pack writes an evidence pack as a ranked table.
func Pack(w io.Writer, pack types.EvidencePack) {
	if pack.IsEmpty() {
		fmt.Fprintln(w, "No evidence found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-14s  %-4s  %-5s  %-5s  %s\n",
		"Rank", "Title", "Type", "Year", "Score", "Lex", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, it := range pack.Items {
		year := ""
		if it.Year > 0 {
			year = fmt.Sprintf("%d", it.Year)
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-14s  %-4s  %-5.2f  %-5.1f  %s\n",
			it.Rank, truncate(it.Title, 60), it.EvidenceType, year, it.Score, it.LexicalScore, it.Source)
	}

	fmt.Fprintf(w, "\n%d items", pack.Len())
	if counts := formatCounts(pack.SourceCounts()); counts != "" {
		fmt.Fprintf(w, " (%s)", counts)
	}
	fmt.Fprintln(w)
}

// PackJSON writes pack items as indented JSON.
func PackJSON(w io.Writer, pack types.EvidencePack) error {
	return writeJSON(w, pack.Items)
}

// Analysis writes a query analysis as aligned key/value lines.
func Analysis(w io.Writer, q types.QueryAnalysis, routing types.Routing) {
	fmt.Fprintf(w, "%-12s %s\n", "question:", q.Text)
	fmt.Fprintf(w, "%-12s %s\n", "intent:", q.Intent)
	fmt.Fprintf(w, "%-12s %s\n", "diseases:", strings.Join(q.Entities.Diseases, ", "))
	fmt.Fprintf(w, "%-12s %s\n", "drugs:", strings.Join(q.Entities.Drugs, ", "))
	fmt.Fprintf(w, "%-12s %s\n", "procedures:", strings.Join(q.Entities.Procedures, ", "))

	abbrs := make([]string, 0, len(q.Abbreviations))
	for k, v := range q.Abbreviations {
		abbrs = append(abbrs, k+"="+v)
	}
	sort.Strings(abbrs)
	fmt.Fprintf(w, "%-12s %s\n", "abbrevs:", strings.Join(abbrs, ", "))
	fmt.Fprintf(w, "%-12s %.2f\n", "complexity:", q.Complexity)

	var sources []string
	for _, s := range routing.Enabled() {
		sources = append(sources, string(s))
	}
	fmt.Fprintf(w, "%-12s %s\n", "sources:", strings.Join(sources, ", "))
	for i, v := range q.Variants() {
		fmt.Fprintf(w, "variant %d:   %s\n", i+1, v)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCounts(counts map[types.Source]int) string {
	var parts []string
	for _, s := range types.AllSources {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", s, n))
		}
	}
	return strings.Join(parts, " ")
}

var sourceLabels = map[types.Source]string{
	types.SourceGuidelines:      "Clinical guideline",
	types.SourcePubMed:          "PubMed",
	types.SourceEuropePMC:       "Europe PMC",
	types.SourceDailyMed:        "DailyMed",
	types.SourceOpenAlex:        "OpenAlex",
	types.SourceSemanticScholar: "Semantic Scholar",
	types.SourceTavily:          "Web",
}

func sourceLabel(s types.Source) string {
	if l, ok := sourceLabels[s]; ok {
		return l
	}
	return string(s)
}

// truncate shortens s to max runes, ending in "...".
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
