// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Intent is the kind of clinical question being asked.
type Intent string

const (
	IntentTreatment  Intent = "treatment"
	IntentDiagnosis  Intent = "diagnosis"
	IntentPrognosis  Intent = "prognosis"
	IntentDosing     Intent = "dosing"
	IntentSafety     Intent = "safety"
	IntentComparison Intent = "comparison"
	IntentGuideline  Intent = "guideline"
	IntentGeneral    Intent = "general"
)

// Entities holds the medical entities extracted from a query. Each slice is
// a lowercase, sorted, duplicate-free set.
type Entities struct {
	Diseases   []string `json:"diseases,omitempty" yaml:"diseases,omitempty"`
	Drugs      []string `json:"drugs,omitempty" yaml:"drugs,omitempty"`
	Procedures []string `json:"procedures,omitempty" yaml:"procedures,omitempty"`
}

// All returns every entity across the three sets.
func (e Entities) All() []string {
	all := make([]string, 0, len(e.Diseases)+len(e.Drugs)+len(e.Procedures))
	all = append(all, e.Diseases...)
	all = append(all, e.Drugs...)
	all = append(all, e.Procedures...)
	return all
}

// IsEmpty reports whether no entities were extracted.
func (e Entities) IsEmpty() bool {
	return len(e.Diseases) == 0 && len(e.Drugs) == 0 && len(e.Procedures) == 0
}

// QueryAnalysis is the structured form of one user question. It is produced
// once per turn and read, never modified, by every downstream stage.
type QueryAnalysis struct {
	// Text is the question as asked.
	Text string `json:"text" yaml:"text"`

	Intent   Intent   `json:"intent" yaml:"intent"`
	Entities Entities `json:"entities" yaml:"entities"`

	// Abbreviations maps each abbreviation found in Text to its expansion.
	Abbreviations map[string]string `json:"abbreviations,omitempty" yaml:"abbreviations,omitempty"`

	// SearchVariants are the query strings sent to adapters, in order.
	// The first variant is the original text.
	SearchVariants []string `json:"search_variants" yaml:"search_variants"`

	// RequiredSources flags sources that must be queried regardless of routing.
	RequiredSources map[Source]bool `json:"required_sources,omitempty" yaml:"required_sources,omitempty"`

	// Complexity is a score in [0,1] used to budget output length.
	Complexity float64 `json:"complexity" yaml:"complexity"`
}

// Variants returns SearchVariants, falling back to Text when empty.
func (q QueryAnalysis) Variants() []string {
	if len(q.SearchVariants) > 0 {
		return q.SearchVariants
	}
	if q.Text == "" {
		return nil
	}
	return []string{q.Text}
}

// IsEmpty reports whether the query contains no searchable text.
func (q QueryAnalysis) IsEmpty() bool {
	return q.Text == "" && len(q.SearchVariants) == 0
}

// Routing is the per-source enable/disable decision for one retrieval round.
type Routing map[Source]bool

// Enabled returns the enabled sources in priority order.
func (r Routing) Enabled() []Source {
	var out []Source
	for _, s := range AllSources {
		if r[s] {
			out = append(out, s)
		}
	}
	for s, on := range r {
		if on && s.Priority() == len(AllSources) {
			out = append(out, s)
		}
	}
	return out
}

// Constraints narrow an adapter search.
type Constraints struct {
	// MaxResults caps results per adapter call (0 uses the adapter default).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// DateFrom restricts results to records published on or after it.
	DateFrom time.Time `json:"date_from,omitempty" yaml:"date_from,omitempty"`

	// Drugs lists drug names for sources keyed by drug (DailyMed).
	Drugs []string `json:"drugs,omitempty" yaml:"drugs,omitempty"`
}
