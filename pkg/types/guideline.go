// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// GuidelineDocument is the front matter of an ingested clinical guideline.
type GuidelineDocument struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`

	// Published is a YYYY-MM-DD or YYYY date string.
	Published string `json:"published,omitempty" yaml:"published,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`

	// Sections is used by YAML documents; Markdown documents derive their
	// sections from headings.
	Sections []GuidelineSection `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// GuidelineSection is one headed block of guideline text.
type GuidelineSection struct {
	Heading string `json:"heading" yaml:"heading"`
	Text    string `json:"text" yaml:"text"`
}

// GuidelineChunk is one searchable section of a guideline document.
type GuidelineChunk struct {
	DocID        string `json:"doc_id" yaml:"doc_id"`
	Index        int    `json:"index" yaml:"index"`
	Title        string `json:"title" yaml:"title"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
	Section      string `json:"section,omitempty" yaml:"section,omitempty"`
	Text         string `json:"text" yaml:"text"`
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	Published    string `json:"published,omitempty" yaml:"published,omitempty"`

	// Rank is the FTS5 bm25 rank; lower is better.
	Rank float64 `json:"rank" yaml:"rank"`
}
