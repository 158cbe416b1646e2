// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the evidence-engine pipeline.
package types

import (
	"fmt"
	"time"
)

// Source identifies an external evidence source. Each source is served by
// exactly one adapter in the source registry.
type Source string

const (
	SourceGuidelines      Source = "guidelines"
	SourcePubMed          Source = "pubmed"
	SourceEuropePMC       Source = "europepmc"
	SourceDailyMed        Source = "dailymed"
	SourceOpenAlex        Source = "openalex"
	SourceSemanticScholar Source = "semantic_scholar"
	SourceTavily          Source = "tavily"
)

// AllSources lists every known source in priority order (highest first).
var AllSources = []Source{
	SourceGuidelines,
	SourcePubMed,
	SourceEuropePMC,
	SourceDailyMed,
	SourceOpenAlex,
	SourceSemanticScholar,
	SourceTavily,
}

// Priority returns the source's position in AllSources; lower is better.
// Unknown sources sort last.
func (s Source) Priority() int {
	for i, known := range AllSources {
		if known == s {
			return i
		}
	}
	return len(AllSources)
}

// EvidenceType classifies a record by study design or document kind.
type EvidenceType string

const (
	EvidenceGuideline        EvidenceType = "guideline"
	EvidenceSystematicReview EvidenceType = "systematic_review"
	EvidenceRCT              EvidenceType = "rct"
	EvidenceObservational    EvidenceType = "observational"
	EvidenceDrugLabel        EvidenceType = "drug_label"
	EvidenceNarrative        EvidenceType = "narrative"
	EvidenceWeb              EvidenceType = "web"
	EvidenceOther            EvidenceType = "other"
)

// ContentLevel ranks how much text a record carries. Higher is richer.
type ContentLevel int

const (
	ContentNone ContentLevel = iota
	ContentSnippet
	ContentAbstract
	ContentFullText
)

// String returns the level name used in metadata and output.
func (c ContentLevel) String() string {
	switch c {
	case ContentSnippet:
		return "snippet"
	case ContentAbstract:
		return "abstract"
	case ContentFullText:
		return "full_text"
	default:
		return "none"
	}
}

// Metadata keys adapters use to hand source-specific fields to the normalizer.
const (
	MetaURL              = "url"
	MetaDOI              = "doi"
	MetaPMID             = "pmid"
	MetaPMCID            = "pmcid"
	MetaPublished        = "published"
	MetaYear             = "year"
	MetaAuthors          = "authors"
	MetaJournal          = "journal"
	MetaPublicationTypes = "publication_types"
	MetaAbstract         = "abstract"
	MetaSnippet          = "snippet"
	MetaFullText         = "full_text"
	MetaOrganization     = "organization"
	MetaSection          = "section"
	MetaChunkIndex       = "chunk_index"
	MetaSetID            = "set_id"
	MetaContentLevel     = "content_level"
)

// EvidenceCandidate is a single retrieved record before relevance and ranking
// decisions. Adapters fill Source, ID, Title, Body, Metadata and
// FullTextAvailable; the normalizer derives the remaining fields.
type EvidenceCandidate struct {
	// Source is the adapter that produced the record.
	Source Source `json:"source" yaml:"source"`

	// ID is the source-scoped identifier (PMID, DOI, set id, chunk id, URL).
	ID string `json:"id" yaml:"id"`

	Title string `json:"title" yaml:"title"`
	Body  string `json:"body" yaml:"body"`

	// Metadata carries source-specific fields keyed by the Meta* constants.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	FullTextAvailable bool `json:"full_text_available" yaml:"full_text_available"`

	// URL is the canonical link used in citations.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	Year      int       `json:"year,omitempty" yaml:"year,omitempty"`
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`

	EvidenceType EvidenceType `json:"evidence_type,omitempty" yaml:"evidence_type,omitempty"`
	ContentLevel ContentLevel `json:"content_level" yaml:"content_level"`

	// LexicalScore is the relevance filter score in [0,100].
	LexicalScore float64 `json:"lexical_score" yaml:"lexical_score"`
}

// Key returns the identity key (source, id) as a single string.
func (c EvidenceCandidate) Key() string {
	return string(c.Source) + ":" + c.ID
}

// Meta returns the metadata value for key, or "" when absent.
func (c EvidenceCandidate) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}

// Text returns title and body joined, the text embedded and scored downstream.
func (c EvidenceCandidate) Text() string {
	switch {
	case c.Title == "":
		return c.Body
	case c.Body == "":
		return c.Title
	default:
		return c.Title + "\n" + c.Body
	}
}

// ChunkInfo locates a ranked item inside a larger document.
type ChunkInfo struct {
	Section string `json:"section,omitempty" yaml:"section,omitempty"`
	Index   int    `json:"index" yaml:"index"`
}

// ScoredCandidate is a candidate with the reranker's scores, before ranks
// are assigned.
type ScoredCandidate struct {
	Candidate EvidenceCandidate `json:"candidate" yaml:"candidate"`

	// Similarity is the cosine similarity to the query; zero when reranking
	// was bypassed or degraded.
	Similarity float64 `json:"similarity" yaml:"similarity"`

	// Score is the combined score in [0,1].
	Score float64 `json:"score" yaml:"score"`
}

// RankedEvidence is a pack entry: a candidate with a combined score and a
// dense 1-based rank.
type RankedEvidence struct {
	EvidenceCandidate `yaml:",inline"`

	Rank       int        `json:"rank" yaml:"rank"`
	Score      float64    `json:"score" yaml:"score"`
	Similarity float64    `json:"similarity" yaml:"similarity"`
	Chunk      *ChunkInfo `json:"chunk,omitempty" yaml:"chunk,omitempty"`
}

// EvidencePack is the final ranked evidence handed to synthesis and
// verification. Ranks are always 1..N in order and identity keys are unique.
type EvidencePack struct {
	Items []RankedEvidence `json:"items" yaml:"items"`
}

// BuildPack assigns dense ranks to scored candidates in their given order.
// Repeated identity keys keep their first occurrence. When max > 0 the pack
// holds at most max items.
func BuildPack(scored []ScoredCandidate, max int) EvidencePack {
	seen := make(map[string]bool, len(scored))
	var items []RankedEvidence
	for _, sc := range scored {
		if max > 0 && len(items) >= max {
			break
		}
		key := sc.Candidate.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, RankedEvidence{
			EvidenceCandidate: sc.Candidate,
			Rank:              len(items) + 1,
			Score:             sc.Score,
			Similarity:        sc.Similarity,
			Chunk:             chunkInfo(sc.Candidate),
		})
	}
	return EvidencePack{Items: items}
}

func chunkInfo(c EvidenceCandidate) *ChunkInfo {
	section := c.Meta(MetaSection)
	idx := c.Meta(MetaChunkIndex)
	if section == "" && idx == "" {
		return nil
	}
	info := &ChunkInfo{Section: section}
	fmt.Sscanf(idx, "%d", &info.Index)
	return info
}

// Len returns the number of items in the pack.
func (p EvidencePack) Len() int { return len(p.Items) }

// IsEmpty reports whether the pack holds no evidence.
func (p EvidencePack) IsEmpty() bool { return len(p.Items) == 0 }

// ByRank returns the item with the given rank.
func (p EvidencePack) ByRank(rank int) (RankedEvidence, bool) {
	if rank < 1 || rank > len(p.Items) {
		return RankedEvidence{}, false
	}
	item := p.Items[rank-1]
	if item.Rank != rank {
		for _, it := range p.Items {
			if it.Rank == rank {
				return it, true
			}
		}
		return RankedEvidence{}, false
	}
	return item, true
}

// Ranks returns the ranks present in the pack, in order.
func (p EvidencePack) Ranks() []int {
	ranks := make([]int, len(p.Items))
	for i, it := range p.Items {
		ranks[i] = it.Rank
	}
	return ranks
}

// SourceCounts returns the number of pack items per source.
func (p EvidencePack) SourceCounts() map[Source]int {
	counts := make(map[Source]int)
	for _, it := range p.Items {
		counts[it.Source]++
	}
	return counts
}

// Validate checks the pack invariants: ranks are 1..N in order and no two
// items share an identity key.
func (p EvidencePack) Validate() error {
	seen := make(map[string]int, len(p.Items))
	for i, it := range p.Items {
		if it.Rank != i+1 {
			return fmt.Errorf("item %d has rank %d, want %d", i, it.Rank, i+1)
		}
		key := it.Key()
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("ranks %d and %d share identity key %s", prev, it.Rank, key)
		}
		seen[key] = it.Rank
	}
	return nil
}
