// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Recommendation is the sufficiency analyzer's decision.
type Recommendation string

const (
	RecommendProceed           Recommendation = "proceed"
	RecommendSearchRecent      Recommendation = "search_recent"
	RecommendSearchSpecificGap Recommendation = "search_specific_gap"
)

// GapAnalysis describes how well a ranked pack covers the query.
type GapAnalysis struct {
	// CoverageScore is in [0,100].
	CoverageScore float64 `json:"coverage_score" yaml:"coverage_score"`

	// Stale is set when the newest dated item predates the staleness window.
	Stale      bool `json:"stale" yaml:"stale"`
	NewestYear int  `json:"newest_year,omitempty" yaml:"newest_year,omitempty"`

	QualityDistribution map[EvidenceType]int `json:"quality_distribution" yaml:"quality_distribution"`

	Contradiction   bool     `json:"contradiction" yaml:"contradiction"`
	MissingElements []string `json:"missing_elements,omitempty" yaml:"missing_elements,omitempty"`

	Recommendation Recommendation `json:"recommendation" yaml:"recommendation"`
}

// Proceed reports whether synthesis may run without another retrieval round.
func (g GapAnalysis) Proceed() bool {
	return g.Recommendation == RecommendProceed
}

// Citation maps a pack rank to its source metadata.
type Citation struct {
	Rank         int          `json:"rank" yaml:"rank"`
	Source       Source       `json:"source" yaml:"source"`
	ID           string       `json:"id" yaml:"id"`
	Title        string       `json:"title" yaml:"title"`
	URL          string       `json:"url" yaml:"url"`
	Year         int          `json:"year,omitempty" yaml:"year,omitempty"`
	EvidenceType EvidenceType `json:"evidence_type,omitempty" yaml:"evidence_type,omitempty"`
	Authors      string       `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journal      string       `json:"journal,omitempty" yaml:"journal,omitempty"`
}

// Usage records the accounting data for one generation call.
type Usage struct {
	Model        string  `json:"model" yaml:"model"`
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64 `json:"cost_usd" yaml:"cost_usd"`
}

// SynthesisResult is the post-processed output of the generation call.
type SynthesisResult struct {
	Text            string     `json:"text" yaml:"text"`
	Citations       []Citation `json:"citations" yaml:"citations"`
	Usage           Usage      `json:"usage" yaml:"usage"`
	RepairedMarkers int        `json:"repaired_markers" yaml:"repaired_markers"`
	Warning         string     `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// VerificationResult reports how well generated text is grounded in the pack.
type VerificationResult struct {
	TotalClaims int `json:"total_claims" yaml:"total_claims"`
	CitedClaims int `json:"cited_claims" yaml:"cited_claims"`

	// InvalidCitations lists distinct cited ranks absent from the pack.
	InvalidCitations []int `json:"invalid_citations,omitempty" yaml:"invalid_citations,omitempty"`

	// InvalidMarkerCount counts every marker referencing an absent rank.
	InvalidMarkerCount int `json:"invalid_marker_count" yaml:"invalid_marker_count"`

	UnsupportedClaims []string `json:"unsupported_claims,omitempty" yaml:"unsupported_claims,omitempty"`

	HallucinationDetected bool    `json:"hallucination_detected" yaml:"hallucination_detected"`
	GroundingScore        float64 `json:"grounding_score" yaml:"grounding_score"`

	SectionsInOrder bool     `json:"sections_in_order" yaml:"sections_in_order"`
	MissingSections []string `json:"missing_sections,omitempty" yaml:"missing_sections,omitempty"`

	Passed bool `json:"passed" yaml:"passed"`
}

// AnswerStatus distinguishes the caller-visible outcomes of a run.
type AnswerStatus string

const (
	StatusVerified             AnswerStatus = "verified"
	StatusGroundingFailed      AnswerStatus = "grounding_failed"
	StatusInsufficientEvidence AnswerStatus = "insufficient_evidence"
)

// Stage names the pipeline state machine states.
type Stage string

const (
	StageAnalyzed    Stage = "ANALYZED"
	StageRetrieved   Stage = "RETRIEVED"
	StageNormalized  Stage = "NORMALIZED"
	StageFiltered    Stage = "FILTERED"
	StageReranked    Stage = "RERANKED"
	StageGapChecked  Stage = "GAP_CHECKED"
	StageSynthesized Stage = "SYNTHESIZED"
	StageVerified    Stage = "VERIFIED"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// StageEvent records one state transition with the candidate count at that point.
type StageEvent struct {
	Stage   Stage         `json:"stage" yaml:"stage"`
	Round   int           `json:"round" yaml:"round"`
	Count   int           `json:"count" yaml:"count"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// AnswerMetadata is the accounting block returned with every answer.
type AnswerMetadata struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	SourceCounts   map[Source]int `json:"source_counts" yaml:"source_counts"`
	GroundingScore float64        `json:"grounding_score" yaml:"grounding_score"`
	Elapsed        time.Duration  `json:"elapsed" yaml:"elapsed"`
	CostUSD        float64        `json:"cost_usd" yaml:"cost_usd"`
	Model          string         `json:"model,omitempty" yaml:"model,omitempty"`
	FallbackUsed   bool           `json:"fallback_used" yaml:"fallback_used"`
	Rounds         int            `json:"rounds" yaml:"rounds"`
	BackendErrors  []string       `json:"backend_errors,omitempty" yaml:"backend_errors,omitempty"`
}

// Answer is the caller-facing result of one pipeline run. Callers must treat
// StatusGroundingFailed as distinct from StatusVerified.
type Answer struct {
	Query        QueryAnalysis       `json:"query" yaml:"query"`
	Status       AnswerStatus        `json:"status" yaml:"status"`
	Text         string              `json:"text" yaml:"text"`
	Citations    []Citation          `json:"citations" yaml:"citations"`
	Metadata     AnswerMetadata      `json:"metadata" yaml:"metadata"`
	Gap          *GapAnalysis        `json:"gap,omitempty" yaml:"gap,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty" yaml:"verification,omitempty"`
	Warning      string              `json:"warning,omitempty" yaml:"warning,omitempty"`
	Stages       []StageEvent        `json:"stages" yaml:"stages"`
}

// Verified reports whether the answer passed citation verification.
func (a Answer) Verified() bool {
	return a.Status == StatusVerified
}
