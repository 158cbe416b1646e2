// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func sampleAnswer() *types.Answer {
	return &types.Answer{
		Query: types.QueryAnalysis{
			Text:           "dapagliflozin in HFrEF",
			Intent:         types.IntentTreatment,
			Entities:       types.Entities{Drugs: []string{"dapagliflozin"}, Diseases: []string{"heart failure with reduced ejection fraction"}},
			SearchVariants: []string{"dapagliflozin in HFrEF"},
			Complexity:     0.4,
		},
		Status: types.StatusVerified,
		Text:   "## Answer\nDapagliflozin reduced worsening heart failure or death [[1]](https://pubmed.ncbi.nlm.nih.gov/31535829/).",
		Citations: []types.Citation{{
			Rank:         1,
			Source:       types.SourcePubMed,
			ID:           "31535829",
			Title:        "Dapagliflozin in Patients with Heart Failure and Reduced Ejection Fraction",
			URL:          "https://pubmed.ncbi.nlm.nih.gov/31535829/",
			Year:         2019,
			EvidenceType: types.EvidenceRCT,
			Authors:      "McMurray JJV, Solomon SD",
			Journal:      "N Engl J Med",
		}},
		Metadata: types.AnswerMetadata{
			RunID:          "run-1",
			SourceCounts:   map[types.Source]int{types.SourcePubMed: 1},
			GroundingScore: 1,
			Elapsed:        1500 * time.Millisecond,
			CostUSD:        0.0123,
			Model:          "gpt-4o",
			Rounds:         1,
		},
		Verification: &types.VerificationResult{TotalClaims: 1, CitedClaims: 1, GroundingScore: 1, Passed: true, SectionsInOrder: false, MissingSections: []string{"Evidence", "Limitations"}},
		Stages: []types.StageEvent{
			{Stage: types.StageAnalyzed},
			{Stage: types.StageDone, Round: 1, Count: 1, Elapsed: 1500 * time.Millisecond},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"csl", FormatCSL, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnswerText(t *testing.T) {
	a := sampleAnswer()
	a.Warning = "answer cites no evidence"

	var buf bytes.Buffer
	AnswerText(&buf, a)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "WARNING: answer cites no evidence\n"))
	assert.Contains(t, out, "## Answer")
	assert.Contains(t, out, "[1] Dapagliflozin in Patients with Heart Failure and Reduced Ejection Fraction (2019). PubMed. https://pubmed.ncbi.nlm.nih.gov/31535829/")
	assert.Contains(t, out, "status=verified grounding=1.00 rounds=1 elapsed=1.5s cost=$0.0123 sources=pubmed:1")
}

func TestAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Answer(&buf, sampleAnswer(), FormatJSON))

	var got types.Answer
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, types.StatusVerified, got.Status)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "31535829", got.Citations[0].ID)
}

func TestPack(t *testing.T) {
	var buf bytes.Buffer
	Pack(&buf, types.EvidencePack{})
	assert.Equal(t, "No evidence found.\n", buf.String())

	pack := types.BuildPack([]types.ScoredCandidate{
		{Candidate: types.EvidenceCandidate{Source: types.SourceGuidelines, ID: "esc#1", Title: "ESC heart failure guideline", Year: 2023, EvidenceType: types.EvidenceGuideline, LexicalScore: 80}, Score: 0.9},
		{Candidate: types.EvidenceCandidate{Source: types.SourcePubMed, ID: "1", Title: strings.Repeat("long title ", 10), EvidenceType: types.EvidenceRCT}, Score: 0.5},
	}, 0)

	buf.Reset()
	Pack(&buf, pack)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[2], "1     ESC heart failure guideline"))
	assert.Contains(t, lines[3], "...")
	assert.Equal(t, "2 items (guidelines:1 pubmed:1)", lines[5])
}

func TestAnalysis(t *testing.T) {
	q := sampleAnswer().Query
	q.Abbreviations = map[string]string{"hfref": "heart failure with reduced ejection fraction"}

	var buf bytes.Buffer
	Analysis(&buf, q, types.Routing{types.SourcePubMed: true, types.SourceGuidelines: true})
	out := buf.String()
	assert.Contains(t, out, "intent:      treatment")
	assert.Contains(t, out, "abbrevs:     hfref=heart failure with reduced ejection fraction")
	assert.Contains(t, out, "sources:     guidelines, pubmed")
	assert.Contains(t, out, "variant 1:   dapagliflozin in HFrEF")
}

func TestToCSLItem(t *testing.T) {
	tests := []struct {
		name string
		in   types.Citation
		want CSLItem
	}{
		{
			name: "pubmed trial",
			in:   sampleAnswer().Citations[0],
			want: CSLItem{
				ID:             "pubmed:31535829",
				Type:           "article-journal",
				Title:          "Dapagliflozin in Patients with Heart Failure and Reduced Ejection Fraction",
				Author:         []CSLName{{Family: "McMurray", Given: "JJV"}, {Family: "Solomon", Given: "SD"}},
				ContainerTitle: "N Engl J Med",
				Issued:         &CSLDate{DateParts: [][]int{{2019}}},
				PMID:           "31535829",
				URL:            "https://pubmed.ncbi.nlm.nih.gov/31535829/",
				Note:           "evidence type: rct",
			},
		},
		{
			name: "guideline chunk",
			in: types.Citation{
				Rank: 2, Source: types.SourceGuidelines, ID: "esc-hf-2023#4", Title: "ESC heart failure guideline",
				URL: "https://www.escardio.org/guidelines", Year: 2023, EvidenceType: types.EvidenceGuideline, Journal: "ESC",
			},
			want: CSLItem{
				ID:        "guidelines:esc-hf-2023_4",
				Type:      "report",
				Title:     "ESC heart failure guideline",
				Publisher: "ESC",
				Issued:    &CSLDate{DateParts: [][]int{{2023}}},
				URL:       "https://www.escardio.org/guidelines",
				Note:      "evidence type: guideline",
			},
		},
		{
			name: "doi from url",
			in: types.Citation{
				Source: types.SourceOpenAlex, ID: "W123", Title: "Cohort", URL: "https://doi.org/10.1000/xyz",
				Authors: "Ada Lovelace; Grace Hopper; et al.",
			},
			want: CSLItem{
				ID:     "openalex:W123",
				Type:   "article-journal",
				Title:  "Cohort",
				Author: []CSLName{{Given: "Ada", Family: "Lovelace"}, {Given: "Grace", Family: "Hopper"}},
				DOI:    "10.1000/xyz",
				URL:    "https://doi.org/10.1000/xyz",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, toCSLItem(tt.in)); diff != "" {
				t.Errorf("toCSLItem mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCSL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Answer(&buf, sampleAnswer(), FormatCSL))

	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "pubmed:31535829", items[0].ID)
	assert.Contains(t, buf.String(), "date-parts:")
}

func TestParseAuthorName(t *testing.T) {
	assert.Equal(t, CSLName{}, parseAuthorName("  "))
	assert.Equal(t, CSLName{Literal: "WHO"}, parseAuthorName("WHO"))
	assert.Equal(t, CSLName{Given: "Scott D", Family: "Solomon"}, parseAuthorName("Scott D Solomon"))
	assert.Equal(t, CSLName{Given: "SD", Family: "Solomon"}, parseAuthorName("Solomon SD"))
}

func TestAnswerFileRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })

	path := filepath.Join(t.TempDir(), "answer.yaml")
	a := sampleAnswer()
	require.NoError(t, WriteAnswerFile(path, a))

	af, err := ReadAnswerFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dapagliflozin in HFrEF", af.Question)
	assert.Equal(t, "verified", af.Status)
	assert.True(t, fixed.Equal(af.Timestamp))
	if diff := cmp.Diff(a, af.Answer, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("answer round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAnswerFile_Errors(t *testing.T) {
	_, err := ReadAnswerFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading answer file")

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("question: x\n"), 0o644))
	_, err = ReadAnswerFile(path)
	assert.ErrorContains(t, err, "has no answer")
}
